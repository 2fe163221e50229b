// Package server exposes the chat dispatcher over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/telco-assist/internal/chat"
	"github.com/sells-group/telco-assist/internal/metrics"
)

const (
	maxBodyBytes = 64 << 10

	// DefaultStatus is reported by the health endpoint.
	DefaultStatus = "✅ SLT Chatbot is running"

	msgInvalidBody = "❌ Invalid request body."
)

// Handler runs one chat turn.
type Handler interface {
	Handle(ctx context.Context, userID, message string) chat.Reply
}

// Options configures a Server.
type Options struct {
	Status         string
	PagesLoaded    int
	BranchesLoaded int
}

// Server routes HTTP requests to the chat handler.
type Server struct {
	chat Handler
	opts Options
}

// New creates a Server.
func New(h Handler, opts Options) *Server {
	if opts.Status == "" {
		opts.Status = DefaultStatus
	}
	return &Server{chat: h, opts: opts}
}

type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

type healthResponse struct {
	Status         string `json:"status"`
	ScrapedPages   int    `json:"scraped_pages"`
	BranchesLoaded int    `json:"branches_loaded"`
}

// Router builds the chi router with middleware and routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-User-ID"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleHealth)
	r.Post("/chat", s.handleChat)
	r.Handle("/metrics", metrics.Handler())
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         s.opts.Status,
		ScrapedPages:   s.opts.PagesLoaded,
		BranchesLoaded: s.opts.BranchesLoaded,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		zap.L().Debug("server: invalid chat body", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: msgInvalidBody})
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = r.Header.Get("X-User-ID")
	}

	reply := s.chat.Handle(r.Context(), userID, req.Message)
	switch reply.Kind {
	case chat.KindInput:
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: reply.Text})
	case chat.KindInternal:
		writeJSON(w, http.StatusInternalServerError, chatResponse{Error: reply.Text})
	default:
		writeJSON(w, http.StatusOK, chatResponse{Reply: reply.Text})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

// requestLogger logs one line per request with the chi request ID.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			zap.L().Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

// ListenAndServe serves on port until ctx is done, then shuts down within
// shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, port int, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return nil
}
