// Package chat routes an incoming message to small talk, the branch lookup
// flow or retrieval-augmented answering, and tracks per-user flow state.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/telco-assist/internal/llm"
	"github.com/sells-group/telco-assist/internal/locate"
	"github.com/sells-group/telco-assist/internal/metrics"
	"github.com/sells-group/telco-assist/internal/model"
	"github.com/sells-group/telco-assist/internal/prompt"
	"github.com/sells-group/telco-assist/internal/resilience"
	"github.com/sells-group/telco-assist/internal/session"
)

// ErrEmptyMessage is reported for blank input.
var ErrEmptyMessage = eris.New("chat: empty message")

// DefaultUserID keys sessions for callers that send no identity.
const DefaultUserID = "default"

// Kind classifies a reply for the transport layer.
type Kind string

const (
	KindOK       Kind = "ok"
	KindInput    Kind = "input"
	KindInternal Kind = "internal"
)

// Route names the branch of the flow that produced a reply.
type Route string

const (
	RouteEmpty    Route = "empty"
	RouteCasual   Route = "casual"
	RouteClarify  Route = "clarify"
	RouteCity     Route = "city"
	RouteBranch   Route = "branch"
	RouteLocation Route = "location"
	RouteQA       Route = "qa"
	RouteSession  Route = "session"
)

// Reply is the outcome of one chat turn.
type Reply struct {
	Text  string
	Kind  Kind
	Route Route
	Err   error
}

// Retriever ranks corpus pages for a query.
type Retriever interface {
	Find(query string) []model.RankedPage
}

// Locator renders the nearest-branch reply for a place.
type Locator interface {
	Respond(ctx context.Context, input string) string
}

// BranchMatcher finds a branch named in the input.
type BranchMatcher interface {
	Match(input string) (model.Branch, bool)
}

// Options tunes a Dispatcher. Zero values use defaults.
type Options struct {
	LLMTimeout    time.Duration
	Template      prompt.Template
	BranchLabel   string
	CasualReplies map[string]string
	LLMBreaker    *resilience.Breaker
}

// Dispatcher handles chat turns. It is safe for concurrent use.
type Dispatcher struct {
	sessions  session.Store
	retriever Retriever
	locator   Locator
	branches  BranchMatcher
	gen       llm.Generator
	opts      Options
	locks     *keyedMutex
}

// NewDispatcher wires the collaborators of the chat flow.
func NewDispatcher(sessions session.Store, retriever Retriever, locator Locator, branches BranchMatcher, gen llm.Generator, opts Options) *Dispatcher {
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = 60 * time.Second
	}
	if opts.Template.Brand == "" {
		opts.Template = prompt.DefaultTemplate
	}
	if opts.BranchLabel == "" {
		opts.BranchLabel = DefaultBranchLabel
	}
	if opts.CasualReplies == nil {
		opts.CasualReplies = DefaultCasualReplies
	}
	return &Dispatcher{
		sessions:  sessions,
		retriever: retriever,
		locator:   locator,
		branches:  branches,
		gen:       gen,
		opts:      opts,
		locks:     newKeyedMutex(),
	}
}

// Handle runs one turn for userID. It always returns a Reply; failures are
// reported through Reply.Kind.
func (d *Dispatcher) Handle(ctx context.Context, userID, message string) (reply Reply) {
	if userID == "" {
		userID = DefaultUserID
	}
	log := zap.L().With(zap.String("component", "chat"), zap.String("user_id", userID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("chat: panic while handling message", zap.Any("panic", r), zap.Stack("stack"))
			reply = Reply{
				Text:  MsgServerError,
				Kind:  KindInternal,
				Route: reply.Route,
				Err:   eris.Errorf("chat: panic: %v", r),
			}
		}
		metrics.ChatRequests.WithLabelValues(string(reply.Route), string(reply.Kind)).Inc()
	}()

	input := strings.ToLower(strings.TrimSpace(message))
	if input == "" {
		return Reply{Text: MsgEmpty, Kind: KindInput, Route: RouteEmpty, Err: ErrEmptyMessage}
	}

	if text, ok := d.opts.CasualReplies[input]; ok {
		return Reply{Text: text, Kind: KindOK, Route: RouteCasual}
	}

	unlock := d.locks.Lock(userID)
	defer unlock()

	state, err := d.sessions.Get(ctx, userID)
	if err != nil {
		log.Error("chat: read session", zap.Error(err))
		return internal(RouteSession, err)
	}

	if state == model.SessionAwaitingCity {
		if err := d.sessions.Set(ctx, userID, model.SessionIdle); err != nil {
			log.Error("chat: reset session", zap.Error(err))
			return internal(RouteSession, err)
		}
		reply.Route = RouteCity
		return Reply{Text: d.locator.Respond(ctx, input), Kind: KindOK, Route: RouteCity}
	}

	if locate.IsVague(input) {
		if err := d.sessions.Set(ctx, userID, model.SessionAwaitingCity); err != nil {
			log.Error("chat: set session", zap.Error(err))
			return internal(RouteSession, err)
		}
		return Reply{Text: MsgClarify, Kind: KindOK, Route: RouteClarify}
	}

	if text, ok := d.branchDetails(input); ok {
		return Reply{Text: text, Kind: KindOK, Route: RouteBranch}
	}

	if containsAny(input, locationKeywords) {
		reply.Route = RouteLocation
		return Reply{Text: d.locator.Respond(ctx, input), Kind: KindOK, Route: RouteLocation}
	}

	reply.Route = RouteQA
	return d.answer(ctx, log, input)
}

// branchDetails renders the contact fields asked about for a named branch.
// It reports false when the input names a branch but asks for no field.
func (d *Dispatcher) branchDetails(input string) (string, bool) {
	if d.branches == nil {
		return "", false
	}
	b, ok := d.branches.Match(input)
	if !ok {
		return "", false
	}

	lines := []string{fmt.Sprintf("📍 %s: **%s**", d.opts.BranchLabel, b.Name)}
	if containsAny(input, []string{"contact", "phone"}) {
		lines = append(lines, "📞 Phone: "+orNotAvailable(b.Phone))
	}
	if strings.Contains(input, "email") {
		lines = append(lines, "📧 Email: "+orNotAvailable(b.Email))
	}
	if containsAny(input, []string{"address", "location"}) {
		lines = append(lines, "🏠 Address: "+orNotAvailable(b.Address))
	}
	if len(lines) == 1 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

// answer runs retrieval, prompt assembly and generation. Generation errors
// and timeouts produce a degraded reply rather than an error.
func (d *Dispatcher) answer(ctx context.Context, log *zap.Logger, input string) Reply {
	pages := d.retriever.Find(input)
	if len(pages) == 0 {
		return Reply{Text: MsgNoPages, Kind: KindOK, Route: RouteQA}
	}

	p := d.opts.Template.Build(input, prompt.BuildContext(pages))

	genCtx, cancel := context.WithTimeout(ctx, d.opts.LLMTimeout)
	defer cancel()

	start := time.Now()
	text, err := resilience.ExecuteVal(genCtx, d.opts.LLMBreaker, func(ctx context.Context) (string, error) {
		return d.gen.Generate(ctx, p)
	})
	elapsed := time.Since(start)

	if err != nil {
		metrics.LLMDuration.WithLabelValues(metrics.ResultError).Observe(elapsed.Seconds())
		log.Warn("chat: answer generation failed",
			zap.Int("pages", len(pages)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return Reply{Text: MsgUnavailable, Kind: KindOK, Route: RouteQA, Err: err}
	}
	metrics.LLMDuration.WithLabelValues(metrics.ResultOK).Observe(elapsed.Seconds())

	return Reply{Text: prompt.Linkify(text), Kind: KindOK, Route: RouteQA}
}

func internal(route Route, err error) Reply {
	return Reply{Text: MsgServerError, Kind: KindInternal, Route: route, Err: err}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func orNotAvailable(s string) string {
	if s == "" {
		return "Not available"
	}
	return s
}
