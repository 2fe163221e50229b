package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/telco-assist/internal/chat"
)

type fakeHandler struct {
	userID  string
	message string
	reply   chat.Reply
}

func (f *fakeHandler) Handle(_ context.Context, userID, message string) chat.Reply {
	f.userID = userID
	f.message = message
	return f.reply
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s := New(&fakeHandler{}, Options{PagesLoaded: 42, BranchesLoaded: 7})

	rec := do(t, s.Router(), http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	assert.Equal(t, DefaultStatus, body["status"])
	assert.EqualValues(t, 42, body["scraped_pages"])
	assert.EqualValues(t, 7, body["branches_loaded"])
}

func TestChat_OK(t *testing.T) {
	fh := &fakeHandler{reply: chat.Reply{Text: `see <a href="https://x">x</a>`, Kind: chat.KindOK}}
	s := New(fh, Options{})

	rec := do(t, s.Router(), http.MethodPost, "/chat", `{"message":"Broadband cost","user_id":"u-9"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-9", fh.userID)
	assert.Equal(t, "Broadband cost", fh.message)

	assert.Contains(t, rec.Body.String(), `<a href=`, "HTML is not escaped")
	body := decode(t, rec)
	assert.Equal(t, `see <a href="https://x">x</a>`, body["reply"])
	assert.NotContains(t, body, "error")
}

func TestChat_UserIDFromHeader(t *testing.T) {
	fh := &fakeHandler{reply: chat.Reply{Text: "hi", Kind: chat.KindOK}}
	s := New(fh, Options{})

	do(t, s.Router(), http.MethodPost, "/chat", `{"message":"hi"}`, map[string]string{"X-User-ID": "hdr-user"})
	assert.Equal(t, "hdr-user", fh.userID)

	do(t, s.Router(), http.MethodPost, "/chat", `{"message":"hi"}`, nil)
	assert.Equal(t, "", fh.userID, "dispatcher applies the default id")
}

func TestChat_InputErrorIs400(t *testing.T) {
	s := New(&fakeHandler{reply: chat.Reply{Text: chat.MsgEmpty, Kind: chat.KindInput}}, Options{})

	rec := do(t, s.Router(), http.MethodPost, "/chat", `{"message":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, chat.MsgEmpty, decode(t, rec)["error"])
}

func TestChat_InternalErrorIs500(t *testing.T) {
	s := New(&fakeHandler{reply: chat.Reply{Text: chat.MsgServerError, Kind: chat.KindInternal}}, Options{})

	rec := do(t, s.Router(), http.MethodPost, "/chat", `{"message":"x"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, chat.MsgServerError, decode(t, rec)["error"])
}

func TestChat_InvalidJSON(t *testing.T) {
	fh := &fakeHandler{}
	s := New(fh, Options{})

	rec := do(t, s.Router(), http.MethodPost, "/chat", `{"message":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidBody, decode(t, rec)["error"])
	assert.Empty(t, fh.message, "handler not called")
}

func TestChat_MethodNotAllowed(t *testing.T) {
	s := New(&fakeHandler{}, Options{})
	rec := do(t, s.Router(), http.MethodGet, "/chat", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := New(&fakeHandler{}, Options{})
	rec := do(t, s.Router(), http.MethodOptions, "/chat", "", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(&fakeHandler{}, Options{})
	rec := do(t, s.Router(), http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestListenAndServe_Shutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	s := New(&fakeHandler{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, port, time.Second) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/")
		if err != nil {
			return false
		}
		resp.Body.Close() //nolint:errcheck
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
