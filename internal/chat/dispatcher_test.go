package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/telco-assist/internal/branch"
	"github.com/sells-group/telco-assist/internal/locate"
	"github.com/sells-group/telco-assist/internal/model"
	"github.com/sells-group/telco-assist/internal/resilience"
	"github.com/sells-group/telco-assist/internal/retrieve"
	"github.com/sells-group/telco-assist/internal/session"
	"github.com/sells-group/telco-assist/pkg/geocode"
)

type fakeGeocoder struct {
	mu    sync.Mutex
	calls []string
	res   *geocode.Result
	err   error
}

func (f *fakeGeocoder) Geocode(_ context.Context, query, _ string) (*geocode.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, query)
	return f.res, f.err
}

func (f *fakeGeocoder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeGenerator struct {
	calls  atomic.Int32
	prompt string
	out    string
	err    error
	block  bool
}

func (f *fakeGenerator) Generate(ctx context.Context, p string) (string, error) {
	f.calls.Add(1)
	f.prompt = p
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.out, f.err
}

type panicRetriever struct{}

func (panicRetriever) Find(string) []model.RankedPage { panic("index corrupted") }

type failingStore struct{ session.Store }

func (failingStore) Get(context.Context, string) (model.SessionState, error) {
	return model.SessionIdle, errors.New("redis down")
}

var testBranches = []model.Branch{
	{Name: "Kandy", Address: "Dalada Veediya, Kandy", Phone: "0812234567", Latitude: 7.2936, Longitude: 80.6413},
	{Name: "Galle", Email: "galle@example.lk", Latitude: 6.0329, Longitude: 80.2168},
	{Name: "Colombo", Latitude: 6.9271, Longitude: 79.8612},
}

var testCorpus = model.Corpus{
	"https://www.slt.lk/broadband": {
		Title: "Broadband",
		Text:  "broadband packages cost 1000 rupees",
	},
}

type harness struct {
	d     *Dispatcher
	geo   *fakeGeocoder
	gen   *fakeGenerator
	store *session.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	geo := &fakeGeocoder{res: &geocode.Result{Latitude: 7.2906, Longitude: 80.6337, Address: "Kandy, Central Province, Sri Lanka"}}
	gen := &fakeGenerator{out: "Plans start at 1000. See https://www.slt.lk/broadband"}
	store := session.NewMemoryStore(time.Minute)
	resolver := locate.NewResolver(geo, testBranches, locate.Options{Country: "Sri Lanka"}, nil)

	d := NewDispatcher(
		store,
		retrieve.NewRetriever(testCorpus, 3, retrieve.MatchSubstring),
		resolver,
		branch.NewDirectory(testBranches),
		gen,
		Options{LLMTimeout: time.Second},
	)
	return &harness{d: d, geo: geo, gen: gen, store: store}
}

func TestHandle_CasualGreeting(t *testing.T) {
	h := newHarness(t)

	r := h.d.Handle(context.Background(), "u1", "  Hello ")
	assert.Equal(t, KindOK, r.Kind)
	assert.Equal(t, RouteCasual, r.Route)
	assert.Equal(t, "👋 Hello! How can I help you today?", r.Text)
	assert.Zero(t, h.geo.callCount())
	assert.Zero(t, h.gen.calls.Load())
}

func TestHandle_NearMeThenCity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := h.d.Handle(ctx, "u1", "branches near me")
	assert.Equal(t, RouteClarify, r.Route)
	assert.Equal(t, MsgClarify, r.Text)
	assert.Zero(t, h.geo.callCount())

	state, err := h.store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionAwaitingCity, state)

	r = h.d.Handle(ctx, "u1", "Kandy")
	assert.Equal(t, RouteCity, r.Route)
	assert.Equal(t, KindOK, r.Kind)
	assert.Contains(t, r.Text, "📌 Your location: **Kandy, Central Province, Sri Lanka**")
	assert.Contains(t, r.Text, "📍 **Kandy**")
	assert.Equal(t, []string{"kandy"}, h.geo.calls)

	state, err = h.store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionIdle, state)
}

func TestHandle_AwaitingCityAcceptsAnything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.d.Handle(ctx, "u1", "near me")
	r := h.d.Handle(ctx, "u1", "what is fibre")
	assert.Equal(t, RouteCity, r.Route, "no validation of the city name")
	assert.Equal(t, 1, h.geo.callCount())
	assert.Zero(t, h.gen.calls.Load())
}

func TestHandle_CasualWinsWhileAwaitingCity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.d.Handle(ctx, "u1", "near me")
	r := h.d.Handle(ctx, "u1", "thanks")
	assert.Equal(t, RouteCasual, r.Route)

	state, _ := h.store.Get(ctx, "u1")
	assert.Equal(t, model.SessionAwaitingCity, state)
}

func TestHandle_SessionsAreIsolated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.d.Handle(ctx, "alice", "near me")
	r := h.d.Handle(ctx, "bob", "Kandy")
	assert.NotEqual(t, RouteCity, r.Route)

	state, _ := h.store.Get(ctx, "alice")
	assert.Equal(t, model.SessionAwaitingCity, state)
}

func TestHandle_QAScenario(t *testing.T) {
	h := newHarness(t)

	r := h.d.Handle(context.Background(), "u1", "broadband cost")
	assert.Equal(t, RouteQA, r.Route)
	assert.Equal(t, KindOK, r.Kind)
	assert.Contains(t, r.Text, `<a href="https://www.slt.lk/broadband" target="_blank"`)

	assert.Equal(t, int32(1), h.gen.calls.Load())
	assert.Contains(t, h.gen.prompt, "broadband cost")
	assert.Contains(t, h.gen.prompt, "https://www.slt.lk/broadband")
	assert.Contains(t, h.gen.prompt, "broadband packages cost 1000 rupees")
}

func TestHandle_QANoPages(t *testing.T) {
	h := newHarness(t)

	r := h.d.Handle(context.Background(), "u1", "roaming in japan")
	assert.Equal(t, MsgNoPages, r.Text)
	assert.Equal(t, KindOK, r.Kind)
	assert.Zero(t, h.gen.calls.Load())
}

func TestHandle_EmptyMessage(t *testing.T) {
	h := newHarness(t)

	for _, msg := range []string{"", "   ", "\n\t"} {
		r := h.d.Handle(context.Background(), "u1", msg)
		assert.Equal(t, KindInput, r.Kind)
		assert.Equal(t, RouteEmpty, r.Route)
		assert.Equal(t, MsgEmpty, r.Text)
		assert.ErrorIs(t, r.Err, ErrEmptyMessage)
	}
}

func TestHandle_GeocoderFailure(t *testing.T) {
	h := newHarness(t)
	h.geo.err = errors.New("service timed out")
	h.geo.res = nil

	r := h.d.Handle(context.Background(), "u1", "nearest branch in jaffna")
	assert.Equal(t, KindOK, r.Kind)
	assert.Equal(t, RouteLocation, r.Route)
	assert.Equal(t, "❌ Location detection error: service timed out", r.Text)
}

func TestHandle_LocationNotFound(t *testing.T) {
	h := newHarness(t)
	h.geo.err = geocode.ErrNotFound
	h.geo.res = nil

	r := h.d.Handle(context.Background(), "u1", "coverage in atlantis")
	assert.Equal(t, locate.MsgNotFound, r.Text)
}

func TestHandle_BranchDetails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := h.d.Handle(ctx, "u1", "Kandy phone number")
	assert.Equal(t, RouteBranch, r.Route)
	assert.Equal(t, "📍 SLT Branch: **Kandy**\n📞 Phone: 0812234567", r.Text)

	r = h.d.Handle(ctx, "u1", "galle email and address")
	assert.Equal(t, "📍 SLT Branch: **Galle**\n📧 Email: galle@example.lk\n🏠 Address: Not available", r.Text)
	assert.Zero(t, h.geo.callCount())
}

func TestHandle_BranchWithoutFieldFallsThrough(t *testing.T) {
	h := newHarness(t)

	// Names a branch and a location keyword that maps to no field.
	r := h.d.Handle(context.Background(), "u1", "colombo office")
	assert.Equal(t, RouteLocation, r.Route)
	assert.Equal(t, 1, h.geo.callCount())
}

func TestHandle_LLMTimeoutDegrades(t *testing.T) {
	h := newHarness(t)
	h.gen.block = true
	h.d.opts.LLMTimeout = 20 * time.Millisecond

	start := time.Now()
	r := h.d.Handle(context.Background(), "u1", "broadband cost")
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, KindOK, r.Kind)
	assert.Equal(t, MsgUnavailable, r.Text)
	assert.ErrorIs(t, r.Err, context.DeadlineExceeded)
}

func TestHandle_LLMErrorDegrades(t *testing.T) {
	h := newHarness(t)
	h.gen.err = errors.New("quota exceeded")

	r := h.d.Handle(context.Background(), "u1", "broadband cost")
	assert.Equal(t, KindOK, r.Kind)
	assert.Equal(t, MsgUnavailable, r.Text)
}

func TestHandle_LLMBreakerOpen(t *testing.T) {
	h := newHarness(t)
	h.gen.err = errors.New("upstream 503")
	h.d.opts.LLMBreaker = resilience.NewBreaker("llm", 1, time.Hour)

	h.d.Handle(context.Background(), "u1", "broadband cost")
	r := h.d.Handle(context.Background(), "u1", "broadband cost")
	assert.Equal(t, MsgUnavailable, r.Text)
	assert.ErrorIs(t, r.Err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(1), h.gen.calls.Load())
}

func TestHandle_PanicIsInternal(t *testing.T) {
	h := newHarness(t)
	h.d.retriever = panicRetriever{}

	r := h.d.Handle(context.Background(), "u1", "broadband cost")
	assert.Equal(t, KindInternal, r.Kind)
	assert.Equal(t, RouteQA, r.Route)
	assert.Equal(t, MsgServerError, r.Text)
	require.Error(t, r.Err)

	// The user's lock was released.
	r = h.d.Handle(context.Background(), "u1", "hello")
	assert.Equal(t, KindOK, r.Kind)
	assert.Zero(t, h.d.locks.size())
}

func TestHandle_SessionStoreFailure(t *testing.T) {
	h := newHarness(t)
	h.d.sessions = failingStore{}

	r := h.d.Handle(context.Background(), "u1", "broadband cost")
	assert.Equal(t, KindInternal, r.Kind)
	assert.Equal(t, RouteSession, r.Route)
	assert.Equal(t, MsgServerError, r.Text)
}

func TestHandle_DefaultUserID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.d.Handle(ctx, "", "near me")
	state, _ := h.store.Get(ctx, DefaultUserID)
	assert.Equal(t, model.SessionAwaitingCity, state)
}

func TestHandle_ConcurrentUsers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := []string{"a", "b", "c", "d"}[i%4]
			h.d.Handle(ctx, user, "near me")
			h.d.Handle(ctx, user, "Kandy")
		}(i)
	}
	wg.Wait()

	for _, u := range []string{"a", "b", "c", "d"} {
		state, _ := h.store.Get(ctx, u)
		assert.Equal(t, model.SessionIdle, state, u)
	}
	assert.Zero(t, h.d.locks.size())
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	var active, maxActive atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("same")
			n := active.Add(1)
			if n > maxActive.Load() {
				maxActive.Store(n)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive.Load())
	assert.Zero(t, k.size())
}
