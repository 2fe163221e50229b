package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/telco-assist/internal/config"
)

// BreakerState is the position of a Breaker.
type BreakerState int

const (
	// Closed lets calls through.
	Closed BreakerState = iota
	// Open rejects calls until the cool-down elapses.
	Open
	// HalfOpen lets a probe through to test recovery.
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected by an open breaker.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// Breaker stops calling a collaborator after repeated failures so a dead
// geocoder or LLM fails fast instead of stalling every chat turn.
type Breaker struct {
	name      string
	threshold int
	coolDown  time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time

	nowFunc func() time.Time
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures and probes again after coolDown.
func NewBreaker(name string, threshold int, coolDown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if coolDown <= 0 {
		coolDown = 30 * time.Second
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		coolDown:  coolDown,
		nowFunc:   time.Now,
	}
}

// BreakerFromConfig builds a named breaker from the circuit config section.
func BreakerFromConfig(name string, cfg config.CircuitConfig) *Breaker {
	return NewBreaker(name, cfg.FailureThreshold, time.Duration(cfg.ResetTimeoutSecs)*time.Second)
}

// State returns the current state, reporting HalfOpen once the cool-down
// has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.nowFunc().Sub(b.openedAt) >= b.coolDown {
		return HalfOpen
	}
	return b.state
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteVal(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteVal runs fn through b and returns its value. A nil breaker calls fn directly.
func ExecuteVal[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if b == nil {
		return fn(ctx)
	}
	if err := b.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return nil
	}
	if b.nowFunc().Sub(b.openedAt) >= b.coolDown {
		b.setState(HalfOpen)
		return nil
	}
	return eris.Wrap(ErrCircuitOpen, b.name)
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		if b.state != Closed {
			b.setState(Closed)
		}
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.threshold {
		b.openedAt = b.nowFunc()
		if b.state != Open {
			b.setState(Open)
		}
	}
}

func (b *Breaker) setState(to BreakerState) {
	zap.L().Info("circuit breaker state change",
		zap.String("breaker", b.name),
		zap.String("from", b.state.String()),
		zap.String("to", to.String()),
	)
	b.state = to
}
