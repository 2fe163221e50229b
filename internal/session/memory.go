package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/telco-assist/internal/model"
)

type entry struct {
	state     model.SessionState
	expiresAt time.Time
}

// MemoryStore is an in-process Store with per-entry expiry.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// NewMemoryStore creates a MemoryStore. ttl <= 0 uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Get returns the state for userID, evicting it if expired.
func (m *MemoryStore) Get(_ context.Context, userID string) (model.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[userID]
	if !ok {
		return model.SessionIdle, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, userID)
		return model.SessionIdle, nil
	}
	return e.state, nil
}

// Set stores state and refreshes its expiry. Idle removes the entry.
func (m *MemoryStore) Set(_ context.Context, userID string, state model.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state == model.SessionIdle {
		delete(m.entries, userID)
		return nil
	}
	m.entries[userID] = entry{state: state, expiresAt: m.now().Add(m.ttl)}
	return nil
}

// Expire drops the entry for userID.
func (m *MemoryStore) Expire(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}

// Sweep removes every expired entry and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (m *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				zap.L().Debug("session: swept expired sessions", zap.Int("removed", n))
			}
		}
	}
}

// Len returns the number of stored entries, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
