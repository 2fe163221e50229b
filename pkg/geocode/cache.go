package geocode

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type cacheEntry struct {
	result  *Result
	err     error
	expires time.Time
}

// Cached memoizes another Client in process. Hits and not-found results are
// both cached; other errors are not.
type Cached struct {
	next Client
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCached wraps next with a cache whose entries live for ttl.
func NewCached(next Client, ttl time.Duration) *Cached {
	return &Cached{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// cacheKey normalizes case and whitespace so "  Kandy" and "kandy" share an entry.
func cacheKey(query, country string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ") + "|" + strings.ToLower(strings.TrimSpace(country))
}

// Geocode implements Client.
func (c *Cached) Geocode(ctx context.Context, query, country string) (*Result, error) {
	key := cacheKey(query, country)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if c.now().Before(e.expires) {
			c.mu.Unlock()
			zap.L().Debug("geocode cache hit", zap.String("key", key), zap.Bool("found", e.err == nil))
			if e.err != nil {
				return nil, e.err
			}
			r := *e.result
			return &r, nil
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	res, err := c.next.Geocode(ctx, query, country)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{result: res, err: err, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	r := *res
	return &r, nil
}

// Len returns the number of cached entries, expired ones included.
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
