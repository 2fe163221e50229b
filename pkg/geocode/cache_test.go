package geocode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingClient struct {
	mu    sync.Mutex
	calls int
	res   *Result
	err   error
}

func (c *countingClient) Geocode(_ context.Context, _, _ string) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	r := *c.res
	return &r, nil
}

func TestCached_Hit(t *testing.T) {
	next := &countingClient{res: &Result{Latitude: 6.9, Longitude: 79.8, Address: "Colombo"}}
	c := NewCached(next, time.Hour)

	r1, err := c.Geocode(context.Background(), "Colombo", "Sri Lanka")
	require.NoError(t, err)
	r2, err := c.Geocode(context.Background(), "  colombo ", "sri lanka")
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, 1, c.Len())

	r2.Address = "mutated"
	r3, _ := c.Geocode(context.Background(), "Colombo", "Sri Lanka")
	assert.Equal(t, "Colombo", r3.Address)
}

func TestCached_NotFoundIsCached(t *testing.T) {
	next := &countingClient{err: ErrNotFound}
	c := NewCached(next, time.Hour)

	for i := 0; i < 3; i++ {
		_, err := c.Geocode(context.Background(), "Atlantis", "")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 1, next.calls)
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	next := &countingClient{err: errors.New("connection refused")}
	c := NewCached(next, time.Hour)

	for i := 0; i < 2; i++ {
		_, err := c.Geocode(context.Background(), "Kandy", "")
		assert.Error(t, err)
	}
	assert.Equal(t, 2, next.calls)
	assert.Zero(t, c.Len())
}

func TestCached_Expiry(t *testing.T) {
	next := &countingClient{res: &Result{Address: "Galle"}}
	c := NewCached(next, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	_, _ = c.Geocode(context.Background(), "Galle", "")
	now = now.Add(2 * time.Minute)
	_, _ = c.Geocode(context.Background(), "Galle", "")
	assert.Equal(t, 2, next.calls)
}
