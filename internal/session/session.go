// Package session keeps the per-user position in the chat flow.
package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/telco-assist/internal/config"
	"github.com/sells-group/telco-assist/internal/model"
)

// DefaultTTL is used when no positive TTL is configured.
const DefaultTTL = 30 * time.Minute

// Store persists session state keyed by user ID. A missing or expired entry
// reads as model.SessionIdle.
type Store interface {
	Get(ctx context.Context, userID string) (model.SessionState, error)
	Set(ctx context.Context, userID string, state model.SessionState) error
	Expire(ctx context.Context, userID string) error
	Close() error
}

// Open builds the store selected by session.driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	ttl := cfg.Session.SessionTTL()
	switch cfg.Session.Driver {
	case "", "memory":
		return NewMemoryStore(ttl), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, eris.Wrapf(err, "session: ping redis %s", cfg.Redis.Addr)
		}
		return NewRedisStore(rdb, ttl), nil
	default:
		return nil, eris.Errorf("session: unknown driver %q", cfg.Session.Driver)
	}
}
