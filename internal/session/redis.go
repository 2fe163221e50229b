package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/telco-assist/internal/model"
)

const keyPrefix = "telco-assist:session:"

// redisClient is the subset of *redis.Client the store uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisStore keeps sessions in Redis with a server-side TTL.
type RedisStore struct {
	client redisClient
	ttl    time.Duration
}

// NewRedisStore wraps client. ttl <= 0 uses DefaultTTL.
func NewRedisStore(client redisClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(userID string) string { return keyPrefix + userID }

// Get reads the state for userID. A missing key is idle.
func (r *RedisStore) Get(ctx context.Context, userID string) (model.SessionState, error) {
	val, err := r.client.Get(ctx, sessionKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return model.SessionIdle, nil
	}
	if err != nil {
		return model.SessionIdle, eris.Wrap(err, "session: redis get")
	}

	state := model.SessionState(val)
	if !state.IsValid() {
		zap.L().Warn("session: unknown state in redis, treating as idle",
			zap.String("user_id", userID), zap.String("state", val))
		return model.SessionIdle, nil
	}
	return state, nil
}

// Set writes state with the configured TTL. Idle deletes the key.
func (r *RedisStore) Set(ctx context.Context, userID string, state model.SessionState) error {
	if state == model.SessionIdle {
		return r.Expire(ctx, userID)
	}
	if err := r.client.Set(ctx, sessionKey(userID), string(state), r.ttl).Err(); err != nil {
		return eris.Wrap(err, "session: redis set")
	}
	return nil
}

// Expire deletes the key for userID.
func (r *RedisStore) Expire(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return eris.Wrap(err, "session: redis del")
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
