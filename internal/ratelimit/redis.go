package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "login:attempts:"

// RedisStore shares attempt counters across instances.  INCR gives the
// atomic read-modify-write; the key expires when the window elapses, which
// restarts the count on the next attempt.
type RedisStore struct {
	rdb    *redis.Client
	max    int
	window time.Duration
}

// NewRedisStore wraps an existing client.  The client must be non-nil.
func NewRedisStore(rdb *redis.Client, max int, window time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, max: max, window: window}
}

// Hit implements AttemptStore.
func (s *RedisStore) Hit(ctx context.Context, key string) (bool, error) {
	k := redisPrefix + key
	n, err := s.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		// First attempt in this window: arm the expiry.
		if err := s.rdb.Expire(ctx, k, s.window).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(s.max), nil
}

// Reset implements AttemptStore.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, redisPrefix+key).Err()
}
