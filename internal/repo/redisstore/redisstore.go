// Package redisstore backs rate limiting and idempotency caching with Redis.
package redisstore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/grantdelgado/unveil-sub008/pkg/config"
)

func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	return redis.NewClient(opts), nil
}

// Limiter is a fixed-window counter used to cap OTP sends per phone.
type Limiter struct {
	client *redis.Client
	max    int
	window time.Duration
}

func NewLimiter(client *redis.Client, max int, window time.Duration) *Limiter {
	return &Limiter{client: client, max: max, window: window}
}

// Allow increments the counter for key and reports whether the caller is
// still within the limit. Fails open on Redis errors.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	hashed := fmt.Sprintf("ratelimit:%x", sha256.Sum256([]byte(key)))

	count, err := l.client.Incr(ctx, hashed).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		l.client.Expire(ctx, hashed, l.window)
	}
	return count <= int64(l.max), nil
}

// IdempotencyStore caches successful POST responses keyed by the client's
// Idempotency-Key header. Implements middleware.IdempotencyStore.
type IdempotencyStore struct {
	client *redis.Client
}

func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	hashed := fmt.Sprintf("idempotency:%x", sha256.Sum256([]byte(key)))
	val, err := s.client.Get(ctx, hashed).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (s *IdempotencyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	hashed := fmt.Sprintf("idempotency:%x", sha256.Sum256([]byte(key)))
	return s.client.Set(ctx, hashed, value, ttl).Err()
}
