package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter admits at most one action per key within a window
type RateLimiter interface {
	// Allow reports whether the action may proceed and starts a new window when it does
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisRateLimiter marks a key in Redis for the length of the window
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
	window time.Duration
}

func NewRedisRateLimiter(client *redis.Client, prefix string, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, prefix: prefix, window: window}
}

// Allow sets the window marker only when absent, so check and set happen in one round trip
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, fmt.Sprintf("rate_limit:%s:%s", r.prefix, key), "1", r.window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}
	return ok, nil
}

// NoopRateLimiter admits everything, used when Redis is not configured
type NoopRateLimiter struct{}

func (NoopRateLimiter) Allow(context.Context, string) (bool, error) {
	return true, nil
}
