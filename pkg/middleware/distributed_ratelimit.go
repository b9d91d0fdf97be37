package middleware

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DistributedRateLimiter is a fixed-window counter in Redis, shared by
// every server instance
type DistributedRateLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a Redis-backed limiter
func NewDistributedRateLimiter(redisClient *redis.Client, config RateLimitConfig, prefix string) *DistributedRateLimiter {
	if prefix == "" {
		prefix = "taskboard:ratelimit"
	}
	return &DistributedRateLimiter{redis: redisClient, config: config, prefix: prefix}
}

func (rl *DistributedRateLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Allow counts one request against key's current window
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := rl.key(key)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("redis error: %w", err)
	}

	reset := ttl.Val()
	if reset < 0 {
		// first hit in the window, or a key that lost its expiry
		if err := rl.redis.PExpire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return Decision{}, fmt.Errorf("redis error: %w", err)
		}
		reset = rl.config.WindowDuration
	}

	count := int(incr.Val())
	remaining := rl.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= rl.config.RequestsPerWindow,
		Limit:     rl.config.RequestsPerWindow,
		Remaining: remaining,
		Reset:     reset,
	}, nil
}

// Reset clears the counter for key
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}

// HealthCheck verifies Redis connectivity
func (rl *DistributedRateLimiter) HealthCheck(ctx context.Context) error {
	return rl.redis.Ping(ctx).Err()
}
