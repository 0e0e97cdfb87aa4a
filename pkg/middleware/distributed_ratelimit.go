package middleware

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter is a fixed-window limiter shared by every instance through Redis
type RedisLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a Redis-backed limiter. Keys are stored under prefix.
func NewRedisLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *RedisLimiter {
	if config == nil {
		config = UserRateLimitConfig()
	}
	if prefix == "" {
		prefix = "tasktrack:ratelimit"
	}
	return &RedisLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("redis error: %w", err)
	}

	reset := ttl.Val()
	if reset < 0 {
		// first hit in this window
		if err := rl.redis.Expire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
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

// Reset clears the counter for a key
func (rl *RedisLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, fmt.Sprintf("%s:%s", rl.prefix, key)).Err()
}
