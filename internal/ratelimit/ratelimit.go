package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter decides whether one more request for key fits in the current window
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisClient defines the Redis operations the limiter needs
type RedisClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Config holds rate limiting configuration
type Config struct {
	// Requests per window per key
	Limit int
	// Window is the fixed window length
	Window time.Duration
}

// DefaultConfig returns a default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		Limit:  60,
		Window: time.Minute,
	}
}

// RedisRateLimiter is a fixed-window counter shared by every replica
type RedisRateLimiter struct {
	redis  RedisClient
	config Config
	logger *zap.Logger
}

// NewRedisRateLimiter creates a new Redis-based rate limiter
func NewRedisRateLimiter(redis RedisClient, config Config, logger *zap.Logger) *RedisRateLimiter {
	defaults := DefaultConfig()
	if config.Limit <= 0 {
		config.Limit = defaults.Limit
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRateLimiter{
		redis:  redis,
		config: config,
		logger: logger,
	}
}

// Allow increments the window counter for key and reports whether it is within the limit
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "ratelimit:" + key

	count, err := r.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit error: %w", err)
	}

	// First hit opens the window
	if count == 1 {
		if err := r.redis.Expire(ctx, redisKey, r.config.Window).Err(); err != nil {
			r.logger.Error("Failed to set rate limit expiration",
				zap.Error(err),
				zap.String("key", redisKey))
		}
	}

	return count <= int64(r.config.Limit), nil
}
