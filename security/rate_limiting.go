package security

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a Redis-backed fixed-window request limiter, shared by
// every instance behind the same Redis.
type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Allow reports whether the caller identified by key may run another
// request in the current window. Redis failures fail open: throttling
// must never take the API down with it.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/int64(window.Seconds()))

	count, err := r.redis.Incr(ctx, bucket).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		r.redis.Expire(ctx, bucket, window)
	}

	return count <= int64(limit)
}
