package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"presenter-video-pipeline/internal/usecase"
)

// Compile-time check
var _ usecase.SubmitLimiter = (*RateLimiter)(nil)

// RateLimiter enforces the fleet-wide submission budget toward
// rate-limited providers with a fixed-window counter.
type RateLimiter struct {
	cli    *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(c *Client, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{cli: c.cli, limit: limit, window: window}
}

func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := r.cli.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.cli.Expire(ctx, key, r.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(r.limit), nil
}
