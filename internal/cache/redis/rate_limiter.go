package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

const (
	minWaitInterval = 10 * time.Millisecond
	maxWaitInterval = 2 * time.Second
)

// RateLimiter implements domain.RateLimiter with a sliding window over a
// Redis sorted set, so every worker in every process sharing a key draws
// from the same budget of limit requests per window.
type RateLimiter struct {
	c             *Client
	slidingWindow *redis.Script
	limit         int
	window        time.Duration
}

// NewRateLimiter creates a RateLimiter admitting limit requests per window.
// Non-positive values fall back to one request per second.
func NewRateLimiter(c *Client, limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{
		c:             c,
		slidingWindow: redis.NewScript(slidingWindowLua),
		limit:         limit,
		window:        window,
	}
}

// Allow records and admits one request for key if the window has room.
// When it does not, the returned duration is how long until a slot frees.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	result, err := rl.slidingWindow.Run(
		ctx,
		rl.c.rdb,
		[]string{rl.c.key("ratelimit", key)},
		time.Now().UnixMicro(),
		rl.window.Microseconds(),
		rl.limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, 0, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}
	return result[0] == 1, time.Duration(result[1]) * time.Microsecond, nil
}

// Wait blocks until a request for key is admitted or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("redis: rate limit wait %s: %w", key, err)
		}

		allowed, wait, err := rl.Allow(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(clampWait(wait))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

func clampWait(d time.Duration) time.Duration {
	switch {
	case d < minWaitInterval:
		return minWaitInterval
	case d > maxWaitInterval:
		return maxWaitInterval
	default:
		return d
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
