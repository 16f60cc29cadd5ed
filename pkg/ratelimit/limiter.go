// Package ratelimit provides fixed-window counters keyed by client and
// bucket, kept in process memory or in Redis.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long the caller should wait before the window resets.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter counts hits per key within a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string) Decision
}

// Key builds the counter key for a client within a bucket.
func Key(bucket, client string) string {
	return bucket + ":" + client
}

func decide(count int64, limit int, resetAt time.Time) Decision {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   int(count) <= limit,
		Count:     int(count),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Sweeper is implemented by limiters holding process-local state that needs
// periodic cleanup.
type Sweeper interface {
	Sweep() int
}
