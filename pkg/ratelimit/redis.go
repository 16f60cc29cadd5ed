package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any failure talking to Redis.
var ErrRedisUnavailable = errors.New("ratelimit: redis unavailable")

// INCR then set the expiry on the first hit, so the window starts at the
// first request rather than sliding.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter shares counters between gate instances. When Redis can't be
// reached it falls back to its in-memory limiter so limits keep applying
// per instance.
type RedisLimiter struct {
	Client   redis.UniversalClient
	Limit    int
	Window   time.Duration
	Prefix   string
	Timeout  time.Duration
	Fallback *InMemoryLimiter
	Logger   *slog.Logger
}

// NewRedis returns a RedisLimiter with an in-memory fallback of the same
// shape.
func NewRedis(client redis.UniversalClient, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		Client:   client,
		Limit:    limit,
		Window:   window,
		Prefix:   "rl:",
		Timeout:  2 * time.Second,
		Fallback: NewInMemory(limit, window),
		Logger:   slog.Default(),
	}
}

// Allow records a hit for key in Redis.
func (l *RedisLimiter) Allow(ctx context.Context, key string) Decision {
	d, err := l.incr(ctx, key)
	if err == nil {
		return d
	}
	if l.Logger != nil {
		l.Logger.Warn("rate limiter falling back to memory", "key", key, "error", err)
	}
	if l.Fallback != nil {
		return l.Fallback.Allow(ctx, key)
	}
	// No fallback configured; refuse rather than let the limit lapse.
	return Decision{Allowed: false, Limit: l.Limit, ResetAt: time.Now().Add(l.Window)}
}

func (l *RedisLimiter) incr(ctx context.Context, key string) (Decision, error) {
	if l.Client == nil {
		return Decision{}, fmt.Errorf("%w: no client", ErrRedisUnavailable)
	}

	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	res, err := fixedWindowScript.Run(ctx, l.Client, []string{l.Prefix + key}, l.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) < 2 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	count, ttlMs := res[0], res[1]
	if ttlMs < 0 {
		ttlMs = l.Window.Milliseconds()
	}
	return decide(count, l.Limit, time.Now().Add(time.Duration(ttlMs)*time.Millisecond)), nil
}

// Sweep clears expired fallback counters. Redis expires its own keys.
func (l *RedisLimiter) Sweep() int {
	if l.Fallback == nil {
		return 0
	}
	return l.Fallback.Sweep()
}
