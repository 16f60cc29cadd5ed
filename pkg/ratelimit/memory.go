package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// InMemoryLimiter keeps one counter per key in a sync.Map. Counters are
// reset lazily on the first hit after their window ends. Two hits racing
// across a reset may both start a fresh window; the last write wins and the
// count is approximate by at most the number of racing callers.
type InMemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time
	items  sync.Map // key -> *counter
}

type counter struct {
	count   atomic.Int64
	resetAt atomic.Int64 // unix nanos
}

// NewInMemory returns a limiter allowing limit hits per window per key.
func NewInMemory(limit int, window time.Duration) *InMemoryLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &InMemoryLimiter{limit: limit, window: window, now: time.Now}
}

// WithClock swaps the time source. Intended for tests.
func (l *InMemoryLimiter) WithClock(now func() time.Time) *InMemoryLimiter {
	l.now = now
	return l
}

// Allow records a hit for key.
func (l *InMemoryLimiter) Allow(_ context.Context, key string) Decision {
	now := l.now()
	v, _ := l.items.LoadOrStore(key, l.fresh(now))
	c := v.(*counter)

	resetAt := c.resetAt.Load()
	if now.UnixNano() >= resetAt {
		next := now.Add(l.window).UnixNano()
		if c.resetAt.CompareAndSwap(resetAt, next) {
			c.count.Store(0)
		}
		resetAt = c.resetAt.Load()
	}

	n := c.count.Add(1)
	return decide(n, l.limit, time.Unix(0, resetAt))
}

func (l *InMemoryLimiter) fresh(now time.Time) *counter {
	c := &counter{}
	c.resetAt.Store(now.Add(l.window).UnixNano())
	return c
}

// Sweep drops counters whose window has ended and returns how many were
// removed.
func (l *InMemoryLimiter) Sweep() int {
	now := l.now().UnixNano()
	removed := 0
	l.items.Range(func(k, v any) bool {
		if now >= v.(*counter).resetAt.Load() {
			l.items.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// Len returns the number of live counters.
func (l *InMemoryLimiter) Len() int {
	n := 0
	l.items.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
