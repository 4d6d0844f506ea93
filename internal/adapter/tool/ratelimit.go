package tool

import (
	"context"
	"sync"
	"time"

	"webscout/internal/domain"
)

// RateLimiter is a sliding-window admission throttle. At most limit calls are
// admitted in any trailing window; Acquire waits for a slot instead of failing.
// A limiter is safe for concurrent use and is owned by a single client.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time // admission times, oldest first

	// Injected for testing.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a limiter admitting limit calls per window.
// A limit below 1 is treated as 1.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// NewPerMinuteLimiter creates a limiter with a one minute window.
func NewPerMinuteLimiter(requestsPerMinute int) *RateLimiter {
	return NewRateLimiter(requestsPerMinute, time.Minute)
}

// Acquire blocks until one more call fits in the window, records it and
// returns. The only error is ctx ending while waiting: a domain.ErrRateLimit
// that still matches the context's own error.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := r.reserve()
		if ok {
			return nil
		}
		if err := r.sleep(ctx, wait); err != nil {
			return domain.NewDomainError("RateLimiter.Acquire", domain.ErrRateLimit,
				"no slot free before the request was abandoned").WithCause(err)
		}
	}
}

// reserve admits a call, or reports how long until the oldest admission
// leaves the window. The lock is not held while the caller waits.
func (r *RateLimiter) reserve() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.evict(now)

	if len(r.calls) < r.limit {
		r.calls = append(r.calls, now)
		return 0, true
	}
	return r.calls[0].Add(r.window).Sub(now), false
}

// evict drops admissions at or before now-window. Must hold r.mu.
func (r *RateLimiter) evict(now time.Time) {
	cutoff := now.Add(-r.window)
	n := 0
	for _, t := range r.calls {
		if t.After(cutoff) {
			r.calls[n] = t
			n++
		}
	}
	r.calls = r.calls[:n]
}

// InWindow returns the number of admissions in the current window.
func (r *RateLimiter) InWindow() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evict(r.now())
	return len(r.calls)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
