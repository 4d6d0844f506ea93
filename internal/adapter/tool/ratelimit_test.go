package tool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webscout/internal/domain"
)

// fakeClock drives a RateLimiter without real sleeping. Sleeping advances the clock.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return nil
}

func newFakeLimiter(limit int) (*RateLimiter, *fakeClock) {
	clock := newFakeClock()
	rl := NewRateLimiter(limit, time.Minute)
	rl.now = clock.Now
	rl.sleep = clock.Sleep
	return rl, clock
}

// unlimited returns a limiter that never waits in practice.
func unlimited() *RateLimiter {
	return NewRateLimiter(1_000_000, time.Minute)
}

func TestRateLimiterAcquireUnderLimitDoesNotWait(t *testing.T) {
	rl, clock := newFakeLimiter(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Acquire(context.Background()))
	}
	assert.Empty(t, clock.sleeps)
	assert.Equal(t, 3, rl.InWindow())
}

func TestRateLimiterAcquireWaitsForOldest(t *testing.T) {
	rl, clock := newFakeLimiter(3)
	ctx := context.Background()

	require.NoError(t, rl.Acquire(ctx)) // t0
	clock.Advance(time.Second)
	require.NoError(t, rl.Acquire(ctx)) // t0+1s
	clock.Advance(time.Second)
	require.NoError(t, rl.Acquire(ctx)) // t0+2s
	clock.Advance(8 * time.Second)      // t0+10s

	require.NoError(t, rl.Acquire(ctx))

	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 50*time.Second, clock.sleeps[0])
	// The first admission has left the window; the other two plus the new one remain.
	assert.Equal(t, 3, rl.InWindow())
}

func TestRateLimiterNthPlusOneWaitsFullWindowWhenBackToBack(t *testing.T) {
	const n = 30
	rl, clock := newFakeLimiter(n)
	ctx := context.Background()

	for i := 0; i < n; i++ {
		require.NoError(t, rl.Acquire(ctx))
	}
	start := clock.Now()
	require.NoError(t, rl.Acquire(ctx))

	assert.Equal(t, time.Minute, clock.Now().Sub(start))
}

func TestRateLimiterAcquireContextCanceled(t *testing.T) {
	rl, _ := newFakeLimiter(1)
	require.NoError(t, rl.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := rl.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, domain.ErrRateLimit)
	assert.Equal(t, 1, rl.InWindow())
}

func TestRateLimiterAcquireRealClockConcurrent(t *testing.T) {
	const window = 40 * time.Millisecond
	rl := NewRateLimiter(2, window)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rl.Acquire(context.Background()))
		}()
	}
	wg.Wait()

	// Five admissions at two per window need at least two full windows.
	assert.GreaterOrEqual(t, time.Since(start), 2*window)
	assert.LessOrEqual(t, rl.InWindow(), 2)
}

func TestRateLimiterAcquireDeadlineWhileWaiting(t *testing.T) {
	rl, _ := newFakeLimiter(1)
	require.NoError(t, rl.Acquire(context.Background()))

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	err := rl.Acquire(ctx)
	assert.ErrorIs(t, err, domain.ErrRateLimit)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.CodeRateLimit, domain.ErrorCodeOf(err))
}

func TestRateLimiterEvictsAtWindowBoundary(t *testing.T) {
	rl, clock := newFakeLimiter(1)
	require.NoError(t, rl.Acquire(context.Background()))

	clock.Advance(time.Minute - time.Nanosecond)
	assert.Equal(t, 1, rl.InWindow())
	require.NoError(t, rl.Acquire(context.Background()))
	assert.Equal(t, []time.Duration{time.Nanosecond}, clock.sleeps)
}

func TestRateLimiterMinimumLimit(t *testing.T) {
	rl, clock := newFakeLimiter(0)
	require.NoError(t, rl.Acquire(context.Background()))
	require.NoError(t, rl.Acquire(context.Background()))
	assert.Equal(t, []time.Duration{time.Minute}, clock.sleeps)
}

func TestRateLimiterConcurrentAcquireStaysUnderLimit(t *testing.T) {
	rl, _ := newFakeLimiter(5)
	var wg sync.WaitGroup
	for range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rl.Acquire(context.Background()))
			assert.LessOrEqual(t, rl.InWindow(), 5)
		}()
	}
	wg.Wait()
}
