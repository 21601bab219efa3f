// Package ratelimit provides the token bucket shared by blocking and
// cooperative callers of one logical API client.
//
// A single [RateLimit] carries two acquisition paths over the same counters:
//
//	rl := ratelimit.New(10, time.Second)
//
//	// blocking call site
//	ratelimit.NewRateLimiter(rl).WaitForSlot()
//
//	// cooperative call site, cancellable through ctx
//	err := ratelimit.NewAsyncRateLimiter(rl).WaitForSlot(ctx)
//
// Both paths draw from one budget: C immediate acquisitions succeed, the
// next fails until period/calls has elapsed.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// minInterval bounds the retry sleep of misconfigured buckets.
const minInterval = time.Millisecond

// Limiter is the contract every rate-limit implementation satisfies.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Acquire attempts to take one token without waiting.
	Acquire() bool

	// WaitForSlot blocks the calling goroutine until a token is taken.
	// It cannot be cancelled.
	WaitForSlot()

	// AcquireAsync attempts to take one token through the cooperative path.
	// It only fails when ctx is done before the cooperative lock is held.
	AcquireAsync(ctx context.Context) (bool, error)

	// WaitForSlotAsync retries AcquireAsync until it succeeds or ctx is done.
	WaitForSlotAsync(ctx context.Context) error
}

// RateLimit is a token bucket with lazy replenishment. Tokens are refilled
// at the moment of use from the time elapsed since the last refill, so no
// background timer is needed.
//
// Blocking callers serialize on a mutex. Cooperative callers first take a
// context-aware lock and then the same mutex, so every mutation of the
// counters happens under one lock regardless of the caller's flavor.
type RateLimit struct {
	calls  int
	period time.Duration
	clock  func() time.Time

	coop *semaphore.Weighted

	mu          sync.Mutex
	tokens      int
	lastChecked time.Time
}

// Option configures a RateLimit.
type Option func(*RateLimit)

// WithClock replaces time.Now. Tests use it to drive replenishment.
func WithClock(clock func() time.Time) Option {
	return func(rl *RateLimit) {
		if clock != nil {
			rl.clock = clock
		}
	}
}

// New returns a full bucket allowing calls acquisitions per period.
// Non-positive values are not rejected; such a bucket never replenishes.
func New(calls int, period time.Duration, opts ...Option) *RateLimit {
	rl := &RateLimit{
		calls:  calls,
		period: period,
		clock:  time.Now,
		coop:   semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(rl)
	}
	rl.tokens = max(calls, 0)
	rl.lastChecked = rl.clock()
	return rl
}

// Calls returns the bucket capacity.
func (rl *RateLimit) Calls() int { return rl.calls }

// Period returns the replenishment period.
func (rl *RateLimit) Period() time.Duration { return rl.period }

// Interval returns the sleep between two acquisition attempts, period/calls
// rounded up to the nanosecond.
func (rl *RateLimit) Interval() time.Duration {
	return interval(rl.calls, rl.period)
}

// Tokens returns the number of tokens available now.
func (rl *RateLimit) Tokens() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.replenish(rl.clock())
	return rl.tokens
}

// Acquire takes a token on the blocking path.
func (rl *RateLimit) Acquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.take()
}

// WaitForSlot sleeps Interval between attempts until Acquire succeeds.
func (rl *RateLimit) WaitForSlot() {
	for !rl.Acquire() {
		time.Sleep(rl.Interval())
	}
}

// AcquireAsync takes a token on the cooperative path.
func (rl *RateLimit) AcquireAsync(ctx context.Context) (bool, error) {
	if err := rl.coop.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer rl.coop.Release(1)
	return rl.Acquire(), nil
}

// WaitForSlotAsync retries AcquireAsync every Interval until a token is taken
// or ctx is done.
func (rl *RateLimit) WaitForSlotAsync(ctx context.Context) error {
	return waitAsync(ctx, rl.AcquireAsync, rl.Interval())
}

// take must be called with mu held.
func (rl *RateLimit) take() bool {
	rl.replenish(rl.clock())
	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// replenish adds floor(elapsed/period*calls) tokens, capped at calls, and
// records now as the last check whenever time has moved.
func (rl *RateLimit) replenish(now time.Time) {
	if rl.calls <= 0 || rl.period <= 0 {
		return
	}
	elapsed := now.Sub(rl.lastChecked)
	if elapsed <= 0 {
		return
	}
	refill := float64(elapsed) / float64(rl.period) * float64(rl.calls)
	added := rl.calls
	if refill < float64(rl.calls) {
		added = int(refill)
	}
	rl.tokens = min(rl.calls, rl.tokens+added)
	rl.lastChecked = now
}

func interval(calls int, period time.Duration) time.Duration {
	if calls <= 0 || period <= 0 {
		return max(period, minInterval)
	}
	// rounded up so one interval always refills at least one token
	n := time.Duration(calls)
	return max((period+n-1)/n, minInterval)
}

func waitAsync(ctx context.Context, acquire func(context.Context) (bool, error), every time.Duration) error {
	for {
		ok, err := acquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(every)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

var _ Limiter = (*RateLimit)(nil)
