package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// FromRate adapts a golang.org/x/time/rate limiter to Limiter, for callers
// that already budget with x/time/rate and want to hand the same budget to an
// API client.
func FromRate(lim *rate.Limiter) Limiter {
	return &rateLimiter{lim: lim}
}

type rateLimiter struct {
	lim *rate.Limiter
}

func (r *rateLimiter) Acquire() bool { return r.lim.Allow() }

// WaitForSlot keeps waiting while the limiter refuses to reserve, which only
// happens for a zero burst; that configuration blocks forever like a zero
// call bucket.
func (r *rateLimiter) WaitForSlot() {
	for r.lim.Wait(context.Background()) != nil {
		time.Sleep(minInterval)
	}
}

func (r *rateLimiter) AcquireAsync(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.lim.Allow(), nil
}

func (r *rateLimiter) WaitForSlotAsync(ctx context.Context) error {
	return r.lim.Wait(ctx)
}
