package ratelimit

import "context"

// RateLimiter is the blocking-flavor view of a shared Limiter.
type RateLimiter struct {
	limit Limiter
}

// NewRateLimiter wraps limit for blocking call sites.
func NewRateLimiter(limit Limiter) *RateLimiter {
	return &RateLimiter{limit: limit}
}

// Acquire attempts to take a token without waiting.
func (l *RateLimiter) Acquire() bool { return l.limit.Acquire() }

// WaitForSlot blocks until a token is taken.
func (l *RateLimiter) WaitForSlot() { l.limit.WaitForSlot() }

// AsyncRateLimiter is the cooperative-flavor view of a shared Limiter.
type AsyncRateLimiter struct {
	limit Limiter
}

// NewAsyncRateLimiter wraps limit for cooperative call sites.
func NewAsyncRateLimiter(limit Limiter) *AsyncRateLimiter {
	return &AsyncRateLimiter{limit: limit}
}

// Acquire attempts to take a token without waiting.
func (l *AsyncRateLimiter) Acquire(ctx context.Context) (bool, error) {
	return l.limit.AcquireAsync(ctx)
}

// WaitForSlot suspends until a token is taken or ctx is done.
func (l *AsyncRateLimiter) WaitForSlot(ctx context.Context) error {
	return l.limit.WaitForSlotAsync(ctx)
}
