// Package ratelimiter wraps golang.org/x/time/rate with the small surface
// the chat server needs: a per-connection token bucket that throttles how
// fast a single client can feed requests into the dispatcher's global
// critical section.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// effectively unlimited; rate.Inf has awkward edge cases with SetBurst
const unlimited = 1_000_000_000

// RateLimiter is a token-bucket limiter. Tokens accrue at the configured
// sustained rate and each request consumes one. All methods are safe for
// concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond sustained with the given
// burst capacity. requestsPerSecond = 0 disables limiting.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimited
		burst = unlimited
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow reports whether a request may proceed now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is cancelled. The server
// calls this between frames so an over-eager client is throttled rather
// than disconnected.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Tokens returns the current bucket fill, for monitoring.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
