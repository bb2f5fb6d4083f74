package provider

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket in front of a provider API.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows requestsPerSecond sustained with the given burst.
// A non-positive rate disables limiting.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}
