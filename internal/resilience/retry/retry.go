// Package retry repeats a failing call a few times within one delivery
// attempt or one startup step. The minute-scale delivery backoff belongs to
// the retry scheduler, not to this package.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Policy is an exponential backoff with jitter.
type Policy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
	// Jitter adds up to this fraction of the delay, in [0, 1].
	Jitter float64
}

// ProviderPolicy keeps the whole call inside the provider timeout: two
// attempts, 200ms apart.
func ProviderPolicy() Policy {
	return Policy{Attempts: 2, Initial: 200 * time.Millisecond, Max: 2 * time.Second, Factor: 2, Jitter: 0.1}
}

// DatabasePolicy rides out a database that is still accepting connections
// at startup.
func DatabasePolicy() Policy {
	return Policy{Attempts: 3, Initial: 100 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0.1}
}

// Do calls fn until it succeeds, returns an error Retryable rejects, or the
// policy runs out of attempts. A Retry-After carried by *HTTPError stretches
// the wait up to p.Max.
func Do(ctx context.Context, p Policy, fn func() error) error {
	attempts := max(p.Attempts, 1)
	delay := p.Initial

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		if attempt == attempts {
			return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
		}

		wait := delay
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.RetryAfter > wait {
			wait = min(httpErr.RetryAfter, p.Max)
		}
		slog.Debug("retrying",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Any("error", err))

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}

		delay = withJitter(min(time.Duration(float64(delay)*p.Factor), p.Max), p.Jitter)
	}
}

// Retryable accepts timeouts, refused or reset connections, and HTTP 408,
// 429 and 5xx. Context cancellation is never retried.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		code := httpErr.StatusCode
		return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
	}
	return false
}

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func withJitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	fraction = min(fraction, 1)
	// #nosec G404 -- jitter does not need a cryptographic source
	return d + time.Duration(rand.Float64()*float64(d)*fraction)
}
