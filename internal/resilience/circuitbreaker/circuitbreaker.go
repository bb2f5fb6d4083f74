// Package circuitbreaker guards channel providers and the database with
// github.com/sony/gobreaker and remembers when each breaker opened so the
// channel health report can say when traffic resumes.
package circuitbreaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Config tunes one breaker.
type Config struct {
	Name string
	// HalfOpenRequests is the number of calls let through while half-open.
	HalfOpenRequests uint32
	// Window clears the closed-state counts.
	Window time.Duration
	// OpenFor is how long the breaker rejects calls before letting trial requests through.
	OpenFor time.Duration
	// MinRequests and FailureRatio decide when a closed breaker trips.
	MinRequests  uint32
	FailureRatio float64

	// Ignore reports errors that say nothing about the guarded system's
	// health, such as a provider rejecting one recipient.
	Ignore func(err error) bool
	// OnOpen runs each time the breaker opens.
	OnOpen func(name string)
	// Now defaults to time.Now.
	Now func() time.Time
}

// ProviderConfig is the breaker of one channel provider: five calls with
// half of them failing open it for 30s.
func ProviderConfig(channel string) Config {
	return Config{
		Name:             "provider-" + channel,
		HalfOpenRequests: 2,
		Window:           time.Minute,
		OpenFor:          30 * time.Second,
		MinRequests:      5,
		FailureRatio:     0.5,
	}
}

// DatabaseConfig opens once at least five calls in the window all failed.
func DatabaseConfig() Config {
	return Config{
		Name:             "database",
		HalfOpenRequests: 3,
		Window:           time.Minute,
		OpenFor:          30 * time.Second,
		MinRequests:      5,
		FailureRatio:     1.0,
	}
}

// Breaker is a gobreaker.CircuitBreaker that tracks its open time.
type Breaker struct {
	cb      *gobreaker.CircuitBreaker
	openFor time.Duration
	now     func() time.Time

	mu       sync.Mutex
	openedAt time.Time
}

// New builds a breaker from cfg.
func New(cfg Config) *Breaker {
	b := &Breaker{openFor: cfg.OpenFor, now: cfg.Now}
	if b.now == nil {
		b.now = time.Now
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Window,
		Timeout:     cfg.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < cfg.MinRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))

			b.mu.Lock()
			if to == gobreaker.StateOpen {
				b.openedAt = b.now()
			} else {
				b.openedAt = time.Time{}
			}
			b.mu.Unlock()

			if to == gobreaker.StateOpen && cfg.OnOpen != nil {
				cfg.OnOpen(name)
			}
		},
	}
	if cfg.Ignore != nil {
		settings.IsSuccessful = func(err error) bool { return err == nil || cfg.Ignore(err) }
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// Call runs fn unless the breaker is open. A rejected call returns an error
// for which IsRejection is true.
func (b *Breaker) Call(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// IsOpen reports whether calls are currently rejected.
func (b *Breaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// OpenUntil is the time the open breaker lets the first trial request through.
func (b *Breaker) OpenUntil() (time.Time, bool) {
	if !b.IsOpen() {
		return time.Time{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openedAt.IsZero() {
		return time.Time{}, false
	}
	return b.openedAt.Add(b.openFor), true
}

// IsRejection reports whether err came from the breaker rather than the
// guarded call.
func IsRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
