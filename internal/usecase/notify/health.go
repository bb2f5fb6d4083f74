package notify

import (
	"time"

	"notify-dispatch/internal/domain/entity"
)

// ChannelHealthStatus represents the health status of a delivery channel.
type ChannelHealthStatus struct {
	Channel            entity.Channel
	Configured         bool       // Whether a provider is registered
	CircuitBreakerOpen bool       // Whether the provider's circuit breaker is open
	DisabledUntil      *time.Time // Earliest time the breaker lets a trial request through (nil if closed)
}

// ChannelHealth returns the health of every known channel, in entity.AllChannels order.
func (d *Dispatcher) ChannelHealth() []ChannelHealthStatus {
	out := make([]ChannelHealthStatus, 0, len(entity.AllChannels))
	for _, ch := range entity.AllChannels {
		status := ChannelHealthStatus{Channel: ch}
		cb, ok := d.breakers[ch]
		if !ok {
			out = append(out, status)
			continue
		}
		status.Configured = true
		if cb.IsOpen() {
			status.CircuitBreakerOpen = true
			if until, ok := cb.OpenUntil(); ok {
				status.DisabledUntil = &until
			}
		}
		out = append(out, status)
	}
	return out
}

// Healthy reports whether every configured channel accepts traffic.
func Healthy(statuses []ChannelHealthStatus) bool {
	for _, s := range statuses {
		if s.Configured && s.CircuitBreakerOpen {
			return false
		}
	}
	return true
}
