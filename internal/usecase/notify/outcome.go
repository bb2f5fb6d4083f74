package notify

import (
	"time"

	"notify-dispatch/internal/domain/entity"
)

// OutcomeStatus describes what happened to one channel during a dispatch.
type OutcomeStatus string

const (
	OutcomeSent           OutcomeStatus = "sent"
	OutcomeDelivered      OutcomeStatus = "delivered"
	OutcomeRetryScheduled OutcomeStatus = "retry_scheduled"
	OutcomeFailed         OutcomeStatus = "failed"
	OutcomeDisabled       OutcomeStatus = "disabled"
	OutcomeDeferred       OutcomeStatus = "deferred"
	OutcomeInFlight       OutcomeStatus = "in_flight"
	OutcomeCancelled      OutcomeStatus = "cancelled"
	// OutcomeError means the channel could not be processed because of a
	// storage error. The notification stays processing and is picked up again.
	OutcomeError OutcomeStatus = "error"
)

// ChannelOutcome is the per-channel result of a dispatch.
type ChannelOutcome struct {
	Channel           entity.Channel
	Status            OutcomeStatus
	DeliveryID        string
	ProviderMessageID string
	Err               error
	NextRetryAt       *time.Time
	DeferredUntil     *time.Time
}

// Succeeded reports whether the provider accepted the message on this channel.
func (o ChannelOutcome) Succeeded() bool {
	return o.Status == OutcomeSent || o.Status == OutcomeDelivered
}

// Result is the outcome of dispatching one notification.
type Result struct {
	NotificationID string
	// Status is the notification's aggregate status after the dispatch.
	Status   entity.NotificationStatus
	Outcomes []ChannelOutcome
	// Scheduled is true when the notification is not due yet and nothing was sent.
	Scheduled bool
}

// DeferredUntil returns the earliest quiet-hours end among deferred channels.
func (r Result) DeferredUntil() *time.Time {
	var earliest *time.Time
	for _, o := range r.Outcomes {
		if o.DeferredUntil == nil {
			continue
		}
		if earliest == nil || o.DeferredUntil.Before(*earliest) {
			earliest = o.DeferredUntil
		}
	}
	return earliest
}

// Outcome returns the outcome for ch.
func (r Result) Outcome(ch entity.Channel) (ChannelOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Channel == ch {
			return o, true
		}
	}
	return ChannelOutcome{}, false
}
