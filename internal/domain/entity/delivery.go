package entity

import (
	"fmt"
	"time"
)

// DeliveryStatus is the status of one (notification, channel) attempt lineage.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DefaultDeliveryMaxRetries is the per-channel retry budget used when none is configured.
const DefaultDeliveryMaxRetries = 3

// MetaDeferredUntil is the metadata key set on a record parked by Reschedule.
// Such a record has status failed with a retry scheduled, but no attempt
// failed; the value is the RFC 3339 time the hold ends.
const MetaDeferredUntil = "deferred_until"

// Delivery tracks the attempt lineage of one notification on one channel.
//
// RetryCount counts failed retryable attempts. Invariants:
//   - RetryCount <= MaxRetries
//   - Status == failed && !Permanent && RetryCount < MaxRetries => NextRetryAt != nil
//   - delivered is terminal
//   - Metadata[MetaDeferredUntil] is set only while a Reschedule hold is open
//
// Version is the optimistic concurrency token; repositories bump it on every
// successful update and reject updates carrying a stale version.
type Delivery struct {
	ID                string
	NotificationID    string
	Channel           Channel
	Recipient         string
	Status            DeliveryStatus
	ProviderMessageID string
	Error             string
	RetryCount        int
	MaxRetries        int
	NextRetryAt       *time.Time
	SentAt            *time.Time
	DeliveredAt       *time.Time
	FailedAt          *time.Time
	ClaimedAt         *time.Time
	Permanent         bool
	Version           int64
	Metadata          map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewDelivery creates a pending delivery record with RetryCount=0.
// The pending record represents the attempt that is about to be issued.
func NewDelivery(id, notificationID string, channel Channel, recipient string, maxRetries int, now time.Time) (Delivery, error) {
	if id == "" {
		return Delivery{}, &ValidationError{Field: "id", Message: "id is required"}
	}
	if notificationID == "" {
		return Delivery{}, &ValidationError{Field: "notificationId", Message: "notification id is required"}
	}
	if !channel.IsValid() {
		return Delivery{}, &ValidationError{Field: "channel", Message: fmt.Sprintf("unknown channel %q", channel)}
	}
	if maxRetries < 0 {
		return Delivery{}, &ValidationError{Field: "maxRetries", Message: "must not be negative"}
	}
	return Delivery{
		ID:             id,
		NotificationID: notificationID,
		Channel:        channel,
		Recipient:      recipient,
		Status:         DeliveryPending,
		MaxRetries:     maxRetries,
		ClaimedAt:      timePtr(now),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// InFlight reports whether an attempt has been issued and not yet resolved.
func (d Delivery) InFlight() bool {
	return d.Status == DeliveryPending
}

// Succeeded reports whether the provider accepted the notification.
func (d Delivery) Succeeded() bool {
	return d.Status == DeliverySent || d.Status == DeliveryDelivered
}

// CanRetry reports whether another attempt may be scheduled.
func (d Delivery) CanRetry() bool {
	return d.Status == DeliveryFailed && !d.Permanent && d.RetryCount < d.MaxRetries
}

// IsPermanentlyFailed reports whether the record failed with no retry left.
func (d Delivery) IsPermanentlyFailed() bool {
	return d.Status == DeliveryFailed && !d.CanRetry()
}

// IsDueForRetry reports whether the retry scheduler should pick the record up at now.
func (d Delivery) IsDueForRetry(now time.Time) bool {
	return d.CanRetry() && d.NextRetryAt != nil && !d.NextRetryAt.After(now)
}

// IsStale reports whether an in-flight claim is older than lease and may be reclaimed.
func (d Delivery) IsStale(now time.Time, lease time.Duration) bool {
	if d.Status != DeliveryPending || d.ClaimedAt == nil {
		return false
	}
	return !d.ClaimedAt.Add(lease).After(now)
}

// MarkSent records provider acceptance.
func (d Delivery) MarkSent(providerMessageID string, now time.Time) (Delivery, error) {
	if d.Status != DeliveryPending {
		return d, transitionError(string(d.Status), string(DeliverySent))
	}
	out := d.clone()
	out.Status = DeliverySent
	out.ProviderMessageID = providerMessageID
	out.SentAt = timePtr(now)
	out.ClaimedAt = nil
	out.NextRetryAt = nil
	out.Error = ""
	out.UpdatedAt = nextUpdatedAt(d.UpdatedAt, now)
	return out, nil
}

// MarkDelivered records confirmed delivery. A pending record may be delivered
// directly when the provider confirms synchronously.
func (d Delivery) MarkDelivered(now time.Time) (Delivery, error) {
	if d.Status != DeliveryPending && d.Status != DeliverySent {
		return d, transitionError(string(d.Status), string(DeliveryDelivered))
	}
	out := d.clone()
	if out.SentAt == nil {
		out.SentAt = timePtr(now)
	}
	out.Status = DeliveryDelivered
	out.DeliveredAt = timePtr(now)
	out.ClaimedAt = nil
	out.NextRetryAt = nil
	out.Error = ""
	out.UpdatedAt = nextUpdatedAt(d.UpdatedAt, now)
	return out, nil
}

// MarkFailed records a retryable failure. RetryCount is incremented (capped at
// MaxRetries) and NextRetryAt is computed from the backoff schedule indexed by
// the post-increment count. When the budget is exhausted NextRetryAt stays unset
// and the record is permanently failed.
func (d Delivery) MarkFailed(errText string, now time.Time) (Delivery, error) {
	if d.Status != DeliveryPending && d.Status != DeliverySent {
		return d, transitionError(string(d.Status), string(DeliveryFailed))
	}
	out := d.clone()
	out.Status = DeliveryFailed
	out.Error = errText
	out.FailedAt = timePtr(now)
	out.ClaimedAt = nil
	out.NextRetryAt = nil
	if out.RetryCount < out.MaxRetries {
		out.RetryCount++
	}
	if out.RetryCount < out.MaxRetries {
		out.NextRetryAt = timePtr(now.Add(RetryDelay(out.RetryCount)))
	}
	out.UpdatedAt = nextUpdatedAt(d.UpdatedAt, now)
	return out, nil
}

// MarkFailedPermanently records a failure that must never be retried.
// It does not consume retry budget.
func (d Delivery) MarkFailedPermanently(errText string, now time.Time) (Delivery, error) {
	if d.Status == DeliveryDelivered {
		return d, transitionError(string(d.Status), string(DeliveryFailed))
	}
	out := d.clone()
	out.Status = DeliveryFailed
	out.Permanent = true
	out.Error = errText
	out.FailedAt = timePtr(now)
	out.ClaimedAt = nil
	out.NextRetryAt = nil
	out.UpdatedAt = nextUpdatedAt(d.UpdatedAt, now)
	return out, nil
}

// Claim marks a retryable failed record as in flight, or re-claims a stale
// in-flight record whose previous claim outlived lease. The caller persists the
// result with an optimistic version check; only one claimant can win.
func (d Delivery) Claim(now time.Time, lease time.Duration) (Delivery, error) {
	switch {
	case d.IsDueForRetry(now), d.IsStale(now, lease):
	default:
		return d, transitionError(string(d.Status), "claimed")
	}
	out := d.clone()
	out.Status = DeliveryPending
	out.ClaimedAt = timePtr(now)
	out.NextRetryAt = nil
	out.UpdatedAt = nextUpdatedAt(d.UpdatedAt, now)
	return out, nil
}

// Reschedule parks an in-flight record until the given time without consuming
// retry budget. It is used when quiet hours defer a scheduled retry.
// The record reads as failed for the retry scan; Deferred tells it apart from
// a provider failure. A record with no budget left cannot be rescheduled.
func (d Delivery) Reschedule(reason string, until, now time.Time) (Delivery, error) {
	if d.Status != DeliveryPending || d.RetryCount >= d.MaxRetries {
		return d, transitionError(string(d.Status), string(DeliveryFailed))
	}
	out := d.clone()
	out.Status = DeliveryFailed
	out.Error = reason
	out.ClaimedAt = nil
	out.NextRetryAt = timePtr(until)
	if out.Metadata == nil {
		out.Metadata = make(map[string]any, 1)
	}
	out.Metadata[MetaDeferredUntil] = until.UTC().Format(time.RFC3339Nano)
	out.UpdatedAt = nextUpdatedAt(d.UpdatedAt, now)
	return out, nil
}

// Deferred reports whether the record is parked by Reschedule and when the
// hold ends.
func (d Delivery) Deferred() (time.Time, bool) {
	if d.Status != DeliveryFailed {
		return time.Time{}, false
	}
	switch v := d.Metadata[MetaDeferredUntil].(type) {
	case time.Time:
		return v, true
	case string:
		until, err := time.Parse(time.RFC3339Nano, v)
		return until, err == nil
	}
	return time.Time{}, false
}

// Reset reopens a failed record for a notification-level retry.
// The per-channel retry budget starts over.
func (d Delivery) Reset(now time.Time) (Delivery, error) {
	if d.Status != DeliveryFailed {
		return d, transitionError(string(d.Status), string(DeliveryPending))
	}
	out := d.clone()
	out.Status = DeliveryPending
	out.RetryCount = 0
	out.Permanent = false
	out.Error = ""
	out.NextRetryAt = nil
	out.FailedAt = nil
	out.ClaimedAt = timePtr(now)
	out.UpdatedAt = nextUpdatedAt(d.UpdatedAt, now)
	return out, nil
}

// clone copies d for a transition. Any transition ends a Reschedule hold.
func (d Delivery) clone() Delivery {
	out := d
	out.Metadata = cloneMap(d.Metadata)
	delete(out.Metadata, MetaDeferredUntil)
	return out
}
