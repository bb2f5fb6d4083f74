package entity

import "time"

// EventType is a delivery or engagement event consumed by analytics.
type EventType string

const (
	EventSent      EventType = "sent"
	EventDelivered EventType = "delivered"
	EventOpened    EventType = "opened"
	EventClicked   EventType = "clicked"
	EventFailed    EventType = "failed"
	EventBounced   EventType = "bounced"
)

// IsValid reports whether the event type is known.
func (e EventType) IsValid() bool {
	switch e {
	case EventSent, EventDelivered, EventOpened, EventClicked, EventFailed, EventBounced:
		return true
	default:
		return false
	}
}

// DeliveryEvent is emitted by the dispatcher and lifecycle service.
type DeliveryEvent struct {
	Type           EventType
	NotificationID string
	DeliveryID     string
	Channel        Channel
	// ErrorClass is set for failed and bounced events (see ErrorClass).
	ErrorClass string
	OccurredAt time.Time
	Metadata   map[string]any
}

// MetricType groups analytics samples.
type MetricType string

const (
	MetricDelivery   MetricType = "delivery"
	MetricEngagement MetricType = "engagement"
	MetricError      MetricType = "error"
)

// NotificationAnalytics is an immutable, append-only metric sample over a time bucket.
type NotificationAnalytics struct {
	ID             string
	NotificationID *string
	MetricType     MetricType
	MetricName     string
	Value          float64
	Count          int64
	BucketStart    time.Time
	BucketEnd      time.Time
	Metadata       map[string]any
	CreatedAt      time.Time
}
