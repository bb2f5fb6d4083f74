// Package entity defines the core domain entities of the notification dispatch core:
// notifications and their lifecycle state machine, per-channel delivery records,
// templates, user preferences and analytics samples, together with the domain
// error taxonomy.
//
// Entities are value types. Every state transition is a method with a value
// receiver that returns a new snapshot, so concurrent readers never observe a
// half-updated entity.
package entity

import (
	"fmt"
	"time"
)

// NotificationType classifies the user-facing intent of a notification.
type NotificationType string

const (
	TypeInfo    NotificationType = "info"
	TypeSuccess NotificationType = "success"
	TypeWarning NotificationType = "warning"
	TypeError   NotificationType = "error"
	TypeSystem  NotificationType = "system"
)

// IsValid reports whether the type is one of the known notification types.
func (t NotificationType) IsValid() bool {
	switch t {
	case TypeInfo, TypeSuccess, TypeWarning, TypeError, TypeSystem:
		return true
	default:
		return false
	}
}

// NotificationStatus is the aggregate status of a notification.
type NotificationStatus string

const (
	StatusPending    NotificationStatus = "pending"
	StatusProcessing NotificationStatus = "processing"
	StatusSent       NotificationStatus = "sent"
	StatusDelivered  NotificationStatus = "delivered"
	StatusRead       NotificationStatus = "read"
	StatusFailed     NotificationStatus = "failed"
	StatusCancelled  NotificationStatus = "cancelled"
	StatusExpired    NotificationStatus = "expired"
)

// Priority controls quiet-hours handling. Urgent notifications bypass quiet hours.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid reports whether the priority is one of the known priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// DefaultNotificationMaxRetries is the notification-level retry budget used
// when the creator does not specify one.
const DefaultNotificationMaxRetries = 3

// Notification is one user-facing notification.
//
// Invariants:
//   - RetryCount <= MaxRetries
//   - Channels is non-empty
//   - once Status is cancelled or expired no further transitions occur
//
// Version guards read-modify-write cycles the same way Delivery.Version does.
type Notification struct {
	ID                string
	RecipientID       string
	Type              NotificationType
	Title             string
	Message           string
	Channels          []Channel
	Status            NotificationStatus
	Priority          Priority
	TemplateID        *string
	TemplateVariables map[string]any
	ScheduledFor      *time.Time
	SentAt            *time.Time
	DeliveredAt       *time.Time
	ReadAt            *time.Time
	ExpiresAt         *time.Time
	Metadata          map[string]any
	RetryCount        int
	MaxRetries        int
	LastError         string
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewNotificationParams carries the normalized inbound request.
type NewNotificationParams struct {
	ID                string
	RecipientID       string
	Type              NotificationType
	Title             string
	Message           string
	Channels          []Channel
	Priority          Priority
	TemplateID        *string
	TemplateVariables map[string]any
	ScheduledFor      *time.Time
	ExpiresAt         *time.Time
	Metadata          map[string]any
	MaxRetries        int
}

// NewNotification creates a pending notification and validates it.
// Duplicate channels are collapsed, keeping first-seen order.
func NewNotification(p NewNotificationParams, now time.Time) (Notification, error) {
	priority := p.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultNotificationMaxRetries
	}

	n := Notification{
		ID:                p.ID,
		RecipientID:       p.RecipientID,
		Type:              p.Type,
		Title:             p.Title,
		Message:           p.Message,
		Channels:          dedupeChannels(p.Channels),
		Status:            StatusPending,
		Priority:          priority,
		TemplateID:        p.TemplateID,
		TemplateVariables: cloneMap(p.TemplateVariables),
		ScheduledFor:      p.ScheduledFor,
		ExpiresAt:         p.ExpiresAt,
		Metadata:          cloneMap(p.Metadata),
		MaxRetries:        maxRetries,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := n.Validate(); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// Validate checks the structural invariants of the notification.
func (n Notification) Validate() error {
	if n.ID == "" {
		return &ValidationError{Field: "id", Message: "id is required"}
	}
	if n.RecipientID == "" {
		return &ValidationError{Field: "recipientId", Message: "recipient is required"}
	}
	if !n.Type.IsValid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown notification type %q", n.Type)}
	}
	if n.Title == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if len(n.Channels) == 0 {
		return &ValidationError{Field: "channels", Message: "at least one channel is required"}
	}
	for _, ch := range n.Channels {
		if !ch.IsValid() {
			return &ValidationError{Field: "channels", Message: fmt.Sprintf("unknown channel %q", ch)}
		}
	}
	if !n.Priority.IsValid() {
		return &ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", n.Priority)}
	}
	if n.MaxRetries < 0 {
		return &ValidationError{Field: "maxRetries", Message: "must not be negative"}
	}
	if n.RetryCount > n.MaxRetries {
		return &ValidationError{Field: "retryCount", Message: "must not exceed maxRetries"}
	}
	return nil
}

// IsTerminal reports whether the notification accepts no further lifecycle
// transitions other than the delivered -> read sub-flag.
func (n Notification) IsTerminal() bool {
	switch n.Status {
	case StatusDelivered, StatusRead, StatusCancelled, StatusExpired:
		return true
	case StatusFailed:
		return !n.CanRetry()
	default:
		return false
	}
}

// IsExpired reports whether ExpiresAt is set and lies in the past.
func (n Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}

// IsDue reports whether a scheduled notification may be dispatched at now.
func (n Notification) IsDue(now time.Time) bool {
	return n.ScheduledFor == nil || !n.ScheduledFor.After(now)
}

// CanRetry reports whether a notification-level retry is allowed.
func (n Notification) CanRetry() bool {
	return n.Status == StatusFailed && n.RetryCount < n.MaxRetries
}

// HasChannel reports whether ch was requested.
func (n Notification) HasChannel(ch Channel) bool {
	for _, c := range n.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// MarkProcessing moves a pending notification into processing.
func (n Notification) MarkProcessing(now time.Time) (Notification, error) {
	if n.Status != StatusPending {
		return n, transitionError(string(n.Status), string(StatusProcessing))
	}
	out := n.clone()
	out.Status = StatusProcessing
	out.UpdatedAt = nextUpdatedAt(n.UpdatedAt, now)
	return out, nil
}

// MarkSent records that at least one channel handed the notification to its provider.
func (n Notification) MarkSent(now time.Time) (Notification, error) {
	if n.Status != StatusPending && n.Status != StatusProcessing {
		return n, transitionError(string(n.Status), string(StatusSent))
	}
	out := n.clone()
	out.Status = StatusSent
	out.SentAt = timePtr(now)
	out.UpdatedAt = nextUpdatedAt(n.UpdatedAt, now)
	return out, nil
}

// MarkDelivered records successful delivery on at least one channel.
func (n Notification) MarkDelivered(now time.Time) (Notification, error) {
	if n.Status != StatusProcessing && n.Status != StatusSent {
		return n, transitionError(string(n.Status), string(StatusDelivered))
	}
	out := n.clone()
	out.Status = StatusDelivered
	out.DeliveredAt = timePtr(now)
	out.UpdatedAt = nextUpdatedAt(n.UpdatedAt, now)
	return out, nil
}

// MarkRead sets the read sub-flag on a delivered notification.
func (n Notification) MarkRead(now time.Time) (Notification, error) {
	if n.Status != StatusDelivered {
		return n, transitionError(string(n.Status), string(StatusRead))
	}
	out := n.clone()
	out.Status = StatusRead
	out.ReadAt = timePtr(now)
	out.UpdatedAt = nextUpdatedAt(n.UpdatedAt, now)
	return out, nil
}

// MarkFailed stores the error and moves the notification to failed.
func (n Notification) MarkFailed(errText string, now time.Time) (Notification, error) {
	switch n.Status {
	case StatusPending, StatusProcessing, StatusSent:
	default:
		return n, transitionError(string(n.Status), string(StatusFailed))
	}
	out := n.clone()
	out.Status = StatusFailed
	out.LastError = errText
	out.UpdatedAt = nextUpdatedAt(n.UpdatedAt, now)
	return out, nil
}

// IncrementRetry consumes one unit of notification-level retry budget and
// moves the notification back to pending for re-dispatch.
// It fails with ErrRetryLimitExceeded when the budget is already exhausted.
func (n Notification) IncrementRetry(errText string, now time.Time) (Notification, error) {
	if n.Status != StatusFailed {
		return n, transitionError(string(n.Status), string(StatusPending))
	}
	if n.RetryCount >= n.MaxRetries {
		return n, fmt.Errorf("notification %s: %w (%d/%d)", n.ID, ErrRetryLimitExceeded, n.RetryCount, n.MaxRetries)
	}
	out := n.clone()
	out.RetryCount++
	if errText != "" {
		out.LastError = errText
	}
	out.Status = StatusPending
	out.UpdatedAt = nextUpdatedAt(n.UpdatedAt, now)
	return out, nil
}

// Cancel moves any non-terminal notification to cancelled.
func (n Notification) Cancel(now time.Time) (Notification, error) {
	if n.IsTerminal() {
		return n, transitionError(string(n.Status), string(StatusCancelled))
	}
	out := n.clone()
	out.Status = StatusCancelled
	out.UpdatedAt = nextUpdatedAt(n.UpdatedAt, now)
	return out, nil
}

// Expire moves any non-terminal notification to expired.
func (n Notification) Expire(now time.Time) (Notification, error) {
	if n.IsTerminal() {
		return n, transitionError(string(n.Status), string(StatusExpired))
	}
	out := n.clone()
	out.Status = StatusExpired
	out.UpdatedAt = nextUpdatedAt(n.UpdatedAt, now)
	return out, nil
}

func (n Notification) clone() Notification {
	out := n
	out.Channels = append([]Channel(nil), n.Channels...)
	out.Metadata = cloneMap(n.Metadata)
	out.TemplateVariables = cloneMap(n.TemplateVariables)
	return out
}

func dedupeChannels(in []Channel) []Channel {
	seen := make(map[Channel]struct{}, len(in))
	out := make([]Channel, 0, len(in))
	for _, ch := range in {
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	return out
}
