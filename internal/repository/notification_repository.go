package repository

import (
	"context"
	"time"

	"notify-dispatch/internal/domain/entity"
)

// NotificationRepository persists notifications. Get returns
// entity.ErrNotificationNotFound when no row matches. Create sets Version to 1
// and a successful Update increments it. Update returns
// entity.ErrConcurrentModification when the stored version differs, or when
// the stored notification was cancelled or expired in the meantime and the
// update would overwrite that.
type NotificationRepository interface {
	Get(ctx context.Context, id string) (*entity.Notification, error)
	Create(ctx context.Context, n *entity.Notification) error
	Update(ctx context.Context, n *entity.Notification) error
	// ListDueScheduled returns pending notifications that are due at now
	// (no schedule, or a scheduled time that has passed).
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*entity.Notification, error)
	// ListStuck returns processing notifications last updated at or before olderThan.
	ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]*entity.Notification, error)
	// ListExpirable returns non-terminal notifications whose expiry has passed.
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]*entity.Notification, error)
}

// InboxFilter selects one recipient's notifications.
type InboxFilter struct {
	RecipientID string
	UnreadOnly  bool
	Type        entity.NotificationType
}

// InboxRepository lists a recipient's notifications, newest first.
type InboxRepository interface {
	ListByRecipient(ctx context.Context, f InboxFilter, offset, limit int) ([]*entity.Notification, error)
	CountByRecipient(ctx context.Context, f InboxFilter) (int64, error)
}
