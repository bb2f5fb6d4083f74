package repository

import (
	"context"
	"time"

	"notify-dispatch/internal/domain/entity"
)

// DeliveryRepository persists per-channel delivery records.
//
// Create fails with entity.ErrConcurrentModification when a record for the
// same (notification, channel) already exists. Update performs an optimistic
// version check, bumps d.Version on success and returns
// entity.ErrConcurrentModification when the stored version differs.
type DeliveryRepository interface {
	Get(ctx context.Context, id string) (*entity.Delivery, error)
	FindByNotificationAndChannel(ctx context.Context, notificationID string, channel entity.Channel) (*entity.Delivery, error)
	FindByProviderMessageID(ctx context.Context, providerMessageID string) (*entity.Delivery, error)
	ListByNotification(ctx context.Context, notificationID string) ([]*entity.Delivery, error)
	Create(ctx context.Context, d *entity.Delivery) error
	Update(ctx context.Context, d *entity.Delivery) error
	// ListDueForRetry returns retryable failed records whose next retry time has
	// passed, excluding records of cancelled or expired notifications.
	ListDueForRetry(ctx context.Context, now time.Time, limit int) ([]*entity.Delivery, error)
	// ListStale returns in-flight records claimed at or before claimedBefore.
	ListStale(ctx context.Context, claimedBefore time.Time, limit int) ([]*entity.Delivery, error)
}
