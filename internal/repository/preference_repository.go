package repository

import (
	"context"

	"notify-dispatch/internal/domain/entity"
)

type PreferenceRepository interface {
	// Get returns entity.ErrPreferenceNotFound when the user has not saved a preference for typ.
	Get(ctx context.Context, userID string, typ entity.NotificationType) (*entity.NotificationPreference, error)
	Upsert(ctx context.Context, p *entity.NotificationPreference) error
}
