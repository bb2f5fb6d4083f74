package repository

import (
	"context"

	"notify-dispatch/internal/domain/entity"
)

// TemplateRepository persists notification templates.
// Create returns entity.ErrDuplicateSlug when an active template already uses
// the slug on the same channel.
type TemplateRepository interface {
	Get(ctx context.Context, id string) (*entity.NotificationTemplate, error)
	GetBySlug(ctx context.Context, slug string, channel entity.Channel) (*entity.NotificationTemplate, error)
	ListActive(ctx context.Context) ([]*entity.NotificationTemplate, error)
	Create(ctx context.Context, t *entity.NotificationTemplate) error
	Update(ctx context.Context, t *entity.NotificationTemplate) error
	Delete(ctx context.Context, id string) error
	// InUse reports whether any notification references the template.
	InUse(ctx context.Context, id string) (bool, error)
}
