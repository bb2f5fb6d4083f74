package preference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/repository"
)

// Service loads and stores user preferences.
type Service struct {
	Repo repository.PreferenceRepository
	Now  func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Get returns the stored preference for (userID, typ), or the default
// preference when the user never saved one.
func (s *Service) Get(ctx context.Context, userID string, typ entity.NotificationType) (entity.NotificationPreference, error) {
	p, err := s.Repo.Get(ctx, userID, typ)
	if errors.Is(err, entity.ErrPreferenceNotFound) {
		return entity.DefaultPreference(userID, typ), nil
	}
	if err != nil {
		return entity.NotificationPreference{}, fmt.Errorf("get preference: %w", err)
	}
	return *p, nil
}

// Save replaces the user's preference for next.Type. The first write creates
// the row starting from the defaults.
func (s *Service) Save(ctx context.Context, next entity.NotificationPreference) (entity.NotificationPreference, error) {
	if err := next.Validate(); err != nil {
		return entity.NotificationPreference{}, err
	}

	now := s.now()
	current, err := s.Repo.Get(ctx, next.UserID, next.Type)
	switch {
	case errors.Is(err, entity.ErrPreferenceNotFound):
		base := entity.DefaultPreference(next.UserID, next.Type)
		base.ID = uuid.NewString()
		base.CreatedAt = now
		base.UpdatedAt = now
		current = &base
	case err != nil:
		return entity.NotificationPreference{}, fmt.Errorf("save preference: %w", err)
	}

	replaced, err := current.Replace(next, now)
	if err != nil {
		return entity.NotificationPreference{}, err
	}
	if replaced.Frequency == "" {
		replaced.Frequency = entity.FrequencyImmediate
	}
	if replaced.Timezone == "" {
		replaced.Timezone = "UTC"
	}
	if err := s.Repo.Upsert(ctx, &replaced); err != nil {
		return entity.NotificationPreference{}, fmt.Errorf("save preference: %w", err)
	}
	return replaced, nil
}
