package template

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/repository"
)

// CreateInput represents the input parameters for creating a template.
type CreateInput struct {
	Name        string
	Slug        string
	Type        entity.NotificationType
	Channel     entity.Channel
	Subject     *string
	Body        string
	Description string
	Variables   map[string]string
	Defaults    map[string]any
	IsSystem    bool
	Metadata    map[string]any
}

// RemoveResult tells the caller whether Remove deleted or only deactivated the template.
type RemoveResult string

const (
	Removed     RemoveResult = "deleted"
	Deactivated RemoveResult = "deactivated"
)

// Service manages the template catalogue.
type Service struct {
	Repo repository.TemplateRepository
	Now  func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Create validates and stores a new active template.
// Slugs are unique among active templates of the same channel.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.NotificationTemplate, error) {
	now := s.now()
	t := entity.NotificationTemplate{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Slug:        in.Slug,
		Type:        in.Type,
		Channel:     in.Channel,
		Subject:     in.Subject,
		Body:        in.Body,
		Description: in.Description,
		Variables:   in.Variables,
		Defaults:    in.Defaults,
		IsSystem:    in.IsSystem,
		IsActive:    true,
		Metadata:    in.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := checkSyntax(t); err != nil {
		return nil, err
	}

	existing, err := s.Repo.GetBySlug(ctx, t.Slug, t.Channel)
	switch {
	case err == nil && existing.IsActive:
		return nil, fmt.Errorf("create template %s/%s: %w", t.Channel, t.Slug, entity.ErrDuplicateSlug)
	case err != nil && !errors.Is(err, entity.ErrTemplateNotFound):
		return nil, fmt.Errorf("create template: %w", err)
	}

	if err := s.Repo.Create(ctx, &t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return &t, nil
}

// Get returns a template whether or not it is active.
func (s *Service) Get(ctx context.Context, id string) (*entity.NotificationTemplate, error) {
	return s.Repo.Get(ctx, id)
}

// List returns the active templates.
func (s *Service) List(ctx context.Context) ([]*entity.NotificationTemplate, error) {
	ts, err := s.Repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return ts, nil
}

// Update applies u and stores the resulting snapshot.
func (s *Service) Update(ctx context.Context, id string, u entity.TemplateUpdate) (*entity.NotificationTemplate, error) {
	current, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	next, err := current.Apply(u, s.now())
	if err != nil {
		return nil, err
	}
	if err := checkSyntax(next); err != nil {
		return nil, err
	}
	if err := s.Repo.Update(ctx, &next); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return &next, nil
}

// Remove deletes an unused template. Templates referenced by notifications are
// deactivated instead, and system templates are never removed.
func (s *Service) Remove(ctx context.Context, id string) (RemoveResult, error) {
	t, err := s.Repo.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("remove template: %w", err)
	}
	if err := t.CheckDeletable(); err != nil {
		return "", err
	}

	inUse, err := s.Repo.InUse(ctx, id)
	if err != nil {
		return "", fmt.Errorf("remove template: %w", err)
	}
	if inUse {
		inactive := t.Deactivate(s.now())
		if err := s.Repo.Update(ctx, &inactive); err != nil {
			return "", fmt.Errorf("deactivate template: %w", err)
		}
		return Deactivated, nil
	}

	if err := s.Repo.Delete(ctx, id); err != nil {
		return "", fmt.Errorf("delete template: %w", err)
	}
	return Removed, nil
}

// Resolve loads a template for dispatch. Inactive templates are rejected with an
// error matching both ErrInactiveTemplate and entity.ErrTemplateNotFound.
func (s *Service) Resolve(ctx context.Context, id string) (*entity.NotificationTemplate, error) {
	t, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, fmt.Errorf("template %s: %w: %w", id, ErrInactiveTemplate, entity.ErrTemplateNotFound)
	}
	return t, nil
}

// Preview renders a stored template without dispatching anything.
func (s *Service) Preview(ctx context.Context, id string, vars map[string]any) (Rendered, error) {
	t, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Rendered{}, fmt.Errorf("preview template: %w", err)
	}
	return RenderTemplate(*t, vars)
}

// SeedSystem creates catalogue templates whose (slug, channel) is not stored yet.
// Existing rows are left as they are so administrators can edit them.
func (s *Service) SeedSystem(ctx context.Context, catalogue []entity.NotificationTemplate) (int, error) {
	created := 0
	for _, c := range catalogue {
		_, err := s.Repo.GetBySlug(ctx, c.Slug, c.Channel)
		if err == nil {
			continue
		}
		if !errors.Is(err, entity.ErrTemplateNotFound) {
			return created, fmt.Errorf("seed template %s: %w", c.Slug, err)
		}

		if _, err := s.Create(ctx, CreateInput{
			Name:        c.Name,
			Slug:        c.Slug,
			Type:        c.Type,
			Channel:     c.Channel,
			Subject:     c.Subject,
			Body:        c.Body,
			Description: c.Description,
			Variables:   c.Variables,
			Defaults:    c.Defaults,
			IsSystem:    true,
			Metadata:    c.Metadata,
		}); err != nil {
			return created, fmt.Errorf("seed template %s: %w", c.Slug, err)
		}
		created++
	}

	if created > 0 {
		slog.Info("system templates seeded", slog.Int("created", created), slog.Int("catalogue", len(catalogue)))
	}
	return created, nil
}

// checkSyntax renders with no variables so malformed placeholders are caught on write.
func checkSyntax(t entity.NotificationTemplate) error {
	_, err := RenderTemplate(t, nil)
	return err
}
