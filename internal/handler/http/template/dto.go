package template

import (
	"time"

	"notify-dispatch/internal/domain/entity"
	tmplUC "notify-dispatch/internal/usecase/template"
)

// CreateRequest is the body of POST /templates.
type CreateRequest struct {
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	Type        string            `json:"type"`
	Channel     string            `json:"channel"`
	Subject     *string           `json:"subject,omitempty"`
	Body        string            `json:"body"`
	Description string            `json:"description,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Defaults    map[string]any    `json:"defaults,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

func (r CreateRequest) input() tmplUC.CreateInput {
	return tmplUC.CreateInput{
		Name:        r.Name,
		Slug:        r.Slug,
		Type:        entity.NotificationType(r.Type),
		Channel:     entity.Channel(r.Channel),
		Subject:     r.Subject,
		Body:        r.Body,
		Description: r.Description,
		Variables:   r.Variables,
		Defaults:    r.Defaults,
		Metadata:    r.Metadata,
	}
}

// UpdateRequest is the body of PUT /templates/{id}. Omitted fields are kept.
type UpdateRequest struct {
	Name        *string           `json:"name,omitempty"`
	Subject     *string           `json:"subject,omitempty"`
	Body        *string           `json:"body,omitempty"`
	Description *string           `json:"description,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Defaults    map[string]any    `json:"defaults,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

func (r UpdateRequest) update() entity.TemplateUpdate {
	return entity.TemplateUpdate{
		Name:        r.Name,
		Subject:     r.Subject,
		Body:        r.Body,
		Description: r.Description,
		Variables:   r.Variables,
		Defaults:    r.Defaults,
		Metadata:    r.Metadata,
	}
}

// PreviewRequest is the body of POST /templates/{id}/preview.
type PreviewRequest struct {
	Variables map[string]any `json:"variables"`
}

// PreviewResponse is the rendered template.
type PreviewResponse struct {
	Subject *string `json:"subject,omitempty"`
	Body    string  `json:"body"`
}

// DTO is the JSON form of a template.
type DTO struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	Type        string            `json:"type"`
	Channel     string            `json:"channel"`
	Subject     *string           `json:"subject,omitempty"`
	Body        string            `json:"body"`
	Description string            `json:"description,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Defaults    map[string]any    `json:"defaults,omitempty"`
	IsSystem    bool              `json:"is_system"`
	IsActive    bool              `json:"is_active"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func toDTO(t *entity.NotificationTemplate) DTO {
	return DTO{
		ID:          t.ID,
		Name:        t.Name,
		Slug:        t.Slug,
		Type:        string(t.Type),
		Channel:     string(t.Channel),
		Subject:     t.Subject,
		Body:        t.Body,
		Description: t.Description,
		Variables:   t.Variables,
		Defaults:    t.Defaults,
		IsSystem:    t.IsSystem,
		IsActive:    t.IsActive,
		Metadata:    t.Metadata,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
