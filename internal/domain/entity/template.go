package entity

import (
	"fmt"
	"regexp"
	"time"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

// NotificationTemplate is a named rendering source for one channel.
// Updates produce a new snapshot with a bumped UpdatedAt; templates in use are
// deactivated instead of deleted.
type NotificationTemplate struct {
	ID          string
	Name        string
	Slug        string
	Type        NotificationType
	Channel     Channel
	Subject     *string
	Body        string
	Description string
	// Variables documents the expected variables (name -> description or type).
	Variables map[string]string
	// Defaults supplies fallback values for variables the caller omits.
	Defaults  map[string]any
	IsSystem  bool
	IsActive  bool
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TemplateUpdate lists the mutable template fields. Nil fields are left unchanged.
type TemplateUpdate struct {
	Name        *string
	Subject     *string
	Body        *string
	Description *string
	Variables   map[string]string
	Defaults    map[string]any
	Metadata    map[string]any
}

// Validate checks the structural rules of the template.
func (t NotificationTemplate) Validate() error {
	if t.ID == "" {
		return &ValidationError{Field: "id", Message: "id is required"}
	}
	if t.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if !slugPattern.MatchString(t.Slug) {
		return &ValidationError{Field: "slug", Message: fmt.Sprintf("invalid slug %q", t.Slug)}
	}
	if !t.Type.IsValid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown notification type %q", t.Type)}
	}
	if !t.Channel.IsValid() {
		return &ValidationError{Field: "channel", Message: fmt.Sprintf("unknown channel %q", t.Channel)}
	}
	return nil
}

// Apply returns a new snapshot with the update applied.
func (t NotificationTemplate) Apply(u TemplateUpdate, now time.Time) (NotificationTemplate, error) {
	out := t.clone()
	if u.Name != nil {
		out.Name = *u.Name
	}
	if u.Subject != nil {
		subject := *u.Subject
		out.Subject = &subject
	}
	if u.Body != nil {
		out.Body = *u.Body
	}
	if u.Description != nil {
		out.Description = *u.Description
	}
	if u.Variables != nil {
		out.Variables = cloneStringMap(u.Variables)
	}
	if u.Defaults != nil {
		out.Defaults = cloneMap(u.Defaults)
	}
	if u.Metadata != nil {
		out.Metadata = cloneMap(u.Metadata)
	}
	if err := out.Validate(); err != nil {
		return t, err
	}
	out.UpdatedAt = nextUpdatedAt(t.UpdatedAt, now)
	return out, nil
}

// Deactivate returns an inactive snapshot of the template.
func (t NotificationTemplate) Deactivate(now time.Time) NotificationTemplate {
	out := t.clone()
	out.IsActive = false
	out.UpdatedAt = nextUpdatedAt(t.UpdatedAt, now)
	return out
}

// CheckDeletable returns ErrSystemTemplate for system templates.
func (t NotificationTemplate) CheckDeletable() error {
	if t.IsSystem {
		return fmt.Errorf("template %s: %w", t.Slug, ErrSystemTemplate)
	}
	return nil
}

func (t NotificationTemplate) clone() NotificationTemplate {
	out := t
	if t.Subject != nil {
		subject := *t.Subject
		out.Subject = &subject
	}
	out.Variables = cloneStringMap(t.Variables)
	out.Defaults = cloneMap(t.Defaults)
	out.Metadata = cloneMap(t.Metadata)
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
