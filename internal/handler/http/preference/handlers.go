// Package preference exposes per-user channel preferences over HTTP.
package preference

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/handler/http/respond"
)

// Service is the subset of the preference usecase the handlers call.
type Service interface {
	Get(ctx context.Context, userID string, typ entity.NotificationType) (entity.NotificationPreference, error)
	Save(ctx context.Context, p entity.NotificationPreference) (entity.NotificationPreference, error)
}

// Register mounts the preference routes on mux.
func Register(mux *http.ServeMux, svc Service) {
	mux.Handle("GET /users/{userID}/preferences/{type}", GetHandler{svc})
	mux.Handle("PUT /users/{userID}/preferences/{type}", PutHandler{svc})
}

// DTO is the JSON form of a preference. Quiet-hour bounds are "HH:mm".
type DTO struct {
	UserID            string         `json:"user_id"`
	Type              string         `json:"type"`
	Email             bool           `json:"email"`
	SMS               bool           `json:"sms"`
	Push              bool           `json:"push"`
	InApp             bool           `json:"in_app"`
	Frequency         string         `json:"frequency"`
	QuietHoursEnabled bool           `json:"quiet_hours_enabled"`
	QuietHoursStart   string         `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd     string         `json:"quiet_hours_end,omitempty"`
	Timezone          string         `json:"timezone"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	UpdatedAt         *time.Time     `json:"updated_at,omitempty"`
}

// PutRequest replaces the preference. Every channel flag must be sent.
type PutRequest struct {
	Email             bool           `json:"email"`
	SMS               bool           `json:"sms"`
	Push              bool           `json:"push"`
	InApp             bool           `json:"in_app"`
	Frequency         string         `json:"frequency,omitempty"`
	QuietHoursEnabled bool           `json:"quiet_hours_enabled"`
	QuietHoursStart   string         `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd     string         `json:"quiet_hours_end,omitempty"`
	Timezone          string         `json:"timezone,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

func toDTO(p entity.NotificationPreference) DTO {
	dto := DTO{
		UserID:            p.UserID,
		Type:              string(p.Type),
		Email:             p.Email,
		SMS:               p.SMS,
		Push:              p.Push,
		InApp:             p.InApp,
		Frequency:         string(p.Frequency),
		QuietHoursEnabled: p.QuietHoursEnabled,
		QuietHoursStart:   p.QuietHoursStart,
		QuietHoursEnd:     p.QuietHoursEnd,
		Timezone:          p.Timezone,
		Metadata:          p.Metadata,
	}
	// defaults have never been stored
	if !p.UpdatedAt.IsZero() {
		updated := p.UpdatedAt
		dto.UpdatedAt = &updated
	}
	return dto
}

// GetHandler returns the stored preference or the defaults.
type GetHandler struct{ Svc Service }

func (h GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	typ := entity.NotificationType(r.PathValue("type"))
	if !typ.IsValid() {
		respond.DomainError(w, &entity.ValidationError{Field: "type", Message: "unknown notification type " + strconv.Quote(string(typ))})
		return
	}
	p, err := h.Svc.Get(r.Context(), r.PathValue("userID"), typ)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(p))
}

// PutHandler stores the full preference for (user, type).
type PutHandler struct{ Svc Service }

func (h PutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req PutRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err)
		return
	}
	p, err := h.Svc.Save(r.Context(), entity.NotificationPreference{
		UserID:            r.PathValue("userID"),
		Type:              entity.NotificationType(r.PathValue("type")),
		Email:             req.Email,
		SMS:               req.SMS,
		Push:              req.Push,
		InApp:             req.InApp,
		Frequency:         entity.Frequency(req.Frequency),
		QuietHoursEnabled: req.QuietHoursEnabled,
		QuietHoursStart:   req.QuietHoursStart,
		QuietHoursEnd:     req.QuietHoursEnd,
		Timezone:          req.Timezone,
		Metadata:          req.Metadata,
	})
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(p))
}
