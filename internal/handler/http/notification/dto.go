package notification

import (
	"time"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/handler/http/respond"
	"notify-dispatch/internal/usecase/notify"
)

// SendRequest is the body of POST /notifications.
type SendRequest struct {
	RecipientID       string         `json:"recipient_id"`
	Type              string         `json:"type"`
	Title             string         `json:"title"`
	Message           string         `json:"message"`
	Channels          []string       `json:"channels,omitempty"`
	Priority          string         `json:"priority,omitempty"`
	TemplateID        *string        `json:"template_id,omitempty"`
	TemplateVariables map[string]any `json:"template_variables,omitempty"`
	ScheduledFor      *time.Time     `json:"scheduled_for,omitempty"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	MaxRetries        int            `json:"max_retries,omitempty"`
}

func (r SendRequest) input() notify.SendInput {
	channels := make([]entity.Channel, 0, len(r.Channels))
	for _, c := range r.Channels {
		channels = append(channels, entity.Channel(c))
	}
	return notify.SendInput{
		RecipientID:       r.RecipientID,
		Type:              entity.NotificationType(r.Type),
		Title:             r.Title,
		Message:           r.Message,
		Channels:          channels,
		Priority:          entity.Priority(r.Priority),
		TemplateID:        r.TemplateID,
		TemplateVariables: r.TemplateVariables,
		ScheduledFor:      r.ScheduledFor,
		ExpiresAt:         r.ExpiresAt,
		Metadata:          r.Metadata,
		MaxRetries:        r.MaxRetries,
	}
}

// DTO is the JSON form of a notification.
type DTO struct {
	ID                string         `json:"id"`
	RecipientID       string         `json:"recipient_id"`
	Type              string         `json:"type"`
	Title             string         `json:"title"`
	Message           string         `json:"message"`
	Channels          []string       `json:"channels"`
	Status            string         `json:"status"`
	Priority          string         `json:"priority"`
	TemplateID        *string        `json:"template_id,omitempty"`
	TemplateVariables map[string]any `json:"template_variables,omitempty"`
	ScheduledFor      *time.Time     `json:"scheduled_for,omitempty"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time     `json:"delivered_at,omitempty"`
	ReadAt            *time.Time     `json:"read_at,omitempty"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	RetryCount        int            `json:"retry_count"`
	MaxRetries        int            `json:"max_retries"`
	LastError         string         `json:"last_error,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func toDTO(n *entity.Notification) DTO {
	channels := make([]string, len(n.Channels))
	for i, c := range n.Channels {
		channels[i] = string(c)
	}
	return DTO{
		ID:                n.ID,
		RecipientID:       n.RecipientID,
		Type:              string(n.Type),
		Title:             n.Title,
		Message:           n.Message,
		Channels:          channels,
		Status:            string(n.Status),
		Priority:          string(n.Priority),
		TemplateID:        n.TemplateID,
		TemplateVariables: n.TemplateVariables,
		ScheduledFor:      n.ScheduledFor,
		SentAt:            n.SentAt,
		DeliveredAt:       n.DeliveredAt,
		ReadAt:            n.ReadAt,
		ExpiresAt:         n.ExpiresAt,
		Metadata:          n.Metadata,
		RetryCount:        n.RetryCount,
		MaxRetries:        n.MaxRetries,
		LastError:         n.LastError,
		CreatedAt:         n.CreatedAt,
		UpdatedAt:         n.UpdatedAt,
	}
}

// ResultDTO is the JSON form of a dispatch result.
type ResultDTO struct {
	NotificationID string       `json:"notification_id"`
	Status         string       `json:"status"`
	Scheduled      bool         `json:"scheduled"`
	DeferredUntil  *time.Time   `json:"deferred_until,omitempty"`
	Outcomes       []OutcomeDTO `json:"outcomes"`
}

// OutcomeDTO is one channel of a dispatch result. A quiet-hours hold has
// status "deferred" and deferred_until; the stored delivery record reads as
// failed with the same time under metadata key "deferred_until", and is not a
// provider failure.
type OutcomeDTO struct {
	Channel           string     `json:"channel"`
	Status            string     `json:"status"`
	DeliveryID        string     `json:"delivery_id,omitempty"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	Error             string     `json:"error,omitempty"`
	NextRetryAt       *time.Time `json:"next_retry_at,omitempty"`
	DeferredUntil     *time.Time `json:"deferred_until,omitempty"`
}

func toResultDTO(r notify.Result) ResultDTO {
	outcomes := make([]OutcomeDTO, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		dto := OutcomeDTO{
			Channel:           string(o.Channel),
			Status:            string(o.Status),
			DeliveryID:        o.DeliveryID,
			ProviderMessageID: o.ProviderMessageID,
			NextRetryAt:       o.NextRetryAt,
			DeferredUntil:     o.DeferredUntil,
		}
		if o.Err != nil {
			dto.Error = respond.SanitizeError(o.Err)
		}
		outcomes = append(outcomes, dto)
	}
	return ResultDTO{
		NotificationID: r.NotificationID,
		Status:         string(r.Status),
		Scheduled:      r.Scheduled,
		DeferredUntil:  r.DeferredUntil(),
		Outcomes:       outcomes,
	}
}

// DeliveryCallback is the body of POST /callbacks/delivery.
type DeliveryCallback struct {
	ProviderMessageID string `json:"provider_message_id"`
}

// EngagementCallback is the body of POST /callbacks/engagement.
type EngagementCallback struct {
	ProviderMessageID string         `json:"provider_message_id"`
	Event             string         `json:"event"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}
