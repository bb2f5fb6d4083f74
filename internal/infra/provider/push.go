package provider

import (
	"context"
	"errors"
	"strings"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/usecase/notify"
)

// PushProvider sends push notifications through an HTTP push gateway.
//
// Request:  POST {URL} {"token","title","body","priority","data"}
// Response: 2xx {"id": "<gateway message id>"}
type PushProvider struct {
	cfg    PushConfig
	sender *httpSender
}

type pushPayload struct {
	Token    string            `json:"token"`
	Title    string            `json:"title,omitempty"`
	Body     string            `json:"body"`
	Priority string            `json:"priority"`
	Data     map[string]string `json:"data,omitempty"`
}

// NewPushProvider creates a push provider. URL is required.
func NewPushProvider(cfg PushConfig) (*PushProvider, error) {
	if cfg.URL == "" {
		return nil, errors.New("push provider: gateway url is required")
	}
	s := newHTTPSender(entity.ChannelPush, cfg.Timeout, cfg.RateLimit, cfg.Burst)
	s.decorate = bearer(cfg.APIKey)
	return &PushProvider{cfg: cfg, sender: s}, nil
}

// Channel implements notify.Provider.
func (p *PushProvider) Channel() entity.Channel { return entity.ChannelPush }

// Send implements notify.Provider.
func (p *PushProvider) Send(ctx context.Context, msg notify.Message) (notify.SendResult, error) {
	if strings.TrimSpace(msg.Recipient) == "" {
		return notify.SendResult{}, &entity.NotificationSendError{
			Channel: entity.ChannelPush,
			Code:    "invalid_recipient",
			Err:     errors.New("empty device token"),
		}
	}

	resp, _, err := p.sender.post(ctx, p.cfg.URL, pushPayload{
		Token:    msg.Recipient,
		Title:    subjectOf(msg.Subject),
		Body:     msg.Body,
		Priority: pushPriority(msg.Priority),
		Data: map[string]string{
			"notification_id": msg.NotificationID,
			"type":            string(msg.Type),
		},
	})
	if err != nil {
		return notify.SendResult{}, err
	}
	return notify.SendResult{ProviderMessageID: messageID(resp, msg.DeliveryID)}, nil
}

// pushPriority maps notification priority onto the two levels push services know.
func pushPriority(p entity.Priority) string {
	if p == entity.PriorityHigh || p == entity.PriorityUrgent {
		return "high"
	}
	return "normal"
}
