package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/observability/logging"
	"notify-dispatch/internal/usecase/notify"
)

// Publisher is the subset of *redis.Client used for live inbox updates.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// InboxEvent is published to InboxChannel(recipient) when an in-app
// notification lands in the inbox.
type InboxEvent struct {
	NotificationID string    `json:"notification_id"`
	Type           string    `json:"type"`
	Priority       string    `json:"priority"`
	Subject        string    `json:"subject,omitempty"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// InboxChannel is the pub/sub channel for a recipient's live inbox.
func InboxChannel(prefix, recipient string) string {
	return prefix + recipient
}

// InAppProvider delivers to the in-app inbox. The notification row is the
// inbox entry, so delivery is confirmed synchronously; connected clients are
// told through a Redis publish when a publisher is configured.
type InAppProvider struct {
	pub    Publisher
	prefix string
	now    func() time.Time
}

// NewInAppProvider creates an in-app provider. pub may be nil.
func NewInAppProvider(pub Publisher, channelPrefix string) *InAppProvider {
	if channelPrefix == "" {
		channelPrefix = "inbox:"
	}
	return &InAppProvider{
		pub:    pub,
		prefix: channelPrefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Channel implements notify.Provider.
func (p *InAppProvider) Channel() entity.Channel { return entity.ChannelInApp }

// Send implements notify.Provider. A failed publish is logged but does not
// fail the delivery; clients catch up from the inbox on reconnect.
func (p *InAppProvider) Send(ctx context.Context, msg notify.Message) (notify.SendResult, error) {
	result := notify.SendResult{ProviderMessageID: msg.NotificationID, Delivered: true}
	if p.pub == nil {
		return result, nil
	}

	data, err := json.Marshal(InboxEvent{
		NotificationID: msg.NotificationID,
		Type:           string(msg.Type),
		Priority:       string(msg.Priority),
		Subject:        subjectOf(msg.Subject),
		Body:           msg.Body,
		CreatedAt:      p.now(),
	})
	if err != nil {
		return result, nil
	}

	if err := p.pub.Publish(ctx, InboxChannel(p.prefix, msg.Recipient), data).Err(); err != nil {
		logging.FromContext(ctx).Warn("inbox publish failed",
			slog.String("notification_id", msg.NotificationID),
			slog.String("recipient", msg.Recipient),
			slog.Any("error", err))
	}
	return result, nil
}
