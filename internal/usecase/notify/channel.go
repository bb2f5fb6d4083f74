// Package notify dispatches notifications to their channel providers.
// It owns the per-channel fan-out, delivery record bookkeeping, the aggregate
// status roll-up and the notification lifecycle operations exposed to callers.
package notify

import (
	"context"
	"time"

	"notify-dispatch/internal/domain/entity"
)

// Message is the rendered payload handed to a provider.
type Message struct {
	NotificationID string
	DeliveryID     string
	Channel        entity.Channel
	Recipient      string
	// Subject is nil when neither the template nor the channel uses one.
	Subject  *string
	Body     string
	Type     entity.NotificationType
	Priority entity.Priority
	Metadata map[string]any
}

// SendResult is returned by a provider that accepted a message.
type SendResult struct {
	ProviderMessageID string
	// Delivered is true when the provider confirmed delivery synchronously
	// (in-app inbox write, webhook 2xx). Otherwise the record stays sent until
	// a delivery receipt arrives.
	Delivered bool
}

// Provider sends messages over one channel.
//
// Failure contract:
//   - *entity.NotificationSendError: permanent rejection, never retried
//   - *entity.ProviderNotAvailableError, *entity.NotificationDeliveryError or any
//     other error: transient, consumes retry budget
//
// Implementations must respect context cancellation and be safe for concurrent use.
type Provider interface {
	Channel() entity.Channel
	Send(ctx context.Context, msg Message) (SendResult, error)
}

// Providers is the dispatch table from channel to provider, built once at startup.
// A nil field means the channel has no provider configured.
type Providers struct {
	Email   Provider
	SMS     Provider
	Push    Provider
	InApp   Provider
	Webhook Provider
}

// For returns the provider registered for ch, or nil.
func (p Providers) For(ch entity.Channel) Provider {
	switch ch {
	case entity.ChannelEmail:
		return p.Email
	case entity.ChannelSMS:
		return p.SMS
	case entity.ChannelPush:
		return p.Push
	case entity.ChannelInApp:
		return p.InApp
	case entity.ChannelWebhook:
		return p.Webhook
	default:
		return nil
	}
}

// Configured returns the channels that have a provider, in entity.AllChannels order.
func (p Providers) Configured() []entity.Channel {
	var out []entity.Channel
	for _, ch := range entity.AllChannels {
		if p.For(ch) != nil {
			out = append(out, ch)
		}
	}
	return out
}

// RecipientResolver maps a notification's recipient to a channel address
// (email address, phone number, device token, webhook URL or inbox id).
type RecipientResolver interface {
	Resolve(ctx context.Context, n entity.Notification, ch entity.Channel) (string, error)
}

// TemplateSource loads active templates for rendering.
type TemplateSource interface {
	Resolve(ctx context.Context, id string) (*entity.NotificationTemplate, error)
}

// PreferenceSource returns the effective preference, defaults included.
type PreferenceSource interface {
	Get(ctx context.Context, userID string, typ entity.NotificationType) (entity.NotificationPreference, error)
}

// EventRecorder receives delivery and engagement events. Record must not block.
type EventRecorder interface {
	Record(ev entity.DeliveryEvent)
}

type nopRecorder struct{}

func (nopRecorder) Record(entity.DeliveryEvent) {}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time
