package provider

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/observability/logging"
	"notify-dispatch/internal/usecase/notify"
)

// NoopProvider accepts every message without sending it. It stands in for
// real providers in dry-run deployments.
type NoopProvider struct {
	channel entity.Channel
}

// NewNoopProvider creates a dry-run provider for ch.
func NewNoopProvider(ch entity.Channel) *NoopProvider {
	return &NoopProvider{channel: ch}
}

// Channel implements notify.Provider.
func (p *NoopProvider) Channel() entity.Channel { return p.channel }

// Send implements notify.Provider.
func (p *NoopProvider) Send(ctx context.Context, msg notify.Message) (notify.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return notify.SendResult{}, err
	}
	logging.FromContext(ctx).Debug("dry run: message not sent",
		slog.String("channel", string(p.channel)),
		slog.String("notification_id", msg.NotificationID),
		slog.String("delivery_id", msg.DeliveryID))
	return notify.SendResult{ProviderMessageID: "noop-" + uuid.NewString()}, nil
}
