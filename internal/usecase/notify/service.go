package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/observability/logging"
	"notify-dispatch/internal/repository"
)

// Service is the notification lifecycle API used by the worker and by
// embedding applications.
type Service interface {
	// Send validates and stores a new notification. Notifications that are due
	// are dispatched before Send returns; scheduled ones are left pending for the
	// scheduler.
	Send(ctx context.Context, in SendInput) (Result, error)

	// Get returns the stored notification.
	Get(ctx context.Context, id string) (*entity.Notification, error)

	// Dispatch sends a stored notification now, if it is due.
	Dispatch(ctx context.Context, id string) (Result, error)

	// Retry consumes one unit of the notification-level retry budget and
	// dispatches a failed notification again with reopened delivery records.
	Retry(ctx context.Context, id string) (Result, error)

	// Cancel stops a notification. In-flight provider calls are not interrupted
	// but no further channel is attempted.
	Cancel(ctx context.Context, id string) (*entity.Notification, error)

	// MarkRead records that the recipient read a delivered notification.
	MarkRead(ctx context.Context, id string) (*entity.Notification, error)

	// ConfirmDelivery applies a provider delivery receipt.
	ConfirmDelivery(ctx context.Context, providerMessageID string) error

	// RecordEngagement applies an opened, clicked or bounced callback.
	RecordEngagement(ctx context.Context, e Engagement) error

	// ChannelHealth reports provider and circuit breaker state per channel.
	ChannelHealth() []ChannelHealthStatus

	// Shutdown waits for in-flight dispatches or until ctx is done.
	Shutdown(ctx context.Context) error
}

// SendInput is an inbound notification request.
type SendInput struct {
	RecipientID string
	Type        entity.NotificationType
	Title       string
	Message     string
	// Channels defaults to in_app when empty.
	Channels          []entity.Channel
	Priority          entity.Priority
	TemplateID        *string
	TemplateVariables map[string]any
	ScheduledFor      *time.Time
	ExpiresAt         *time.Time
	Metadata          map[string]any
	MaxRetries        int
}

// Engagement is a provider callback about a delivered message.
type Engagement struct {
	ProviderMessageID string
	Type              entity.EventType
	Metadata          map[string]any
}

// DefaultChannels is used when a request names no channel.
var DefaultChannels = []entity.Channel{entity.ChannelInApp}

type service struct {
	notifications repository.NotificationRepository
	deliveries    repository.DeliveryRepository
	templates     TemplateSource
	events        EventRecorder
	dispatcher    *Dispatcher
	now           Clock
	newID         func() string
}

// NewService creates the lifecycle service on top of d. The retry scheduler
// shares the same dispatcher so both use one set of circuit breakers.
func NewService(d *Dispatcher) Service {
	return &service{
		notifications: d.deps.Notifications,
		deliveries:    d.deps.Deliveries,
		templates:     d.deps.Templates,
		events:        d.deps.Events,
		dispatcher:    d,
		now:           d.deps.Now,
		newID:         d.deps.NewID,
	}
}

func (s *service) Send(ctx context.Context, in SendInput) (Result, error) {
	channels := in.Channels
	if len(channels) == 0 {
		channels = DefaultChannels
	}

	if in.TemplateID != nil {
		if _, err := s.templates.Resolve(ctx, *in.TemplateID); err != nil {
			return Result{}, fmt.Errorf("send: %w", err)
		}
	}

	n, err := entity.NewNotification(entity.NewNotificationParams{
		ID:                s.newID(),
		RecipientID:       in.RecipientID,
		Type:              in.Type,
		Title:             in.Title,
		Message:           in.Message,
		Channels:          channels,
		Priority:          in.Priority,
		TemplateID:        in.TemplateID,
		TemplateVariables: in.TemplateVariables,
		ScheduledFor:      in.ScheduledFor,
		ExpiresAt:         in.ExpiresAt,
		Metadata:          in.Metadata,
		MaxRetries:        in.MaxRetries,
	}, s.now())
	if err != nil {
		return Result{}, err
	}

	if err := s.notifications.Create(ctx, &n); err != nil {
		return Result{}, fmt.Errorf("create notification: %w", err)
	}
	RecordStatus(string(n.Status))

	logging.FromContext(ctx).Info("notification accepted",
		slog.String("notification_id", n.ID),
		slog.String("recipient_id", n.RecipientID),
		slog.String("type", string(n.Type)),
		slog.Int("channels", len(n.Channels)))

	return s.dispatcher.Dispatch(ctx, n)
}

func (s *service) Get(ctx context.Context, id string) (*entity.Notification, error) {
	return s.notifications.Get(ctx, id)
}

func (s *service) Dispatch(ctx context.Context, id string) (Result, error) {
	n, err := s.notifications.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return s.dispatcher.Dispatch(ctx, *n)
}

func (s *service) Retry(ctx context.Context, id string) (Result, error) {
	n, err := s.notifications.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !n.CanRetry() {
		if n.Status != entity.StatusFailed {
			return Result{}, fmt.Errorf("retry %s: %w", id, entity.ErrInvalidTransition)
		}
		return Result{}, fmt.Errorf("retry %s: %w", id, entity.ErrRetryLimitExceeded)
	}

	pending, err := n.IncrementRetry("", s.now())
	if err != nil {
		return Result{}, err
	}
	if err := s.notifications.Update(ctx, &pending); err != nil {
		return Result{}, fmt.Errorf("retry %s: %w", id, err)
	}
	RecordStatus(string(pending.Status))

	logging.FromContext(ctx).Info("notification retry requested",
		slog.String("notification_id", id),
		slog.Int("retry_count", pending.RetryCount),
		slog.Int("max_retries", pending.MaxRetries))

	return s.dispatcher.Redispatch(ctx, pending)
}

func (s *service) Cancel(ctx context.Context, id string) (*entity.Notification, error) {
	n, err := s.notifications.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cancelled, err := n.Cancel(s.now())
	if err != nil {
		return n, err
	}
	if err := s.notifications.Update(ctx, &cancelled); err != nil {
		return n, fmt.Errorf("cancel %s: %w", id, err)
	}
	RecordStatus(string(cancelled.Status))
	logging.FromContext(ctx).Info("notification cancelled", slog.String("notification_id", id))
	return &cancelled, nil
}

func (s *service) MarkRead(ctx context.Context, id string) (*entity.Notification, error) {
	n, err := s.notifications.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	read, err := n.MarkRead(now)
	if err != nil {
		return n, err
	}
	if err := s.notifications.Update(ctx, &read); err != nil {
		return n, fmt.Errorf("mark read %s: %w", id, err)
	}
	RecordStatus(string(read.Status))

	if read.HasChannel(entity.ChannelInApp) {
		ev := entity.DeliveryEvent{
			Type:           entity.EventOpened,
			NotificationID: id,
			Channel:        entity.ChannelInApp,
			OccurredAt:     now,
		}
		if rec, err := s.deliveries.FindByNotificationAndChannel(ctx, id, entity.ChannelInApp); err == nil {
			ev.DeliveryID = rec.ID
		}
		s.events.Record(ev)
	}
	return &read, nil
}

func (s *service) ConfirmDelivery(ctx context.Context, providerMessageID string) error {
	rec, err := s.deliveries.FindByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		return err
	}
	if rec.Status == entity.DeliveryDelivered {
		return nil
	}

	now := s.now()
	delivered, err := rec.MarkDelivered(now)
	if err != nil {
		return err
	}
	if err := s.deliveries.Update(ctx, &delivered); err != nil {
		return fmt.Errorf("confirm delivery: %w", err)
	}
	s.events.Record(entity.DeliveryEvent{
		Type:           entity.EventDelivered,
		NotificationID: delivered.NotificationID,
		DeliveryID:     delivered.ID,
		Channel:        delivered.Channel,
		OccurredAt:     now,
	})

	ctx = withLogAttrs(ctx, slog.String("notification_id", delivered.NotificationID))
	_, err = s.dispatcher.rollUp(ctx, delivered.NotificationID, nil)
	return err
}

func (s *service) RecordEngagement(ctx context.Context, e Engagement) error {
	switch e.Type {
	case entity.EventOpened, entity.EventClicked, entity.EventBounced:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
	}

	rec, err := s.deliveries.FindByProviderMessageID(ctx, e.ProviderMessageID)
	if err != nil {
		return err
	}
	now := s.now()
	ev := entity.DeliveryEvent{
		Type:           e.Type,
		NotificationID: rec.NotificationID,
		DeliveryID:     rec.ID,
		Channel:        rec.Channel,
		OccurredAt:     now,
		Metadata:       e.Metadata,
	}

	if e.Type == entity.EventBounced {
		bounce := &entity.NotificationSendError{Channel: rec.Channel, Code: "bounced", Err: errors.New("message bounced")}
		ev.ErrorClass = entity.ErrorClass(bounce)
		if rec.Status == entity.DeliverySent {
			failed, err := rec.MarkFailedPermanently(bounce.Error(), now)
			if err != nil {
				return err
			}
			if err := s.deliveries.Update(ctx, &failed); err != nil {
				return fmt.Errorf("record bounce: %w", err)
			}
		}
	}

	s.events.Record(ev)
	return nil
}

func (s *service) ChannelHealth() []ChannelHealthStatus {
	return s.dispatcher.ChannelHealth()
}

func (s *service) Shutdown(ctx context.Context) error {
	return s.dispatcher.Shutdown(ctx)
}
