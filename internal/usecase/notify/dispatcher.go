package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/observability/logging"
	"notify-dispatch/internal/observability/tracing"
	"notify-dispatch/internal/repository"
	"notify-dispatch/internal/resilience/circuitbreaker"
	"notify-dispatch/internal/usecase/preference"
	tmpl "notify-dispatch/internal/usecase/template"
)

// NoEligiblePolicy decides what happens to a notification whose requested
// channels are all disabled by the recipient's preferences.
type NoEligiblePolicy string

const (
	// NoEligibleFail marks the notification failed with ErrNoEligibleChannel.
	NoEligibleFail NoEligiblePolicy = "fail"
	// NoEligibleKeepProcessing leaves the notification processing.
	NoEligibleKeepProcessing NoEligiblePolicy = "keep_processing"
)

// IsValid reports whether the policy is known.
func (p NoEligiblePolicy) IsValid() bool {
	return p == NoEligibleFail || p == NoEligibleKeepProcessing
}

const quietHoursReason = "deferred: quiet hours"

// Config tunes the dispatcher.
type Config struct {
	// ProviderTimeout bounds every provider invocation.
	ProviderTimeout time.Duration
	// DeliveryMaxRetries is the per-channel retry budget of new delivery records.
	DeliveryMaxRetries int
	// ClaimLease is how long an in-flight record may stay unresolved before
	// another worker may reclaim it.
	ClaimLease time.Duration
	// NoEligiblePolicy applies when every channel is disabled.
	NoEligiblePolicy NoEligiblePolicy
	// Breaker builds the circuit breaker configuration for a channel.
	// Nil uses circuitbreaker.ProviderConfig.
	Breaker func(ch entity.Channel) circuitbreaker.Config
}

// DefaultConfig returns the dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		ProviderTimeout:    10 * time.Second,
		DeliveryMaxRetries: entity.DefaultDeliveryMaxRetries,
		ClaimLease:         5 * time.Minute,
		NoEligiblePolicy:   NoEligibleFail,
	}
}

// Deps are the collaborators of the dispatcher and the lifecycle service.
type Deps struct {
	Notifications repository.NotificationRepository
	Deliveries    repository.DeliveryRepository
	Templates     TemplateSource
	Preferences   PreferenceSource
	Recipients    RecipientResolver
	Providers     Providers
	// Events is optional.
	Events EventRecorder
	// Now and NewID are optional; they default to time.Now().UTC and uuid.NewString.
	Now   Clock
	NewID func() string
}

func (d Deps) withDefaults() Deps {
	if d.Events == nil {
		d.Events = nopRecorder{}
	}
	if d.Recipients == nil {
		d.Recipients = MetadataRecipients{}
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

// Dispatcher sends one notification to all of its requested channels
// concurrently and rolls the channel results up into the notification status.
//
// Delivery records are the only shared mutable state. Every change goes
// through the repository's optimistic version check, so at most one attempt per
// (notification, channel) is in flight across all workers.
type Dispatcher struct {
	deps     Deps
	cfg      Config
	breakers map[entity.Channel]*circuitbreaker.Breaker

	wg      sync.WaitGroup
	closing atomic.Bool
}

// NewDispatcher creates a dispatcher with one circuit breaker per configured provider.
func NewDispatcher(deps Deps, cfg Config) *Dispatcher {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultConfig().ProviderTimeout
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = DefaultConfig().ClaimLease
	}
	if cfg.DeliveryMaxRetries < 0 {
		cfg.DeliveryMaxRetries = entity.DefaultDeliveryMaxRetries
	}
	if !cfg.NoEligiblePolicy.IsValid() {
		cfg.NoEligiblePolicy = NoEligibleFail
	}
	if cfg.Breaker == nil {
		cfg.Breaker = func(ch entity.Channel) circuitbreaker.Config {
			return circuitbreaker.ProviderConfig(string(ch))
		}
	}

	d := &Dispatcher{
		deps:     deps.withDefaults(),
		cfg:      cfg,
		breakers: make(map[entity.Channel]*circuitbreaker.Breaker),
	}

	configured := d.deps.Providers.Configured()
	for _, ch := range configured {
		bcfg := cfg.Breaker(ch)
		// permanent rejections say nothing about provider health
		bcfg.Ignore = func(err error) bool { return !entity.IsRetryable(err) }
		bcfg.OnOpen = func(string) { RecordCircuitBreakerOpen(string(ch)) }
		bcfg.Now = d.deps.Now
		d.breakers[ch] = circuitbreaker.New(bcfg)
	}
	SetProvidersConfigured(len(configured))

	return d
}

// Dispatch sends n to every requested channel that has no resolved delivery
// record yet. Channels whose earlier attempt failed keep their retry schedule.
//
// The returned error is non-nil only when the dispatch could not run at all
// (storage failure, notification not dispatchable). Provider failures are
// recorded on the delivery records and reported in Result.Outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, n entity.Notification) (Result, error) {
	return d.dispatch(ctx, n, false)
}

// Redispatch is Dispatch for a notification-level retry: failed delivery
// records are reopened with a fresh retry budget.
func (d *Dispatcher) Redispatch(ctx context.Context, n entity.Notification) (Result, error) {
	return d.dispatch(ctx, n, true)
}

func (d *Dispatcher) dispatch(ctx context.Context, n entity.Notification, reopen bool) (Result, error) {
	if d.closing.Load() {
		return Result{}, ErrShuttingDown
	}
	d.wg.Add(1)
	defer d.wg.Done()

	ctx, span := tracing.GetTracer().Start(ctx, "notify.Dispatch",
		trace.WithAttributes(
			attribute.String("notification.id", n.ID),
			attribute.Int("notification.channels", len(n.Channels)),
		))
	defer span.End()

	ctx = withLogAttrs(ctx, slog.String("notification_id", n.ID))
	logger := logging.FromContext(ctx)
	res := Result{NotificationID: n.ID, Status: n.Status}
	now := d.deps.Now()

	switch n.Status {
	case entity.StatusPending, entity.StatusProcessing, entity.StatusSent:
	default:
		return res, fmt.Errorf("%w: status %s", ErrNotDispatchable, n.Status)
	}

	if n.IsExpired(now) {
		expired, err := d.expire(ctx, n, now)
		if err != nil {
			return res, err
		}
		res.Status = expired.Status
		return res, nil
	}

	if !n.IsDue(now) {
		res.Scheduled = true
		return res, nil
	}

	pref, err := d.deps.Preferences.Get(ctx, n.RecipientID, n.Type)
	if err != nil {
		return res, fmt.Errorf("load preference: %w", err)
	}
	content, renderErr, err := d.render(ctx, n)
	if err != nil {
		return res, err
	}
	if renderErr != nil {
		logger.Warn("notification content cannot be rendered", slog.Any("error", renderErr))
	}

	if n.Status == entity.StatusPending {
		processing, err := n.MarkProcessing(now)
		if err != nil {
			return res, err
		}
		if err := d.deps.Notifications.Update(ctx, &processing); err != nil {
			if errors.Is(err, entity.ErrConcurrentModification) {
				return res, fmt.Errorf("%w: changed concurrently", ErrNotDispatchable)
			}
			return res, fmt.Errorf("mark processing: %w", err)
		}
		RecordStatus(string(entity.StatusProcessing))
		n = processing
	}

	res.Outcomes = make([]ChannelOutcome, len(n.Channels))
	var g errgroup.Group
	for i, ch := range n.Channels {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic in channel dispatch",
						slog.String("channel", string(ch)),
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())))
					res.Outcomes[i] = ChannelOutcome{Channel: ch, Status: OutcomeError, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			res.Outcomes[i] = d.dispatchChannel(ctx, n, ch, pref, content, renderErr, reopen)
			return nil
		})
	}
	_ = g.Wait()

	status, err := d.rollUp(ctx, n.ID, res.Outcomes)
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	res.Status = status
	span.SetAttributes(attribute.String("notification.status", string(status)))

	logger.Info("notification dispatched",
		slog.String("status", string(status)),
		slog.Int("channels", len(res.Outcomes)))
	return res, nil
}

// dispatchChannel runs the per-channel algorithm. It never returns an error:
// every failure is captured in the outcome.
func (d *Dispatcher) dispatchChannel(
	ctx context.Context,
	n entity.Notification,
	ch entity.Channel,
	pref entity.NotificationPreference,
	c content,
	renderErr error,
	reopen bool,
) ChannelOutcome {
	defer trackInFlight()()

	out := ChannelOutcome{Channel: ch}
	ctx = withLogAttrs(ctx, slog.String("channel", string(ch)))

	// cancellation is checked before every channel
	current, err := d.deps.Notifications.Get(ctx, n.ID)
	if err != nil {
		out.Status, out.Err = OutcomeError, fmt.Errorf("reload notification: %w", err)
		return out
	}
	if current.Status == entity.StatusCancelled || current.Status == entity.StatusExpired {
		RecordSkipped(string(ch), "cancelled")
		out.Status = OutcomeCancelled
		return out
	}

	if !preference.IsChannelEnabled(pref, ch) {
		RecordSkipped(string(ch), "disabled")
		out.Status = OutcomeDisabled
		return out
	}

	rec, done := d.acquire(ctx, n, ch, reopen)
	if done != nil {
		return *done
	}
	ctx = withLogAttrs(ctx, slog.String("delivery_id", rec.ID))

	now := d.deps.Now()
	if until, deferred := preference.ShouldDefer(pref, n.Priority, now); deferred {
		return d.park(ctx, rec, until, now)
	}

	if rec.Recipient == "" {
		addr, err := d.deps.Recipients.Resolve(ctx, n, ch)
		if err != nil {
			logging.FromContext(ctx).Warn("recipient address not resolved", slog.Any("error", err))
			return d.fail(ctx, rec, err, 0)
		}
		rec.Recipient = addr
	}

	if renderErr != nil {
		return d.fail(ctx, rec, renderErr, 0)
	}
	return d.attempt(ctx, n, rec, c)
}

// acquire returns a delivery record that this worker now owns, or a final
// outcome when the channel must not be attempted.
func (d *Dispatcher) acquire(ctx context.Context, n entity.Notification, ch entity.Channel, reopen bool) (entity.Delivery, *ChannelOutcome) {
	out := ChannelOutcome{Channel: ch}
	now := d.deps.Now()

	existing, err := d.deps.Deliveries.FindByNotificationAndChannel(ctx, n.ID, ch)
	switch {
	case errors.Is(err, entity.ErrDeliveryNotFound):
		rec, err := entity.NewDelivery(d.deps.NewID(), n.ID, ch, "", d.cfg.DeliveryMaxRetries, now)
		if err != nil {
			out.Status, out.Err = OutcomeError, err
			return entity.Delivery{}, &out
		}
		if err := d.deps.Deliveries.Create(ctx, &rec); err != nil {
			if errors.Is(err, entity.ErrConcurrentModification) {
				RecordSkipped(string(ch), "in_flight")
				out.Status = OutcomeInFlight
				return entity.Delivery{}, &out
			}
			out.Status, out.Err = OutcomeError, fmt.Errorf("create delivery: %w", err)
			return entity.Delivery{}, &out
		}
		return rec, nil
	case err != nil:
		out.Status, out.Err = OutcomeError, fmt.Errorf("find delivery: %w", err)
		return entity.Delivery{}, &out
	}

	rec := *existing
	out.DeliveryID = rec.ID
	out.ProviderMessageID = rec.ProviderMessageID

	var claimed entity.Delivery
	switch {
	case rec.Succeeded():
		out.Status = OutcomeSent
		if rec.Status == entity.DeliveryDelivered {
			out.Status = OutcomeDelivered
		}
		return rec, &out
	case rec.InFlight() && rec.IsStale(now, d.cfg.ClaimLease):
		claimed, err = rec.Claim(now, d.cfg.ClaimLease)
	case rec.InFlight():
		RecordSkipped(string(ch), "in_flight")
		out.Status = OutcomeInFlight
		return rec, &out
	case reopen:
		claimed, err = rec.Reset(now)
	case rec.IsPermanentlyFailed():
		out.Status = OutcomeFailed
		out.Err = errors.New(rec.Error)
		return rec, &out
	default:
		out.Status = OutcomeRetryScheduled
		out.NextRetryAt = rec.NextRetryAt
		return rec, &out
	}
	if err != nil {
		out.Status, out.Err = OutcomeError, err
		return rec, &out
	}

	if err := d.deps.Deliveries.Update(ctx, &claimed); err != nil {
		if errors.Is(err, entity.ErrConcurrentModification) {
			RecordSkipped(string(ch), "in_flight")
			out.Status = OutcomeInFlight
			return rec, &out
		}
		out.Status, out.Err = OutcomeError, fmt.Errorf("claim delivery: %w", err)
		return rec, &out
	}
	return claimed, nil
}

// park defers an owned record until quiet hours end without consuming retry budget.
func (d *Dispatcher) park(ctx context.Context, rec entity.Delivery, until, now time.Time) ChannelOutcome {
	RecordSkipped(string(rec.Channel), "quiet_hours")
	out := ChannelOutcome{Channel: rec.Channel, DeliveryID: rec.ID, Status: OutcomeDeferred, DeferredUntil: &until}

	parked, err := rec.Reschedule(quietHoursReason, until, now)
	if err != nil {
		// zero budget: the claim lapses and the stale sweep re-checks quiet hours
		return out
	}
	if err := d.deps.Deliveries.Update(context.WithoutCancel(ctx), &parked); err != nil {
		out.Status, out.Err = OutcomeError, fmt.Errorf("defer delivery: %w", err)
	}
	return out
}

// attempt invokes the provider for an owned record and records the outcome.
func (d *Dispatcher) attempt(ctx context.Context, n entity.Notification, rec entity.Delivery, c content) ChannelOutcome {
	ctx, span := tracing.GetTracer().Start(ctx, "notify.send",
		trace.WithAttributes(
			attribute.String("channel", string(rec.Channel)),
			attribute.String("delivery.id", rec.ID),
			attribute.Int("delivery.retry_count", rec.RetryCount),
		))
	defer span.End()

	msg := Message{
		NotificationID: n.ID,
		DeliveryID:     rec.ID,
		Channel:        rec.Channel,
		Recipient:      rec.Recipient,
		Subject:        c.subject,
		Body:           c.body,
		Type:           n.Type,
		Priority:       n.Priority,
		Metadata:       n.Metadata,
	}

	RecordDispatch(string(rec.Channel))
	start := time.Now()
	result, sendErr := d.send(ctx, msg)
	elapsed := time.Since(start)

	if sendErr != nil {
		span.RecordError(sendErr)
		span.SetStatus(codes.Error, entity.ErrorClass(sendErr))
		return d.fail(ctx, rec, sendErr, elapsed)
	}

	RecordSuccess(string(rec.Channel), elapsed)
	return d.succeed(ctx, rec, result)
}

func (d *Dispatcher) send(ctx context.Context, msg Message) (SendResult, error) {
	p := d.deps.Providers.For(msg.Channel)
	cb := d.breakers[msg.Channel]
	if p == nil || cb == nil {
		return SendResult{}, &entity.ProviderNotAvailableError{Channel: msg.Channel, Err: ErrNoProvider}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.ProviderTimeout)
	defer cancel()

	var result SendResult
	err := cb.Call(func() error {
		var err error
		result, err = p.Send(sendCtx, msg)
		return err
	})
	switch {
	case err == nil:
		return result, nil
	case circuitbreaker.IsRejection(err):
		return SendResult{}, &entity.ProviderNotAvailableError{Channel: msg.Channel, Err: err}
	case errors.Is(err, context.Canceled):
		// an interrupted call is retried like any transient failure
		return SendResult{}, &entity.NotificationDeliveryError{Channel: msg.Channel, Err: fmt.Errorf("send interrupted: %v", err)}
	default:
		return SendResult{}, err
	}
}

func (d *Dispatcher) succeed(ctx context.Context, rec entity.Delivery, result SendResult) ChannelOutcome {
	ctx = context.WithoutCancel(ctx)
	now := d.deps.Now()
	out := ChannelOutcome{Channel: rec.Channel, DeliveryID: rec.ID, ProviderMessageID: result.ProviderMessageID}

	next, err := rec.MarkSent(result.ProviderMessageID, now)
	if err == nil && result.Delivered {
		next, err = next.MarkDelivered(now)
	}
	if err != nil {
		out.Status, out.Err = OutcomeError, err
		return out
	}
	if err := d.deps.Deliveries.Update(ctx, &next); err != nil {
		out.Status, out.Err = OutcomeError, fmt.Errorf("record success: %w", err)
		return out
	}

	out.Status = OutcomeSent
	d.emit(entity.EventSent, next, nil, now)
	if next.Status == entity.DeliveryDelivered {
		out.Status = OutcomeDelivered
		d.emit(entity.EventDelivered, next, nil, now)
	}
	return out
}

// fail records a failed attempt. Retryable causes consume retry budget and
// schedule the next attempt; permanent causes close the record.
func (d *Dispatcher) fail(ctx context.Context, rec entity.Delivery, cause error, elapsed time.Duration) ChannelOutcome {
	ctx = context.WithoutCancel(ctx)
	now := d.deps.Now()
	retryable := entity.IsRetryable(cause)
	out := ChannelOutcome{Channel: rec.Channel, DeliveryID: rec.ID, Err: cause}

	var (
		next entity.Delivery
		err  error
	)
	if retryable {
		next, err = rec.MarkFailed(cause.Error(), now)
	} else {
		next, err = rec.MarkFailedPermanently(cause.Error(), now)
	}
	if err != nil {
		out.Status, out.Err = OutcomeError, errors.Join(cause, err)
		return out
	}
	if err := d.deps.Deliveries.Update(ctx, &next); err != nil {
		out.Status, out.Err = OutcomeError, errors.Join(cause, fmt.Errorf("record failure: %w", err))
		return out
	}

	RecordFailure(string(rec.Channel), entity.ErrorClass(cause), retryable, elapsed)
	d.emit(entity.EventFailed, next, cause, now)

	// identifiers come from the context logger
	logging.FromContext(ctx).Warn("delivery attempt failed",
		slog.Bool("retryable", retryable),
		slog.Int("retry_count", next.RetryCount),
		slog.Any("error", cause))

	out.Status = OutcomeFailed
	if next.CanRetry() {
		out.Status = OutcomeRetryScheduled
		out.NextRetryAt = next.NextRetryAt
	}
	return out
}

func (d *Dispatcher) emit(typ entity.EventType, rec entity.Delivery, cause error, at time.Time) {
	d.deps.Events.Record(entity.DeliveryEvent{
		Type:           typ,
		NotificationID: rec.NotificationID,
		DeliveryID:     rec.ID,
		Channel:        rec.Channel,
		ErrorClass:     entity.ErrorClass(cause),
		OccurredAt:     at,
	})
}

// rollUpAttempts bounds how often rollUp re-reads a notification that another
// writer changed between its read and its update.
const rollUpAttempts = 3

// rollUp recomputes the aggregate status from all delivery records of the notification.
func (d *Dispatcher) rollUp(ctx context.Context, notificationID string, outcomes []ChannelOutcome) (entity.NotificationStatus, error) {
	ctx = context.WithoutCancel(ctx)
	for attempt := 1; ; attempt++ {
		status, conflict, err := d.rollUpOnce(ctx, notificationID, outcomes)
		if !conflict {
			return status, err
		}
		if attempt == rollUpAttempts {
			logging.FromContext(ctx).Info("notification changed during dispatch, keeping stored status")
			return status, nil
		}
	}
}

// rollUpOnce reports conflict when the version guard rejected the update.
func (d *Dispatcher) rollUpOnce(ctx context.Context, notificationID string, outcomes []ChannelOutcome) (entity.NotificationStatus, bool, error) {
	n, err := d.deps.Notifications.Get(ctx, notificationID)
	if err != nil {
		return "", false, fmt.Errorf("roll up: %w", err)
	}
	records, err := d.deps.Deliveries.ListByNotification(ctx, notificationID)
	if err != nil {
		return n.Status, false, fmt.Errorf("roll up: %w", err)
	}

	next, changed, err := aggregate(*n, records, outcomes, d.cfg.NoEligiblePolicy, d.deps.Now())
	if err != nil {
		return n.Status, false, fmt.Errorf("roll up: %w", err)
	}
	if !changed {
		return n.Status, false, nil
	}
	if err := d.deps.Notifications.Update(ctx, &next); err != nil {
		if errors.Is(err, entity.ErrConcurrentModification) {
			return n.Status, true, nil
		}
		return n.Status, false, fmt.Errorf("roll up: %w", err)
	}
	RecordStatus(string(next.Status))
	return next.Status, false, nil
}

// aggregate derives the notification status from its delivery records:
//   - any channel accepted by its provider: delivered
//   - nothing attempted, nothing deferred or in flight: the no-eligible policy
//   - every record permanently failed, nothing deferred or in flight: failed
//   - otherwise unchanged (processing)
func aggregate(
	n entity.Notification,
	records []*entity.Delivery,
	outcomes []ChannelOutcome,
	policy NoEligiblePolicy,
	now time.Time,
) (entity.Notification, bool, error) {
	switch n.Status {
	case entity.StatusPending, entity.StatusProcessing, entity.StatusSent:
	default:
		return n, false, nil
	}

	var (
		anySuccess bool
		anyOpen    bool
		lastErr    string
	)
	for _, r := range records {
		switch {
		case r.Succeeded():
			anySuccess = true
		case r.InFlight(), r.CanRetry():
			anyOpen = true
		default:
			lastErr = fmt.Sprintf("%s: %s", r.Channel, r.Error)
		}
	}
	for _, o := range outcomes {
		switch o.Status {
		case OutcomeDeferred, OutcomeInFlight, OutcomeError:
			anyOpen = true
		}
	}

	var err error
	switch {
	case anySuccess:
		if n.Status != entity.StatusSent {
			if n, err = n.MarkSent(now); err != nil {
				return n, false, err
			}
		}
		n, err = n.MarkDelivered(now)
		return n, err == nil, err
	case anyOpen:
		return n, false, nil
	case len(records) == 0:
		if policy == NoEligibleKeepProcessing {
			return n, false, nil
		}
		n, err = n.MarkFailed(ErrNoEligibleChannel.Error(), now)
		return n, err == nil, err
	default:
		n, err = n.MarkFailed(lastErr, now)
		return n, err == nil, err
	}
}

func (d *Dispatcher) expire(ctx context.Context, n entity.Notification, now time.Time) (entity.Notification, error) {
	expired, err := n.Expire(now)
	if err != nil {
		return n, err
	}
	if err := d.deps.Notifications.Update(ctx, &expired); err != nil {
		return n, fmt.Errorf("expire notification: %w", err)
	}
	RecordStatus(string(entity.StatusExpired))
	logging.FromContext(ctx).Info("notification expired")
	return expired, nil
}

// content is the rendered subject and body shared by all channels of one notification.
type content struct {
	subject *string
	body    string
}

// render returns the content, a permanent render failure (malformed template
// syntax, missing or inactive template) or a storage error.
func (d *Dispatcher) render(ctx context.Context, n entity.Notification) (content, error, error) {
	if n.TemplateID == nil {
		// title and message are free text; only well-formed tokens are substituted
		subject := tmpl.RenderText(n.Title, n.TemplateVariables)
		return content{subject: &subject, body: tmpl.RenderText(n.Message, n.TemplateVariables)}, nil, nil
	}

	t, err := d.deps.Templates.Resolve(ctx, *n.TemplateID)
	if errors.Is(err, entity.ErrTemplateNotFound) {
		return content{}, &entity.NotificationSendError{Code: "template_unavailable", Err: err}, nil
	}
	if err != nil {
		return content{}, nil, fmt.Errorf("load template: %w", err)
	}

	rendered, err := tmpl.RenderTemplate(*t, n.TemplateVariables)
	if err != nil {
		return content{}, err, nil
	}
	subject := rendered.Subject
	if subject == nil {
		subject = &n.Title
	}
	return content{subject: subject, body: rendered.Body}, nil, nil
}

// withLogAttrs adds attrs to the context logger. Each identifier is added
// once, at the level that first knows it; helpers below do not repeat them.
func withLogAttrs(ctx context.Context, attrs ...any) context.Context {
	return logging.WithLogger(ctx, logging.FromContext(ctx).With(attrs...))
}

// RetryDelivery re-attempts one claimed delivery record. The caller must have
// claimed rec (status pending, persisted with a version check) beforehand.
func (d *Dispatcher) RetryDelivery(ctx context.Context, rec entity.Delivery) (ChannelOutcome, error) {
	if d.closing.Load() {
		return ChannelOutcome{}, ErrShuttingDown
	}
	d.wg.Add(1)
	defer d.wg.Done()

	defer trackInFlight()()

	ctx = withLogAttrs(ctx,
		slog.String("notification_id", rec.NotificationID),
		slog.String("delivery_id", rec.ID),
		slog.String("channel", string(rec.Channel)))

	n, err := d.deps.Notifications.Get(ctx, rec.NotificationID)
	if err != nil {
		return ChannelOutcome{}, fmt.Errorf("retry delivery: %w", err)
	}
	now := d.deps.Now()

	var out ChannelOutcome
	switch {
	case n.Status == entity.StatusCancelled || n.Status == entity.StatusExpired:
		out = d.fail(ctx, rec, &entity.NotificationSendError{Channel: rec.Channel, Code: "notification_" + string(n.Status), Err: ErrNotDispatchable}, 0)
	case n.IsExpired(now):
		if _, err := d.expire(ctx, *n, now); err != nil {
			return ChannelOutcome{}, err
		}
		out = d.fail(ctx, rec, &entity.NotificationSendError{Channel: rec.Channel, Code: "notification_expired", Err: ErrNotDispatchable}, 0)
	default:
		out, err = d.retryOwned(ctx, *n, rec, now)
		if err != nil {
			return out, err
		}
	}

	if _, err := d.rollUp(ctx, n.ID, []ChannelOutcome{out}); err != nil {
		return out, err
	}
	return out, nil
}

func (d *Dispatcher) retryOwned(ctx context.Context, n entity.Notification, rec entity.Delivery, now time.Time) (ChannelOutcome, error) {
	pref, err := d.deps.Preferences.Get(ctx, n.RecipientID, n.Type)
	if err != nil {
		return ChannelOutcome{}, fmt.Errorf("load preference: %w", err)
	}
	if !preference.IsChannelEnabled(pref, rec.Channel) {
		RecordSkipped(string(rec.Channel), "disabled")
		return d.fail(ctx, rec, &entity.NotificationSendError{Channel: rec.Channel, Code: "channel_disabled", Err: errors.New("channel disabled by preference")}, 0), nil
	}
	if until, deferred := preference.ShouldDefer(pref, n.Priority, now); deferred {
		return d.park(ctx, rec, until, now), nil
	}

	c, renderErr, err := d.render(ctx, n)
	if err != nil {
		return ChannelOutcome{}, err
	}
	if renderErr != nil {
		return d.fail(ctx, rec, renderErr, 0), nil
	}
	if rec.Recipient == "" {
		addr, err := d.deps.Recipients.Resolve(ctx, n, rec.Channel)
		if err != nil {
			return d.fail(ctx, rec, err, 0), nil
		}
		rec.Recipient = addr
	}
	return d.attempt(ctx, n, rec, c), nil
}

// ClaimLease is the configured claim lease.
func (d *Dispatcher) ClaimLease() time.Duration {
	return d.cfg.ClaimLease
}

// Shutdown stops accepting work and waits for in-flight dispatches.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.closing.Store(true)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("dispatcher shutdown completed")
		return nil
	case <-ctx.Done():
		slog.Warn("dispatcher shutdown timeout exceeded")
		return ctx.Err()
	}
}
