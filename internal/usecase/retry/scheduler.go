// Package retry runs the periodic retry scheduler. Each tick expires overdue
// notifications, claims due or stale delivery records and re-attempts them on
// their single channel, dispatches due scheduled notifications and re-runs the
// roll-up for notifications stuck in processing.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/observability/logging"
	"notify-dispatch/internal/repository"
	"notify-dispatch/internal/usecase/notify"
)

// Dispatcher is the part of notify.Dispatcher used by the scheduler.
type Dispatcher interface {
	Dispatch(ctx context.Context, n entity.Notification) (notify.Result, error)
	RetryDelivery(ctx context.Context, rec entity.Delivery) (notify.ChannelOutcome, error)
}

// Config tunes the scheduler.
type Config struct {
	// Schedule is a robfig/cron spec; descriptors such as "@every 30s" are accepted.
	Schedule string
	// Location is the time zone used to evaluate Schedule.
	Location *time.Location
	// Workers bounds concurrent retry attempts.
	Workers int
	// BatchSize bounds the records loaded per pass.
	BatchSize int
	// ClaimLease must match the dispatcher's lease.
	ClaimLease time.Duration
	// StuckAfter is how long a notification may stay processing without an
	// update before its roll-up is recomputed.
	StuckAfter time.Duration
	// TickTimeout bounds one tick.
	TickTimeout time.Duration
	// OnTick, if set, observes every completed tick.
	OnTick func(stats Stats, elapsed time.Duration, err error)
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{
		Schedule:    "@every 30s",
		Location:    time.UTC,
		Workers:     10,
		BatchSize:   100,
		ClaimLease:  5 * time.Minute,
		StuckAfter:  10 * time.Minute,
		TickTimeout: 5 * time.Minute,
	}
}

// Stats summarises one tick.
type Stats struct {
	Expired    int64
	Claimed    int64
	Contended  int64
	Succeeded  int64
	Failed     int64
	Deferred   int64
	Dispatched int64
	Recovered  int64
	Errors     int64
}

// Scheduler drives retries on a cron schedule.
type Scheduler struct {
	notifications repository.NotificationRepository
	deliveries    repository.DeliveryRepository
	dispatcher    Dispatcher
	cfg           Config
	now           func() time.Time

	cron    *cron.Cron
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. now may be nil.
func NewScheduler(
	notifications repository.NotificationRepository,
	deliveries repository.DeliveryRepository,
	dispatcher Dispatcher,
	cfg Config,
	now func() time.Time,
) *Scheduler {
	def := DefaultConfig()
	if cfg.Schedule == "" {
		cfg.Schedule = def.Schedule
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = def.ClaimLease
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = def.StuckAfter
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = def.TickTimeout
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Scheduler{
		notifications: notifications,
		deliveries:    deliveries,
		dispatcher:    dispatcher,
		cfg:           cfg,
		now:           now,
	}
}

// Start registers the tick with cron and starts it.
func (s *Scheduler) Start() error {
	c := cron.New(cron.WithLocation(s.cfg.Location))
	if _, err := c.AddFunc(s.cfg.Schedule, s.tick); err != nil {
		return fmt.Errorf("add retry schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron = c
	c.Start()
	slog.Info("retry scheduler started",
		slog.String("schedule", s.cfg.Schedule),
		slog.String("timezone", s.cfg.Location.String()),
		slog.Int("workers", s.cfg.Workers))
	return nil
}

// Stop stops scheduling new ticks and waits for the running one.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("retry scheduler stopped")
		return nil
	case <-ctx.Done():
		slog.Warn("retry scheduler stop timeout exceeded")
		return ctx.Err()
	}
}

func (s *Scheduler) tick() {
	if !s.running.CompareAndSwap(false, true) {
		recordTick("skipped")
		slog.Warn("previous retry tick still running, skipping")
		return
	}
	defer s.running.Store(false)

	s.wg.Add(1)
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TickTimeout)
	defer cancel()
	ctx = logging.WithCorrelationID(ctx, uuid.NewString())
	logger := logging.WithCorrelation(ctx, slog.Default())
	ctx = logging.WithLogger(ctx, logger)

	start := time.Now()
	stats, err := s.RunOnce(ctx)
	elapsed := time.Since(start)
	tickDuration.Observe(elapsed.Seconds())

	if err != nil {
		recordTick("failure")
		logger.Error("retry tick failed", slog.Any("error", err))
	} else {
		recordTick("success")
	}
	if stats.Claimed+stats.Expired+stats.Dispatched+stats.Recovered > 0 {
		logger.Info("retry tick completed",
			slog.Int64("expired", stats.Expired),
			slog.Int64("claimed", stats.Claimed),
			slog.Int64("contended", stats.Contended),
			slog.Int64("succeeded", stats.Succeeded),
			slog.Int64("failed", stats.Failed),
			slog.Int64("deferred", stats.Deferred),
			slog.Int64("dispatched", stats.Dispatched),
			slog.Int64("recovered", stats.Recovered),
			slog.Duration("duration", elapsed))
	}
	if s.cfg.OnTick != nil {
		s.cfg.OnTick(stats, elapsed, err)
	}
}

// RunOnce executes one scheduler pass. Errors of individual records are
// counted in Stats.Errors; the returned error reports failed list queries.
func (s *Scheduler) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	var errs []error

	if err := s.expireOverdue(ctx, &stats); err != nil {
		errs = append(errs, err)
	}
	if err := s.retryDeliveries(ctx, &stats); err != nil {
		errs = append(errs, err)
	}
	if err := s.dispatchScheduled(ctx, &stats); err != nil {
		errs = append(errs, err)
	}
	if err := s.recoverStuck(ctx, &stats); err != nil {
		errs = append(errs, err)
	}
	return stats, errors.Join(errs...)
}

func (s *Scheduler) expireOverdue(ctx context.Context, stats *Stats) error {
	now := s.now()
	overdue, err := s.notifications.ListExpirable(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list expirable: %w", err)
	}
	for _, n := range overdue {
		expired, err := n.Expire(now)
		if err != nil {
			continue
		}
		if err := s.notifications.Update(ctx, &expired); err != nil {
			if !errors.Is(err, entity.ErrConcurrentModification) {
				stats.Errors++
				slog.Warn("failed to expire notification", slog.String("notification_id", n.ID), slog.Any("error", err))
			}
			continue
		}
		notify.RecordStatus(string(entity.StatusExpired))
		stats.Expired++
	}
	return nil
}

func (s *Scheduler) retryDeliveries(ctx context.Context, stats *Stats) error {
	now := s.now()
	due, err := s.deliveries.ListDueForRetry(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list due deliveries: %w", err)
	}
	stale, err := s.deliveries.ListStale(ctx, now.Add(-s.cfg.ClaimLease), s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list stale deliveries: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, rec := range append(due, stale...) {
		g.Go(func() error {
			s.retryOne(gctx, *rec, stats)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) retryOne(ctx context.Context, rec entity.Delivery, stats *Stats) {
	logger := slog.With(
		slog.String("notification_id", rec.NotificationID),
		slog.String("delivery_id", rec.ID),
		slog.String("channel", string(rec.Channel)))

	claimed, err := rec.Claim(s.now(), s.cfg.ClaimLease)
	if err != nil {
		return
	}
	if err := s.deliveries.Update(ctx, &claimed); err != nil {
		if errors.Is(err, entity.ErrConcurrentModification) {
			atomic.AddInt64(&stats.Contended, 1)
			recordClaim("contended")
			return
		}
		atomic.AddInt64(&stats.Errors, 1)
		logger.Warn("failed to claim delivery", slog.Any("error", err))
		return
	}
	atomic.AddInt64(&stats.Claimed, 1)
	recordClaim("claimed")

	out, err := s.dispatcher.RetryDelivery(ctx, claimed)
	if err != nil {
		atomic.AddInt64(&stats.Errors, 1)
		logger.Warn("retry attempt failed to run", slog.Any("error", err))
		return
	}
	switch out.Status {
	case notify.OutcomeSent, notify.OutcomeDelivered:
		atomic.AddInt64(&stats.Succeeded, 1)
	case notify.OutcomeDeferred:
		atomic.AddInt64(&stats.Deferred, 1)
	case notify.OutcomeError:
		atomic.AddInt64(&stats.Errors, 1)
	default:
		atomic.AddInt64(&stats.Failed, 1)
	}
}

func (s *Scheduler) dispatchScheduled(ctx context.Context, stats *Stats) error {
	due, err := s.notifications.ListDueScheduled(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list due notifications: %w", err)
	}
	s.dispatchAll(ctx, due, &stats.Dispatched, &stats.Errors)
	return nil
}

func (s *Scheduler) recoverStuck(ctx context.Context, stats *Stats) error {
	stuck, err := s.notifications.ListStuck(ctx, s.now().Add(-s.cfg.StuckAfter), s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list stuck notifications: %w", err)
	}
	s.dispatchAll(ctx, stuck, &stats.Recovered, &stats.Errors)
	return nil
}

func (s *Scheduler) dispatchAll(ctx context.Context, ns []*entity.Notification, done, failed *int64) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, n := range ns {
		g.Go(func() error {
			if _, err := s.dispatcher.Dispatch(gctx, *n); err != nil {
				if !errors.Is(err, notify.ErrNotDispatchable) {
					atomic.AddInt64(failed, 1)
					slog.Warn("scheduled dispatch failed", slog.String("notification_id", n.ID), slog.Any("error", err))
				}
				return nil
			}
			atomic.AddInt64(done, 1)
			return nil
		})
	}
	_ = g.Wait()
}
