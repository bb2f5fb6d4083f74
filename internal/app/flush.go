package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"notify-dispatch/internal/repository"
	"notify-dispatch/internal/usecase/analytics"
)

// FlushHook runs after every scheduled analytics flush that succeeded.
type FlushHook func(ctx context.Context, repo repository.AnalyticsRepository, samples int)

// scheduleFlush writes the aggregator's counters on sched until Close, so
// events recorded by this process reach storage while it runs.
func (c *Core) scheduleFlush(sched cron.Schedule, loc *time.Location, hook FlushHook) {
	if loc == nil {
		loc = time.UTC
	}
	c.flushCron = cron.New(cron.WithLocation(loc))
	c.flushCron.Schedule(sched, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		flushOnce(ctx, c.logger, c.Aggregator, c.AnalyticsRepo, hook)
	}))
	c.flushCron.Start()
}

func flushOnce(ctx context.Context, logger *slog.Logger, agg *analytics.Aggregator, repo repository.AnalyticsRepository, hook FlushHook) {
	n, err := agg.Flush(ctx)
	if err != nil {
		logger.Error("analytics flush failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		logger.Debug("analytics flushed", slog.Int("samples", n))
	}
	if hook != nil {
		hook(ctx, repo, n)
	}
}

// stopFlush waits for a running flush to finish.
func (c *Core) stopFlush() {
	if c.flushCron != nil {
		<-c.flushCron.Stop().Done()
	}
}
