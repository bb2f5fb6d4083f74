package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"notify-dispatch/internal/app"
	workerPkg "notify-dispatch/internal/infra/worker"
	"notify-dispatch/internal/observability/logging"
	"notify-dispatch/internal/observability/metrics"
	"notify-dispatch/internal/observability/slo"
	"notify-dispatch/internal/observability/tracing"
	"notify-dispatch/internal/repository"
	"notify-dispatch/internal/usecase/analytics"
	"notify-dispatch/internal/usecase/retry"
	"notify-dispatch/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", slog.Any("error", err))
	}

	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("worker failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	shutdownTracing := tracing.InitProvider(config.GetEnvFloat("TRACE_SAMPLE_RATIO", 0.1))
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("failed to shut down tracing", slog.Any("error", err))
		}
	}()
	metrics.SetBuildInfo(version)

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics(nil)
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		return fmt.Errorf("load worker configuration: %w", err)
	}
	logger.Info("worker configuration loaded",
		slog.String("retry_schedule", workerConfig.RetrySchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Int("retry_workers", workerConfig.RetryWorkers),
		slog.Int("batch_size", workerConfig.BatchSize),
		slog.Duration("provider_timeout", workerConfig.ProviderTimeout),
		slog.String("no_eligible_policy", workerConfig.NoEligiblePolicy),
		slog.Int("health_port", workerConfig.HealthPort))

	opts := app.OptionsFromEnv(workerConfig.DispatcherConfig())
	opts.AnalyticsFlushSchedule = workerConfig.AnalyticsFlushSchedule
	opts.FlushLocation = workerConfig.SchedulerConfig().Location
	opts.AfterFlush = refreshSLO(logger)
	core, err := app.New(ctx, logger, opts)
	if err != nil {
		return err
	}

	ops := workerPkg.NewOpsServer(fmt.Sprintf(":%d", workerConfig.HealthPort), logger)
	for _, c := range core.Checks {
		ops.AddCheck(c.Name, c.Fn)
	}
	mountOps(ops, core.Dispatcher.ChannelHealth)

	schedulerConfig := workerConfig.SchedulerConfig()
	schedulerConfig.OnTick = workerMetrics.ObserveTick
	scheduler := retry.NewScheduler(core.Notifications, core.Deliveries, core.Dispatcher, schedulerConfig, nil)

	opsErr := make(chan error, 1)
	go func() {
		if err := ops.Start(ctx, opsMiddleware); err != nil && !errors.Is(err, http.ErrServerClosed) {
			opsErr <- err
		}
	}()

	if err := scheduler.Start(); err != nil {
		_ = core.Close(context.Background())
		return err
	}

	ops.SetReady(true)
	logger.Info("worker started", slog.String("version", version))

	select {
	case <-ctx.Done():
	case err := <-opsErr:
		logger.Error("ops server failed", slog.Any("error", err))
	}

	ops.SetReady(false)
	logger.Info("worker shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error("retry scheduler stop failed", slog.Any("error", err))
	}
	if err := core.Close(shutdownCtx); err != nil {
		logger.Error("core shutdown failed", slog.Any("error", err))
	}
	return nil
}

// refreshSLO recomputes the delivery SLO gauges from the last hour of samples
// after each analytics flush.
func refreshSLO(logger *slog.Logger) app.FlushHook {
	return func(ctx context.Context, repo repository.AnalyticsRepository, samples int) {
		to := time.Now().UTC()
		report, err := analytics.Reporter{Repo: repo}.Report(ctx, to.Add(-time.Hour).Truncate(analytics.BucketSize), to)
		if err != nil {
			logger.Error("analytics report failed", slog.Any("error", err))
			return
		}
		ind := slo.Update(report.Counts.Sent, report.Counts.Delivered, report.Counts.Failed)

		logger.Info("analytics flushed",
			slog.Int("samples", samples),
			slog.Int64("sent", report.Counts.Sent),
			slog.Int64("delivered", report.Counts.Delivered),
			slog.Int64("failed", report.Counts.Failed),
			slog.Float64("delivery_ratio", ind.DeliveryRatio),
			slog.Float64("failure_rate", ind.FailureRate))
	}
}
