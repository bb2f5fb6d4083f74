// Package app assembles the dispatch core shared by the API and the worker
// processes: storage, the optional Redis layer, channel providers, the
// template and preference services, analytics and the dispatcher.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	pgRepo "notify-dispatch/internal/infra/adapter/persistence/postgres"
	"notify-dispatch/internal/infra/cache"
	"notify-dispatch/internal/infra/db"
	"notify-dispatch/internal/infra/provider"
	"notify-dispatch/internal/infra/templates"
	pkgconfig "notify-dispatch/internal/pkg/config"
	"notify-dispatch/internal/observability/metrics"
	"notify-dispatch/internal/repository"
	"notify-dispatch/internal/resilience/circuitbreaker"
	"notify-dispatch/internal/usecase/analytics"
	"notify-dispatch/internal/usecase/inbox"
	"notify-dispatch/internal/usecase/notify"
	"notify-dispatch/internal/usecase/preference"
	templateUC "notify-dispatch/internal/usecase/template"
	"notify-dispatch/pkg/config"
)

// Options tune the core for one process.
type Options struct {
	Dispatcher notify.Config
	// AutoMigrate applies the schema instead of waiting for it.
	AutoMigrate bool
	// AnalyticsBuffer is the capacity of the analytics event buffer.
	AnalyticsBuffer int
	// SeedTemplates stores the system template catalogue on start.
	SeedTemplates bool
	// AnalyticsFlushSchedule is the cron spec of the analytics flush. Empty
	// leaves flushing to Close.
	AnalyticsFlushSchedule string
	// FlushLocation is the time zone of the flush schedule, UTC when nil.
	FlushLocation *time.Location
	// AfterFlush runs after each scheduled flush.
	AfterFlush FlushHook
}

// OptionsFromEnv reads DB_AUTO_MIGRATE, ANALYTICS_BUFFER_SIZE,
// SEED_SYSTEM_TEMPLATES and ANALYTICS_FLUSH_SCHEDULE on top of dispatcher.
func OptionsFromEnv(dispatcher notify.Config) Options {
	return Options{
		Dispatcher:             dispatcher,
		AutoMigrate:            config.GetEnvBool("DB_AUTO_MIGRATE", false),
		AnalyticsBuffer:        config.GetEnvInt("ANALYTICS_BUFFER_SIZE", 4096),
		SeedTemplates:          config.GetEnvBool("SEED_SYSTEM_TEMPLATES", true),
		AnalyticsFlushSchedule: config.GetEnvString("ANALYTICS_FLUSH_SCHEDULE", "@every 1m"),
	}
}

// Check is a named readiness check.
type Check struct {
	Name string
	Fn   func(context.Context) error
}

// Core is the assembled dispatch core. Close releases it in reverse order.
type Core struct {
	DB            *sql.DB
	Redis         *redis.Client
	Notifications repository.NotificationRepository
	Deliveries    repository.DeliveryRepository
	AnalyticsRepo repository.AnalyticsRepository
	Templates     *templateUC.Service
	Preferences   *preference.Service
	Inbox         *inbox.Service
	Providers     notify.Providers
	Aggregator    *analytics.Aggregator
	Dispatcher    *notify.Dispatcher
	Checks        []Check

	logger        *slog.Logger
	stopAggregate context.CancelFunc
	aggDone       chan struct{}
	flushCron     *cron.Cron
}

// New opens the database and builds the core. The analytics aggregator runs
// until Close.
func New(ctx context.Context, logger *slog.Logger, opts Options) (*Core, error) {
	var flushSchedule cron.Schedule
	if opts.AnalyticsFlushSchedule != "" {
		sched, err := pkgconfig.ParseCronSchedule(opts.AnalyticsFlushSchedule)
		if err != nil {
			return nil, fmt.Errorf("analytics flush schedule: %w", err)
		}
		flushSchedule = sched
	}

	database, err := openDatabase(ctx, logger, opts.AutoMigrate)
	if err != nil {
		return nil, err
	}
	c := &Core{DB: database, logger: logger}
	if err := metrics.RegisterDBStats(database); err != nil {
		logger.Warn("database pool metrics unavailable", slog.Any("error", err))
	}
	dbcb := circuitbreaker.GuardDB(database)
	c.Checks = append(c.Checks, Check{Name: "postgres", Fn: dbcb.PingContext})
	c.Notifications = pgRepo.NewNotificationRepo(dbcb)
	c.Inbox = &inbox.Service{Repo: pgRepo.NewInboxRepo(dbcb)}
	c.Deliveries = pgRepo.NewDeliveryRepo(dbcb)
	c.AnalyticsRepo = pgRepo.NewAnalyticsRepo(dbcb)
	var prefRepo repository.PreferenceRepository = pgRepo.NewPreferenceRepo(dbcb)

	// Redis backs the preference cache and live inbox updates.
	var publisher provider.Publisher
	cacheConfig, err := cache.LoadConfig()
	if err != nil {
		c.closeStorage()
		return nil, err
	}
	if cacheConfig.Enabled() {
		rdb, err := cache.Connect(ctx, cacheConfig)
		if err != nil {
			c.closeStorage()
			return nil, err
		}
		c.Redis = rdb
		prefRepo = cache.NewPreferenceCache(prefRepo, rdb, cacheConfig.PreferenceTTL)
		publisher = rdb
		c.Checks = append(c.Checks, Check{Name: "redis", Fn: cache.Healthcheck(rdb)})
		logger.Info("redis enabled", slog.Duration("preference_ttl", cacheConfig.PreferenceTTL))
	} else {
		logger.Info("redis disabled, preferences read from postgres")
	}

	providerConfig, err := provider.LoadConfig()
	if err != nil {
		c.closeStorage()
		return nil, err
	}
	c.Providers, err = provider.Build(providerConfig, publisher)
	if err != nil {
		c.closeStorage()
		return nil, fmt.Errorf("build providers: %w", err)
	}

	c.Templates = &templateUC.Service{Repo: pgRepo.NewTemplateRepo(dbcb)}
	if opts.SeedTemplates {
		if err := seedTemplates(ctx, logger, c.Templates); err != nil {
			c.closeStorage()
			return nil, err
		}
	}
	c.Preferences = &preference.Service{Repo: prefRepo}

	c.Aggregator = analytics.NewAggregator(c.AnalyticsRepo, opts.AnalyticsBuffer, nil)
	aggCtx, stop := context.WithCancel(context.Background())
	c.stopAggregate = stop
	c.aggDone = make(chan struct{})
	go func() {
		defer close(c.aggDone)
		c.Aggregator.Run(aggCtx)
	}()
	if flushSchedule != nil {
		c.scheduleFlush(flushSchedule, opts.FlushLocation, opts.AfterFlush)
	}

	c.Dispatcher = notify.NewDispatcher(notify.Deps{
		Notifications: c.Notifications,
		Deliveries:    c.Deliveries,
		Templates:     c.Templates,
		Preferences:   c.Preferences,
		Providers:     c.Providers,
		Events:        c.Aggregator,
	}, opts.Dispatcher)
	logger.Info("dispatcher initialized", slog.Any("channels", c.Providers.Configured()))

	return c, nil
}

// Close drains in-flight dispatches, flushes pending analytics and closes
// Redis and the database.
func (c *Core) Close(ctx context.Context) error {
	var errs []error
	if err := c.Dispatcher.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher shutdown: %w", err))
	}

	c.stopFlush()
	c.stopAggregate()
	<-c.aggDone
	if n, err := c.Aggregator.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("final analytics flush: %w", err))
	} else {
		c.logger.Info("final analytics flush", slog.Int("samples", n))
	}

	if err := c.closeStorage(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Core) closeStorage() error {
	var errs []error
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := c.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}

// openDatabase opens the pool and either applies the schema or waits for an
// external migration to complete.
func openDatabase(ctx context.Context, logger *slog.Logger, autoMigrate bool) (*sql.DB, error) {
	dbConfig, err := db.LoadConfig()
	if err != nil {
		return nil, err
	}
	database, err := db.Open(ctx, dbConfig)
	if err != nil {
		return nil, err
	}

	if autoMigrate {
		err = db.MigrateUp(database)
	} else {
		err = waitForMigrations(ctx, logger, database, 10, 3*time.Second)
	}
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

func waitForMigrations(ctx context.Context, logger *slog.Logger, database *sql.DB, attempts int, interval time.Duration) error {
	const schemaCheck = "SELECT 1 FROM notification_deliveries LIMIT 1"
	for i := 0; i < attempts; i++ {
		if _, err := database.ExecContext(ctx, schemaCheck); err == nil {
			return nil
		}
		logger.Info("waiting for migrations", slog.Int("attempt", i+1), slog.Duration("retry_in", interval))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return errors.New("migrations did not complete in time")
}

func seedTemplates(ctx context.Context, logger *slog.Logger, svc *templateUC.Service) error {
	catalogue, err := templates.System()
	if err != nil {
		return err
	}
	n, err := svc.SeedSystem(ctx, catalogue)
	if err != nil {
		return fmt.Errorf("seed system templates: %w", err)
	}
	metrics.RecordTemplatesSeeded(n)
	logger.Info("system templates seeded", slog.Int("created", n), slog.Int("catalogue", len(catalogue)))
	return nil
}
