package worker

import (
	"fmt"
	"log/slog"
	"time"

	"notify-dispatch/internal/pkg/config"
	"notify-dispatch/internal/usecase/notify"
	"notify-dispatch/internal/usecase/retry"
)

// WorkerConfig holds the operational settings of the dispatch worker.
//
// Every field has a default; LoadConfigFromEnv replaces invalid values by
// those defaults instead of failing.
type WorkerConfig struct {
	// RetrySchedule is a cron spec or descriptor ("@every 30s").
	RetrySchedule string
	// Timezone is the IANA zone RetrySchedule is evaluated in.
	Timezone string
	// RetryWorkers bounds concurrent retry attempts per tick (1-100).
	RetryWorkers int
	// BatchSize bounds the records loaded per scheduler pass (1-1000).
	BatchSize int
	// ClaimLease is how long a claimed delivery may stay in flight.
	ClaimLease time.Duration
	// StuckAfter is how long a notification may stay processing untouched.
	StuckAfter time.Duration
	// TickTimeout bounds one scheduler tick.
	TickTimeout time.Duration
	// ProviderTimeout bounds every provider call.
	ProviderTimeout time.Duration
	// NoEligiblePolicy is "fail" or "keep_processing".
	NoEligiblePolicy string
	// AnalyticsFlushSchedule is the cron spec of the analytics flush and SLO refresh.
	AnalyticsFlushSchedule string
	// HealthPort serves /health, /health/ready, /health/channels and /metrics.
	HealthPort int
}

// DefaultConfig returns the worker defaults.
func DefaultConfig() WorkerConfig {
	rc := retry.DefaultConfig()
	nc := notify.DefaultConfig()
	return WorkerConfig{
		RetrySchedule:          rc.Schedule,
		Timezone:               "UTC",
		RetryWorkers:           rc.Workers,
		BatchSize:              rc.BatchSize,
		ClaimLease:             rc.ClaimLease,
		StuckAfter:             rc.StuckAfter,
		TickTimeout:            rc.TickTimeout,
		ProviderTimeout:        nc.ProviderTimeout,
		NoEligiblePolicy:       string(nc.NoEligiblePolicy),
		AnalyticsFlushSchedule: "@every 1m",
		HealthPort:             9091,
	}
}

var validPolicy = config.OneOf(string(notify.NoEligibleFail), string(notify.NoEligibleKeepProcessing))

// Validate reports every invalid field at once.
func (c *WorkerConfig) Validate() error {
	var errs []error
	check := func(field string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	check("retry schedule", config.ValidateCronSchedule(c.RetrySchedule))
	check("timezone", config.ValidateTimezone(c.Timezone))
	check("retry workers", config.ValidateIntRange(c.RetryWorkers, 1, 100))
	check("batch size", config.ValidateIntRange(c.BatchSize, 1, 1000))
	check("claim lease", config.ValidatePositiveDuration(c.ClaimLease))
	check("stuck after", config.ValidatePositiveDuration(c.StuckAfter))
	check("tick timeout", config.ValidatePositiveDuration(c.TickTimeout))
	check("provider timeout", config.ValidateDuration(c.ProviderTimeout, 100*time.Millisecond, 5*time.Minute))
	check("no eligible policy", validPolicy(c.NoEligiblePolicy))
	check("analytics flush schedule", config.ValidateCronSchedule(c.AnalyticsFlushSchedule))
	check("health port", config.ValidateIntRange(c.HealthPort, 1024, 65535))

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// SchedulerConfig maps the worker settings onto the retry scheduler.
// The timezone has been validated, so a load failure falls back to UTC.
func (c *WorkerConfig) SchedulerConfig() retry.Config {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return retry.Config{
		Schedule:    c.RetrySchedule,
		Location:    loc,
		Workers:     c.RetryWorkers,
		BatchSize:   c.BatchSize,
		ClaimLease:  c.ClaimLease,
		StuckAfter:  c.StuckAfter,
		TickTimeout: c.TickTimeout,
	}
}

// DispatcherConfig maps the worker settings onto the dispatcher.
func (c *WorkerConfig) DispatcherConfig() notify.Config {
	nc := notify.DefaultConfig()
	nc.ProviderTimeout = c.ProviderTimeout
	nc.ClaimLease = c.ClaimLease
	nc.NoEligiblePolicy = notify.NoEligiblePolicy(c.NoEligiblePolicy)
	return nc
}

// LoadConfigFromEnv loads the worker configuration. It never fails: every
// invalid value is replaced by its default, logged and counted.
//
// Environment variables:
//   - RETRY_SCHEDULE (default "@every 30s")
//   - WORKER_TIMEZONE (default "UTC")
//   - RETRY_WORKERS, RETRY_BATCH_SIZE
//   - RETRY_CLAIM_LEASE, RETRY_STUCK_AFTER, RETRY_TICK_TIMEOUT
//   - PROVIDER_TIMEOUT
//   - NO_ELIGIBLE_POLICY ("fail" or "keep_processing")
//   - ANALYTICS_FLUSH_SCHEDULE (default "@every 1m")
//   - WORKER_HEALTH_PORT (default 9091)
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	fallback := false

	record := func(field string, warning string, applied bool) {
		if !applied {
			return
		}
		fallback = true
		metrics.RecordFallback(field)
		logger.Warn("configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", warning))
	}
	str := func(key, field string, dst *string, validate func(string) error) {
		r := config.LoadString(key, *dst, validate)
		*dst = r.Value
		record(field, r.Warning, r.FallbackApplied)
	}
	num := func(key, field string, dst *int, min, max int) {
		r := config.LoadInt(key, *dst, func(v int) error { return config.ValidateIntRange(v, min, max) })
		*dst = r.Value
		record(field, r.Warning, r.FallbackApplied)
	}
	dur := func(key, field string, dst *time.Duration, validate func(time.Duration) error) {
		r := config.LoadDuration(key, *dst, validate)
		*dst = r.Value
		record(field, r.Warning, r.FallbackApplied)
	}

	str("RETRY_SCHEDULE", "retry_schedule", &cfg.RetrySchedule, config.ValidateCronSchedule)
	str("WORKER_TIMEZONE", "timezone", &cfg.Timezone, config.ValidateTimezone)
	num("RETRY_WORKERS", "retry_workers", &cfg.RetryWorkers, 1, 100)
	num("RETRY_BATCH_SIZE", "batch_size", &cfg.BatchSize, 1, 1000)
	dur("RETRY_CLAIM_LEASE", "claim_lease", &cfg.ClaimLease, func(d time.Duration) error {
		return config.ValidateDuration(d, 10*time.Second, time.Hour)
	})
	dur("RETRY_STUCK_AFTER", "stuck_after", &cfg.StuckAfter, func(d time.Duration) error {
		return config.ValidateDuration(d, time.Minute, 24*time.Hour)
	})
	dur("RETRY_TICK_TIMEOUT", "tick_timeout", &cfg.TickTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, 5*time.Second, time.Hour)
	})
	dur("PROVIDER_TIMEOUT", "provider_timeout", &cfg.ProviderTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, 100*time.Millisecond, 5*time.Minute)
	})
	str("NO_ELIGIBLE_POLICY", "no_eligible_policy", &cfg.NoEligiblePolicy, validPolicy)
	str("ANALYTICS_FLUSH_SCHEDULE", "analytics_flush_schedule", &cfg.AnalyticsFlushSchedule, config.ValidateCronSchedule)
	num("WORKER_HEALTH_PORT", "health_port", &cfg.HealthPort, 1024, 65535)

	metrics.SetFallbackActive(fallback)
	metrics.RecordLoadTimestamp()
	return &cfg, nil
}
