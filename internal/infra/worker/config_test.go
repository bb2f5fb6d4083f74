package worker

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"notify-dispatch/internal/usecase/notify"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RetrySchedule != "@every 30s" {
		t.Errorf("RetrySchedule = %q, want @every 30s", cfg.RetrySchedule)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", cfg.Timezone)
	}
	if cfg.RetryWorkers != 10 || cfg.BatchSize != 100 {
		t.Errorf("RetryWorkers=%d BatchSize=%d", cfg.RetryWorkers, cfg.BatchSize)
	}
	if cfg.NoEligiblePolicy != "fail" {
		t.Errorf("NoEligiblePolicy = %q, want fail", cfg.NoEligiblePolicy)
	}
	if cfg.HealthPort != 9091 {
		t.Errorf("HealthPort = %d, want 9091", cfg.HealthPort)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestWorkerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *WorkerConfig)
		wantErr string
	}{
		{name: "valid cron expression", mutate: func(c *WorkerConfig) { c.RetrySchedule = "*/5 * * * *" }},
		{name: "bad schedule", mutate: func(c *WorkerConfig) { c.RetrySchedule = "often" }, wantErr: "retry schedule"},
		{name: "bad timezone", mutate: func(c *WorkerConfig) { c.Timezone = "Mars/Base" }, wantErr: "timezone"},
		{name: "zero workers", mutate: func(c *WorkerConfig) { c.RetryWorkers = 0 }, wantErr: "retry workers"},
		{name: "huge batch", mutate: func(c *WorkerConfig) { c.BatchSize = 5000 }, wantErr: "batch size"},
		{name: "negative lease", mutate: func(c *WorkerConfig) { c.ClaimLease = -time.Second }, wantErr: "claim lease"},
		{name: "tiny provider timeout", mutate: func(c *WorkerConfig) { c.ProviderTimeout = time.Millisecond }, wantErr: "provider timeout"},
		{name: "unknown policy", mutate: func(c *WorkerConfig) { c.NoEligiblePolicy = "ignore" }, wantErr: "no eligible policy"},
		{name: "privileged port", mutate: func(c *WorkerConfig) { c.HealthPort = 80 }, wantErr: "health port"},
		{
			name: "several errors reported together",
			mutate: func(c *WorkerConfig) {
				c.RetryWorkers = 0
				c.HealthPort = 1
			},
			wantErr: "health port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestWorkerConfig_SchedulerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Europe/Berlin"
	cfg.RetryWorkers = 4
	cfg.StuckAfter = 20 * time.Minute

	sc := cfg.SchedulerConfig()
	if sc.Location.String() != "Europe/Berlin" {
		t.Errorf("Location = %s", sc.Location)
	}
	if sc.Workers != 4 || sc.StuckAfter != 20*time.Minute || sc.Schedule != "@every 30s" {
		t.Errorf("unexpected scheduler config: %+v", sc)
	}
}

func TestWorkerConfig_DispatcherConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoEligiblePolicy = "keep_processing"
	cfg.ProviderTimeout = 3 * time.Second

	dc := cfg.DispatcherConfig()
	if dc.NoEligiblePolicy != notify.NoEligibleKeepProcessing {
		t.Errorf("NoEligiblePolicy = %q", dc.NoEligiblePolicy)
	}
	if dc.ProviderTimeout != 3*time.Second || dc.ClaimLease != cfg.ClaimLease {
		t.Errorf("unexpected dispatcher config: %+v", dc)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	tests := []struct {
		name          string
		env           map[string]string
		check         func(t *testing.T, c *WorkerConfig)
		wantFallbacks map[string]float64
	}{
		{
			name: "all valid",
			env: map[string]string{
				"RETRY_SCHEDULE":     "@every 1m",
				"WORKER_TIMEZONE":    "Asia/Tokyo",
				"RETRY_WORKERS":      "25",
				"RETRY_BATCH_SIZE":   "250",
				"RETRY_CLAIM_LEASE":  "2m",
				"PROVIDER_TIMEOUT":   "15s",
				"NO_ELIGIBLE_POLICY": "keep_processing",
				"WORKER_HEALTH_PORT": "9191",
			},
			check: func(t *testing.T, c *WorkerConfig) {
				if c.RetrySchedule != "@every 1m" || c.Timezone != "Asia/Tokyo" {
					t.Errorf("schedule=%q tz=%q", c.RetrySchedule, c.Timezone)
				}
				if c.RetryWorkers != 25 || c.BatchSize != 250 || c.HealthPort != 9191 {
					t.Errorf("workers=%d batch=%d port=%d", c.RetryWorkers, c.BatchSize, c.HealthPort)
				}
				if c.ClaimLease != 2*time.Minute || c.ProviderTimeout != 15*time.Second {
					t.Errorf("lease=%v timeout=%v", c.ClaimLease, c.ProviderTimeout)
				}
				if c.NoEligiblePolicy != "keep_processing" {
					t.Errorf("policy=%q", c.NoEligiblePolicy)
				}
			},
		},
		{
			name: "invalid values fall back",
			env: map[string]string{
				"RETRY_SCHEDULE":     "whenever",
				"RETRY_WORKERS":      "ten",
				"NO_ELIGIBLE_POLICY": "drop",
				"WORKER_HEALTH_PORT": "22",
			},
			check: func(t *testing.T, c *WorkerConfig) {
				def := DefaultConfig()
				if c.RetrySchedule != def.RetrySchedule || c.RetryWorkers != def.RetryWorkers {
					t.Errorf("schedule=%q workers=%d", c.RetrySchedule, c.RetryWorkers)
				}
				if c.NoEligiblePolicy != def.NoEligiblePolicy || c.HealthPort != def.HealthPort {
					t.Errorf("policy=%q port=%d", c.NoEligiblePolicy, c.HealthPort)
				}
			},
			wantFallbacks: map[string]float64{
				"retry_schedule":     1,
				"retry_workers":      1,
				"no_eligible_policy": 1,
				"health_port":        1,
			},
		},
		{
			name: "duration out of range",
			env:  map[string]string{"RETRY_TICK_TIMEOUT": "1s"},
			check: func(t *testing.T, c *WorkerConfig) {
				if c.TickTimeout != DefaultConfig().TickTimeout {
					t.Errorf("TickTimeout = %v", c.TickTimeout)
				}
			},
			wantFallbacks: map[string]float64{"tick_timeout": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			metrics := NewWorkerMetrics(prometheus.NewRegistry())

			cfg, err := LoadConfigFromEnv(logger, metrics)
			if err != nil {
				t.Fatalf("LoadConfigFromEnv must not fail: %v", err)
			}
			tt.check(t, cfg)

			for field, want := range tt.wantFallbacks {
				if got := testutil.ToFloat64(metrics.FallbacksTotal.WithLabelValues(field)); got != want {
					t.Errorf("fallbacks[%s] = %v, want %v", field, got, want)
				}
				if !strings.Contains(buf.String(), "field="+field) {
					t.Errorf("missing warning for %s in %q", field, buf.String())
				}
			}

			wantActive := 0.0
			if len(tt.wantFallbacks) > 0 {
				wantActive = 1
			}
			if got := testutil.ToFloat64(metrics.FallbackActive); got != wantActive {
				t.Errorf("FallbackActive = %v, want %v", got, wantActive)
			}
			if testutil.ToFloat64(metrics.LoadTimestamp) == 0 {
				t.Error("LoadTimestamp not recorded")
			}
		})
	}
}
