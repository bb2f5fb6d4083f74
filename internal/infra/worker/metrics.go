package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"notify-dispatch/internal/pkg/config"
	"notify-dispatch/internal/usecase/retry"
)

// WorkerMetrics embeds the configuration metrics of the worker and adds the
// retry scheduler tick metrics.
type WorkerMetrics struct {
	*config.ConfigMetrics

	// TickRunsTotal counts ticks by status (success, failure).
	TickRunsTotal *prometheus.CounterVec
	// TickDurationSeconds observes the wall time of one tick.
	TickDurationSeconds prometheus.Histogram
	// TickItemsTotal counts the records a tick touched, by outcome.
	TickItemsTotal *prometheus.CounterVec
	// TickLastSuccessTimestamp is the Unix time of the last tick without error.
	TickLastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics registers the worker metrics on reg. A nil reg uses the
// default registerer.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker", reg),

		TickRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_retry_tick_runs_total",
			Help: "Total number of retry scheduler ticks by status (success/failure)",
		}, []string{"status"}),

		TickDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_retry_tick_duration_seconds",
			Help:    "Duration of retry scheduler ticks in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 30, 60, 300},
		}),

		TickItemsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_retry_tick_items_total",
			Help: "Records handled by retry scheduler ticks by outcome",
		}, []string{"outcome"}),

		TickLastSuccessTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "worker_retry_tick_last_success_timestamp",
			Help: "Unix timestamp of the last retry scheduler tick without error",
		}),
	}
}

// ObserveTick records one completed tick. It matches retry.Config.OnTick.
func (m *WorkerMetrics) ObserveTick(stats retry.Stats, elapsed time.Duration, err error) {
	m.TickDurationSeconds.Observe(elapsed.Seconds())
	if err != nil {
		m.TickRunsTotal.WithLabelValues("failure").Inc()
	} else {
		m.TickRunsTotal.WithLabelValues("success").Inc()
		m.TickLastSuccessTimestamp.SetToCurrentTime()
	}

	for outcome, n := range map[string]int64{
		"expired":    stats.Expired,
		"claimed":    stats.Claimed,
		"contended":  stats.Contended,
		"succeeded":  stats.Succeeded,
		"failed":     stats.Failed,
		"deferred":   stats.Deferred,
		"dispatched": stats.Dispatched,
		"recovered":  stats.Recovered,
		"errors":     stats.Errors,
	} {
		if n > 0 {
			m.TickItemsTotal.WithLabelValues(outcome).Add(float64(n))
		}
	}
}
