package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// tickTotal counts scheduler ticks by status (success, failure, skipped).
	tickTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_scheduler_ticks_total",
			Help: "Total number of retry scheduler ticks by status",
		},
		[]string{"status"},
	)

	// tickDuration measures one full scheduler pass.
	tickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retry_scheduler_tick_duration_seconds",
			Help:    "Duration of retry scheduler ticks in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 300},
		},
	)

	// claimTotal counts delivery claims by result (claimed, contended).
	claimTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_scheduler_claims_total",
			Help: "Total number of delivery claim attempts by result",
		},
		[]string{"result"},
	)
)

func recordTick(status string) {
	tickTotal.WithLabelValues(status).Inc()
}

func recordClaim(result string) {
	claimTotal.WithLabelValues(result).Inc()
}
