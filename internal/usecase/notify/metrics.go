package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "notify"
	metricsSubsystem = "dispatch"
)

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: name, Help: help,
	}, labels)
}

func gauge(name, help string) prometheus.Gauge {
	return promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: name, Help: help,
	})
}

var (
	attemptsTotal = counterVec("attempts_total", "Provider send attempts.", "channel")
	// status is success, retryable or permanent.
	resultsTotal  = counterVec("results_total", "Provider send results.", "channel", "status")
	failuresTotal = counterVec("failures_total", "Failed send attempts by error class.", "channel", "class")
	// reason is disabled, quiet_hours, in_flight or cancelled.
	skippedTotal      = counterVec("skipped_total", "Channels not attempted during dispatch.", "channel", "reason")
	breakerOpensTotal = counterVec("breaker_opens_total", "Provider circuit breaker trips.", "channel")
	transitionsTotal  = counterVec("status_transitions_total", "Aggregate notification status transitions.", "status")

	sendSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "send_duration_seconds",
		Help:      "Provider send latency.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"channel"})

	inFlight            = gauge("in_flight", "Channel dispatches currently running.")
	providersConfigured = gauge("providers_configured", "Channels with a configured provider.")
)

func RecordDispatch(channel string) { attemptsTotal.WithLabelValues(channel).Inc() }

func RecordSuccess(channel string, took time.Duration) {
	resultsTotal.WithLabelValues(channel, "success").Inc()
	sendSeconds.WithLabelValues(channel).Observe(took.Seconds())
}

// RecordFailure counts a failed send under its entity.ErrorClass. retryable
// tells whether the failure may be retried later.
func RecordFailure(channel, class string, retryable bool, took time.Duration) {
	status := "permanent"
	if retryable {
		status = "retryable"
	}
	resultsTotal.WithLabelValues(channel, status).Inc()
	failuresTotal.WithLabelValues(channel, class).Inc()
	sendSeconds.WithLabelValues(channel).Observe(took.Seconds())
}

func RecordSkipped(channel, reason string) { skippedTotal.WithLabelValues(channel, reason).Inc() }

func RecordCircuitBreakerOpen(channel string) { breakerOpensTotal.WithLabelValues(channel).Inc() }

func RecordStatus(status string) { transitionsTotal.WithLabelValues(status).Inc() }

// trackInFlight raises the in-flight gauge and returns the matching release.
//
//	defer trackInFlight()()
func trackInFlight() func() {
	inFlight.Inc()
	return inFlight.Dec
}

func SetProvidersConfigured(n int) { providersConfigured.Set(float64(n)) }
