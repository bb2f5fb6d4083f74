package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_api_auth_requests_total",
			Help: "Total authentication attempts by role and result",
		},
		[]string{"role", "result"}, // result: success | failure
	)

	authDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_api_auth_duration_seconds",
			Help:    "Token validation duration by role",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
		[]string{"role"},
	)

	forbiddenAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_api_forbidden_attempts_total",
			Help: "Requests rejected by role permissions",
		},
		[]string{"role", "method"},
	)
)

func recordAuthRequest(role, result string) {
	authRequestsTotal.WithLabelValues(role, result).Inc()
}

func recordAuthDuration(role string, seconds float64) {
	authDuration.WithLabelValues(role).Observe(seconds)
}

func recordForbiddenAttempt(role, method string) {
	forbiddenAttempts.WithLabelValues(role, method).Inc()
}
