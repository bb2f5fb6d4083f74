package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notify-dispatch/internal/handler/http/respond"
	workerPkg "notify-dispatch/internal/infra/worker"
	"notify-dispatch/internal/observability/metrics"
	"notify-dispatch/internal/observability/tracing"
	"notify-dispatch/internal/usecase/notify"
)

// channelsResponse is the body of GET /health/channels.
type channelsResponse struct {
	Healthy  bool            `json:"healthy"`
	Channels []channelStatus `json:"channels"`
}

type channelStatus struct {
	Name               string     `json:"name"`
	Configured         bool       `json:"configured"`
	CircuitBreakerOpen bool       `json:"circuit_breaker_open"`
	DisabledUntil      *time.Time `json:"disabled_until,omitempty"`
}

// mountOps adds /metrics and /health/channels next to the liveness and
// readiness checks.
func mountOps(ops *workerPkg.OpsServer, channelHealth func() []notify.ChannelHealthStatus) {
	ops.Handle("GET /metrics", promhttp.Handler())
	ops.Handle("GET /health/channels", channelsHandler(channelHealth))
}

// opsMiddleware traces and instruments the ops routes.
func opsMiddleware(h http.Handler) http.Handler {
	return tracing.Middleware(metrics.InstrumentHandler(h))
}

// channelsHandler answers 503 while any configured channel has an open breaker.
func channelsHandler(channelHealth func() []notify.ChannelHealthStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		statuses := channelHealth()
		body := channelsResponse{
			Healthy:  notify.Healthy(statuses),
			Channels: make([]channelStatus, 0, len(statuses)),
		}
		for _, s := range statuses {
			body.Channels = append(body.Channels, channelStatus{
				Name:               string(s.Channel),
				Configured:         s.Configured,
				CircuitBreakerOpen: s.CircuitBreakerOpen,
				DisabledUntil:      s.DisabledUntil,
			})
		}

		code := http.StatusOK
		if !body.Healthy {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(w, code, body)
	}
}
