// Package http holds the notification API: shared middleware and the health
// endpoint. Resource handlers live in the sub-packages.
package http

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"notify-dispatch/internal/handler/http/respond"
	"notify-dispatch/internal/usecase/notify"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string                 `json:"status"`    // healthy, degraded or unhealthy
	Timestamp string                 `json:"timestamp"` // RFC 3339
	Checks    map[string]CheckStatus `json:"checks"`
	Version   string                 `json:"version"`
}

// CheckStatus is the result of one health check.
type CheckStatus struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthHandler reports database connectivity and channel provider state.
// Open circuit breakers degrade the service but do not make it unhealthy:
// notifications are still accepted and retried later.
type HealthHandler struct {
	DB       *sql.DB
	Version  string
	Channels func() []notify.ChannelHealthStatus
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]CheckStatus, 2)
	if h.DB != nil {
		checks["database"] = h.checkDatabase(ctx)
	} else {
		checks["database"] = CheckStatus{Status: "unhealthy", Message: "not configured"}
	}
	if h.Channels != nil {
		checks["channels"] = checkChannels(h.Channels())
	}

	status := "healthy"
	statusCode := http.StatusOK
	for _, c := range checks {
		switch c.Status {
		case "unhealthy":
			status = "unhealthy"
			statusCode = http.StatusServiceUnavailable
		case "degraded":
			if status == "healthy" {
				status = "degraded"
			}
		}
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	respond.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Version:   h.Version,
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) CheckStatus {
	if err := h.DB.PingContext(ctx); err != nil {
		return CheckStatus{Status: "unhealthy", Message: respond.SanitizeError(err)}
	}

	stats := h.DB.Stats()
	details := map[string]any{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}

	// zero means unlimited
	if stats.MaxOpenConnections == 0 {
		return CheckStatus{Status: "healthy", Details: details}
	}
	utilization := float64(stats.InUse) / float64(stats.MaxOpenConnections) * 100
	details["utilization_percent"] = utilization
	if utilization >= 80.0 {
		return CheckStatus{Status: "degraded", Message: "connection pool utilization above 80%", Details: details}
	}
	return CheckStatus{Status: "healthy", Details: details}
}

func checkChannels(statuses []notify.ChannelHealthStatus) CheckStatus {
	details := make(map[string]any, len(statuses))
	configured := 0
	for _, s := range statuses {
		state := "not_configured"
		switch {
		case s.Configured && s.CircuitBreakerOpen:
			state = "circuit_open"
		case s.Configured:
			state = "ok"
		}
		if s.Configured {
			configured++
		}
		details[string(s.Channel)] = state
	}

	if configured == 0 {
		return CheckStatus{Status: "unhealthy", Message: "no channel provider configured", Details: details}
	}
	if !notify.Healthy(statuses) {
		return CheckStatus{Status: "degraded", Message: "circuit breaker open", Details: details}
	}
	return CheckStatus{Status: "healthy", Details: details}
}
