package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/handler/http/middleware"
	"notify-dispatch/internal/usecase/notify"
)

type stubNotifications struct {
	notify.Service
}

func (stubNotifications) Get(context.Context, string) (*entity.Notification, error) {
	return nil, entity.ErrNotificationNotFound
}

func (stubNotifications) ChannelHealth() []notify.ChannelHealthStatus {
	return []notify.ChannelHealthStatus{{Channel: entity.ChannelInApp, Configured: true}}
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "svc-billing",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + tok
}

func testRouter(opts routeOptions) http.Handler {
	opts.JWTSecret = []byte(testSecret)
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newRouter(logger, services{Notifications: stubNotifications{}}, opts)
}

func TestRouter_Auth(t *testing.T) {
	h := testRouter(routeOptions{})

	tests := []struct {
		name   string
		method string
		path   string
		auth   string
		want   int
	}{
		{name: "metrics public", method: http.MethodGet, path: "/metrics", want: http.StatusOK},
		{name: "no token", method: http.MethodGet, path: "/notifications/n-1", want: http.StatusUnauthorized},
		{name: "viewer reads", method: http.MethodGet, path: "/notifications/n-1", auth: "viewer", want: http.StatusNotFound},
		{name: "viewer cannot cancel", method: http.MethodPost, path: "/notifications/n-1/cancel", auth: "viewer", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", bearer(t, tt.auth))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestRouter_HealthWithoutDatabase(t *testing.T) {
	h := testRouter(routeOptions{Version: "test"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
}

func TestRouter_CORSPreflightSkipsAuth(t *testing.T) {
	h := testRouter(routeOptions{CORS: middleware.CORSConfig{
		AllowedOrigins: []string{"https://console.example.com"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	}})

	req := httptest.NewRequest(http.MethodOptions, "/notifications", nil)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://console.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             1,
	}, time.Now)
	h := testRouter(routeOptions{RateLimiter: limiter})

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/notifications/n-1", nil)
		req.Header.Set("Authorization", bearer(t, "viewer"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNotFound, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}
