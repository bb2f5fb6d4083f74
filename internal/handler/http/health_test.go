package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/usecase/notify"
)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		channels   []notify.ChannelHealthStatus
		wantCode   int
		wantStatus string
	}{
		{
			name: "healthy",
			channels: []notify.ChannelHealthStatus{
				{Channel: entity.ChannelEmail, Configured: true},
				{Channel: entity.ChannelSMS},
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name: "breaker open degrades",
			channels: []notify.ChannelHealthStatus{
				{Channel: entity.ChannelEmail, Configured: true, CircuitBreakerOpen: true},
				{Channel: entity.ChannelInApp, Configured: true},
			},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
		},
		{
			name:       "no providers",
			channels:   []notify.ChannelHealthStatus{{Channel: entity.ChannelEmail}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
		{
			name:       "database down",
			pingErr:    errors.New("connection refused"),
			channels:   []notify.ChannelHealthStatus{{Channel: entity.ChannelInApp, Configured: true}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
			require.NoError(t, err)
			defer func() { _ = db.Close() }()
			ping := mock.ExpectPing()
			if tt.pingErr != nil {
				ping.WillReturnError(tt.pingErr)
			}

			h := &HealthHandler{
				DB:       db,
				Version:  "1.2.3",
				Channels: func() []notify.ChannelHealthStatus { return tt.channels },
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			var body HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, "1.2.3", body.Version)
			assert.Contains(t, body.Checks, "database")
			assert.Contains(t, body.Checks, "channels")
		})
	}
}

func TestHealthHandler_NoDatabase(t *testing.T) {
	h := &HealthHandler{}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")
}
