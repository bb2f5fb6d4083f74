package notification_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/handler/http/notification"
	"notify-dispatch/internal/usecase/notify"
)

type fakeService struct {
	notify.Service // unused methods panic

	sendIn     notify.SendInput
	sendRes    notify.Result
	err        error
	stored     *entity.Notification
	lastID     string
	confirmed  string
	engagement notify.Engagement
}

func (f *fakeService) Send(_ context.Context, in notify.SendInput) (notify.Result, error) {
	f.sendIn = in
	return f.sendRes, f.err
}

func (f *fakeService) Get(_ context.Context, id string) (*entity.Notification, error) {
	f.lastID = id
	return f.stored, f.err
}

func (f *fakeService) Dispatch(_ context.Context, id string) (notify.Result, error) {
	f.lastID = id
	return f.sendRes, f.err
}

func (f *fakeService) Retry(_ context.Context, id string) (notify.Result, error) {
	f.lastID = id
	return f.sendRes, f.err
}

func (f *fakeService) Cancel(_ context.Context, id string) (*entity.Notification, error) {
	f.lastID = id
	return f.stored, f.err
}

func (f *fakeService) MarkRead(_ context.Context, id string) (*entity.Notification, error) {
	f.lastID = id
	return f.stored, f.err
}

func (f *fakeService) ConfirmDelivery(_ context.Context, providerMessageID string) error {
	f.confirmed = providerMessageID
	return f.err
}

func (f *fakeService) RecordEngagement(_ context.Context, e notify.Engagement) error {
	f.engagement = e
	return f.err
}

func newMux(svc notify.Service) *http.ServeMux {
	mux := http.NewServeMux()
	notification.Register(mux, svc)
	return mux
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSendHandler(t *testing.T) {
	svc := &fakeService{sendRes: notify.Result{
		NotificationID: "n-1",
		Status:         entity.StatusSent,
		Outcomes: []notify.ChannelOutcome{
			{Channel: entity.ChannelEmail, Status: notify.OutcomeSent, DeliveryID: "d-1", ProviderMessageID: "pm-1"},
			{Channel: entity.ChannelSMS, Status: notify.OutcomeRetryScheduled, Err: errors.New("gateway timeout")},
		},
	}}

	body := `{
		"recipient_id": "user-1",
		"type": "info",
		"title": "Hello",
		"message": "World",
		"channels": ["email", "sms"],
		"priority": "high",
		"scheduled_for": "2026-03-01T10:00:00Z",
		"max_retries": 5
	}`
	rec := do(t, newMux(svc), http.MethodPost, "/notifications", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/notifications/n-1", rec.Header().Get("Location"))
	assert.Equal(t, "user-1", svc.sendIn.RecipientID)
	assert.Equal(t, entity.TypeInfo, svc.sendIn.Type)
	assert.Equal(t, []entity.Channel{entity.ChannelEmail, entity.ChannelSMS}, svc.sendIn.Channels)
	assert.Equal(t, entity.PriorityHigh, svc.sendIn.Priority)
	assert.Equal(t, 5, svc.sendIn.MaxRetries)
	require.NotNil(t, svc.sendIn.ScheduledFor)
	assert.True(t, svc.sendIn.ScheduledFor.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))

	var res notification.ResultDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "sent", res.Status)
	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, "pm-1", res.Outcomes[0].ProviderMessageID)
	assert.Equal(t, "gateway timeout", res.Outcomes[1].Error)
}

func TestSendHandler_Scheduled(t *testing.T) {
	svc := &fakeService{sendRes: notify.Result{NotificationID: "n-2", Status: entity.StatusPending, Scheduled: true}}
	rec := do(t, newMux(svc), http.MethodPost, "/notifications", `{"recipient_id":"u","type":"info","title":"t","message":"m"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSendHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{name: "malformed json", body: `{"title":`, wantCode: http.StatusBadRequest, wantMsg: "invalid request body"},
		{name: "unknown field", body: `{"title":"t","colour":"red"}`, wantCode: http.StatusBadRequest},
		{
			name:     "validation",
			body:     `{"recipient_id":"u","type":"info","message":"m"}`,
			err:      &entity.ValidationError{Field: "title", Message: "title is required"},
			wantCode: http.StatusBadRequest,
			wantMsg:  "title is required",
		},
		{
			name:     "unknown template",
			body:     `{"recipient_id":"u","type":"info","title":"t","message":"m","template_id":"nope"}`,
			err:      fmt.Errorf("send: %w", entity.ErrTemplateNotFound),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "storage failure is hidden",
			body:     `{"recipient_id":"u","type":"info","title":"t","message":"m"}`,
			err:      errors.New("pq: connection reset by peer"),
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newMux(&fakeService{err: tt.err}), http.MethodPost, "/notifications", tt.body)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantMsg != "" {
				assert.Contains(t, rec.Body.String(), tt.wantMsg)
			}
			assert.NotContains(t, rec.Body.String(), "connection reset")
		})
	}
}

func TestLifecycleHandlers(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stored := &entity.Notification{
		ID:          "n-9",
		RecipientID: "user-1",
		Type:        entity.TypeWarning,
		Title:       "Disk",
		Message:     "almost full",
		Channels:    []entity.Channel{entity.ChannelInApp},
		Status:      entity.StatusRead,
		Priority:    entity.PriorityNormal,
		ReadAt:      &now,
		MaxRetries:  3,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tests := []struct {
		method, path string
		wantStatus   string
	}{
		{http.MethodGet, "/notifications/n-9", "read"},
		{http.MethodPost, "/notifications/n-9/cancel", "read"},
		{http.MethodPost, "/notifications/n-9/read", "read"},
		{http.MethodPost, "/notifications/n-9/dispatch", "sent"},
		{http.MethodPost, "/notifications/n-9/retry", "sent"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			svc := &fakeService{stored: stored, sendRes: notify.Result{NotificationID: "n-9", Status: entity.StatusSent}}
			rec := do(t, newMux(svc), tt.method, tt.path, "")

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "n-9", svc.lastID)
			var body struct {
				Status string `json:"status"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Status)
		})
	}
}

func TestLifecycleHandlers_DomainErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		err      error
		wantCode int
	}{
		{"not found", "/notifications/x/cancel", entity.ErrNotificationNotFound, http.StatusNotFound},
		{"terminal", "/notifications/x/read", entity.ErrInvalidTransition, http.StatusConflict},
		{"budget spent", "/notifications/x/retry", entity.ErrRetryLimitExceeded, http.StatusConflict},
		{"lost race", "/notifications/x/cancel", entity.ErrConcurrentModification, http.StatusConflict},
		{"not dispatchable", "/notifications/x/dispatch", notify.ErrNotDispatchable, http.StatusConflict},
		{"draining", "/notifications/x/dispatch", notify.ErrShuttingDown, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newMux(&fakeService{err: tt.err}), http.MethodPost, tt.path, "")
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestDeliveryCallback(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, newMux(svc), http.MethodPost, "/callbacks/delivery", `{"provider_message_id":"pm-1"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "pm-1", svc.confirmed)

	rec = do(t, newMux(svc), http.MethodPost, "/callbacks/delivery", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, newMux(&fakeService{err: entity.ErrDeliveryNotFound}), http.MethodPost, "/callbacks/delivery", `{"provider_message_id":"pm-x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEngagementCallback(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, newMux(svc), http.MethodPost, "/callbacks/engagement",
		`{"provider_message_id":"pm-1","event":"clicked","metadata":{"url":"https://example.com"}}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, entity.EventClicked, svc.engagement.Type)
	assert.Equal(t, "https://example.com", svc.engagement.Metadata["url"])

	rec = do(t, newMux(&fakeService{err: notify.ErrUnknownEvent}), http.MethodPost, "/callbacks/engagement",
		`{"provider_message_id":"pm-1","event":"sent"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, newMux(svc), http.MethodPost, "/callbacks/engagement", `{"provider_message_id":"pm-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	rec := do(t, newMux(&fakeService{}), http.MethodDelete, "/notifications/n-1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
