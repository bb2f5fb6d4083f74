package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/observability/logging"
	"notify-dispatch/internal/observability/tracing"
	"notify-dispatch/internal/resilience/retry"
)

const maxResponseBody = 64 << 10

// gatewayResponse is the accepted-message body returned by SMS and push gateways.
type gatewayResponse struct {
	ID string `json:"id"`
}

// httpSender posts JSON payloads with rate limiting and short in-call retries.
// It is shared by the SMS, push and webhook providers.
type httpSender struct {
	channel entity.Channel
	client  *http.Client
	limiter *RateLimiter
	retry   retry.Policy
	// decorate sets auth or signature headers on each attempt.
	decorate func(req *http.Request, body []byte)
}

func newHTTPSender(ch entity.Channel, timeout time.Duration, rps float64, burst int) *httpSender {
	return &httpSender{
		channel: ch,
		client:  &http.Client{Timeout: timeout},
		limiter: NewRateLimiter(rps, burst),
		retry:   retry.ProviderPolicy(),
	}
}

// post sends payload to url and returns the response body of the 2xx reply
// together with its headers.
func (s *httpSender) post(ctx context.Context, url string, payload any) ([]byte, http.Header, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, &entity.NotificationSendError{
			Channel: s.channel,
			Code:    "invalid_payload",
			Err:     fmt.Errorf("marshal payload: %w", err),
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, nil, transient(s.channel, fmt.Errorf("rate limiter: %w", err))
	}

	var (
		body   []byte
		header http.Header
	)
	attempt := 0
	err = retry.Do(ctx, s.retry, func() error {
		attempt++
		b, h, doErr := s.do(ctx, url, data)
		if doErr != nil {
			logging.FromContext(ctx).Debug("provider request failed",
				slog.String("channel", string(s.channel)),
				slog.Int("attempt", attempt),
				slog.Any("error", doErr))
			return doErr
		}
		body, header = b, h
		return nil
	})
	if err != nil {
		return nil, nil, transient(s.channel, err)
	}
	return body, header, nil
}

func (s *httpSender) do(ctx context.Context, url string, data []byte) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, nil, &entity.ProviderNotAvailableError{Channel: s.channel, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "notify-dispatch/1.0")
	tracing.InjectHeaders(ctx, req.Header)
	if s.decorate != nil {
		s.decorate(req, data)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, resp.Header, nil
	}
	return nil, nil, statusError(s.channel, resp, body)
}

// messageID extracts the gateway's id for an accepted message. A gateway that
// returns no id falls back to the delivery id.
func messageID(body []byte, fallback string) string {
	var r gatewayResponse
	if err := json.Unmarshal(body, &r); err == nil && r.ID != "" {
		return r.ID
	}
	return fallback
}

func bearer(token string) func(*http.Request, []byte) {
	if token == "" {
		return nil
	}
	return func(req *http.Request, _ []byte) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func subjectOf(msg *string) string {
	if msg == nil {
		return ""
	}
	return *msg
}
