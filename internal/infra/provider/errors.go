package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/resilience/retry"
)

const (
	maxErrorBody     = 512
	truncationSuffix = "..."

	// defaultRetryAfter is used when a 429 carries no usable hint.
	defaultRetryAfter = 5 * time.Second
)

// gatewayError is the JSON error body accepted from HTTP gateways.
type gatewayError struct {
	Code       string  `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"` // seconds
}

// statusError maps a non-2xx gateway response to the provider failure contract:
//
//   - 429, 408 and 5xx: *retry.HTTPError (retried in-call, then transient)
//   - 401, 403 and 404 on the gateway itself: *entity.ProviderNotAvailableError
//   - any other 4xx: *entity.NotificationSendError (permanent)
func statusError(ch entity.Channel, resp *http.Response, body []byte) error {
	msg := truncate(string(body), maxErrorBody, truncationSuffix)

	var parsed gatewayError
	_ = json.Unmarshal(body, &parsed)

	switch code := resp.StatusCode; {
	case code == http.StatusTooManyRequests:
		return &retry.HTTPError{StatusCode: code, Message: msg, RetryAfter: retryAfter(resp, parsed)}
	case code == http.StatusRequestTimeout || code >= 500:
		return &retry.HTTPError{StatusCode: code, Message: msg}
	case code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusNotFound:
		return &entity.ProviderNotAvailableError{
			Channel: ch,
			Err:     fmt.Errorf("gateway returned %d: %s", code, msg),
		}
	case code >= 400:
		reason := parsed.Code
		if reason == "" {
			reason = "http_" + strconv.Itoa(code)
		}
		return &entity.NotificationSendError{
			Channel: ch,
			Code:    reason,
			Err:     fmt.Errorf("gateway rejected message: %s", msg),
		}
	default:
		return &entity.NotificationDeliveryError{
			Channel: ch,
			Err:     fmt.Errorf("unexpected status code %d: %s", code, msg),
		}
	}
}

// retryAfter reads the hint from the JSON body first, then the Retry-After header.
func retryAfter(resp *http.Response, parsed gatewayError) time.Duration {
	if parsed.RetryAfter > 0 {
		return time.Duration(parsed.RetryAfter * float64(time.Second))
	}
	if h := resp.Header.Get("Retry-After"); h != "" {
		if seconds, err := strconv.Atoi(h); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultRetryAfter
}

// transient wraps whatever is left after in-call retries so the dispatcher
// records it against the retry budget. Typed provider errors pass through.
func transient(ch entity.Channel, err error) error {
	if err == nil {
		return nil
	}
	var (
		sendErr        *entity.NotificationSendError
		unavailableErr *entity.ProviderNotAvailableError
		deliveryErr    *entity.NotificationDeliveryError
	)
	if errors.As(err, &sendErr) || errors.As(err, &unavailableErr) || errors.As(err, &deliveryErr) {
		return err
	}
	return &entity.NotificationDeliveryError{Channel: ch, Err: err}
}

// truncate cuts text to maxLength bytes including suffix.
func truncate(text string, maxLength int, suffix string) string {
	if len(text) <= maxLength {
		return text
	}
	cut := maxLength - len(suffix)
	if cut < 0 {
		cut = 0
	}
	return text[:cut] + suffix
}
