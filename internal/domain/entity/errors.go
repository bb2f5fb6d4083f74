package entity

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNotificationNotFound indicates that a requested notification does not exist
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrDeliveryNotFound indicates that a requested delivery record does not exist
	ErrDeliveryNotFound = errors.New("delivery not found")

	// ErrTemplateNotFound indicates that a referenced template does not exist or is inactive
	ErrTemplateNotFound = errors.New("template not found")

	// ErrPreferenceNotFound indicates that no preference row exists for (user, type)
	ErrPreferenceNotFound = errors.New("preference not found")

	// ErrInvalidTransition indicates a state machine transition that is not allowed
	// from the entity's current status.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrRetryLimitExceeded indicates a retry was attempted after the retry budget was exhausted.
	// Callers must check CanRetry() before calling IncrementRetry().
	ErrRetryLimitExceeded = errors.New("retry limit exceeded")

	// ErrConcurrentModification indicates that an optimistic version check failed
	// because another worker updated the record first.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrSystemTemplate indicates an attempt to delete a system template.
	ErrSystemTemplate = errors.New("system templates cannot be deleted")

	// ErrDuplicateSlug indicates that an active template with the same slug and channel exists.
	ErrDuplicateSlug = errors.New("template slug already in use for channel")
)

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// TemplateRenderError reports malformed template syntax.
// Position is the byte offset of the offending token in the source string.
type TemplateRenderError struct {
	Position int
	Reason   string
}

func (e *TemplateRenderError) Error() string {
	return fmt.Sprintf("template render error at offset %d: %s", e.Position, e.Reason)
}

// ProviderNotAvailableError indicates that a channel provider is unreachable,
// misconfigured, or short-circuited. It is retryable.
type ProviderNotAvailableError struct {
	Channel Channel
	Err     error
}

func (e *ProviderNotAvailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider for channel %s not available", e.Channel)
	}
	return fmt.Sprintf("provider for channel %s not available: %v", e.Channel, e.Err)
}

func (e *ProviderNotAvailableError) Unwrap() error { return e.Err }

// NotificationDeliveryError is a transient send failure. It is retryable.
type NotificationDeliveryError struct {
	Channel Channel
	Err     error
}

func (e *NotificationDeliveryError) Error() string {
	return fmt.Sprintf("delivery via %s failed: %v", e.Channel, e.Err)
}

func (e *NotificationDeliveryError) Unwrap() error { return e.Err }

// NotificationSendError is a permanent rejection by the provider
// (invalid recipient, unsubscribed address, malformed payload).
// It is never retried, even when retry budget remains.
type NotificationSendError struct {
	Channel Channel
	Code    string
	Err     error
}

func (e *NotificationSendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("send via %s rejected (%s): %v", e.Channel, e.Code, e.Err)
	}
	return fmt.Sprintf("send via %s rejected: %v", e.Channel, e.Err)
}

func (e *NotificationSendError) Unwrap() error { return e.Err }

// IsRetryable reports whether a provider failure should consume retry budget
// and be rescheduled. Permanent rejections, render errors and validation errors
// are not retryable. Timeouts are treated like any other transient failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var sendErr *NotificationSendError
	if errors.As(err, &sendErr) {
		return false
	}
	var renderErr *TemplateRenderError
	if errors.As(err, &renderErr) {
		return false
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	return true
}

// ErrorClass returns a short, low-cardinality label for an error.
// It is used as a metrics label and as the analytics error breakdown key.
func ErrorClass(err error) string {
	if err == nil {
		return ""
	}

	var (
		sendErr        *NotificationSendError
		renderErr      *TemplateRenderError
		unavailableErr *ProviderNotAvailableError
		deliveryErr    *NotificationDeliveryError
		validationErr  *ValidationError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &sendErr):
		return "rejected"
	case errors.As(err, &renderErr):
		return "template"
	case errors.As(err, &unavailableErr):
		return "unavailable"
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &deliveryErr):
		return "transient"
	default:
		return "unknown"
	}
}

func transitionError(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
