package respond

import (
	"errors"
	"net/http"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/usecase/notify"
	"notify-dispatch/internal/usecase/template"
)

// StatusFor maps domain errors to HTTP status codes. Unknown errors are 500.
func StatusFor(err error) int {
	var (
		validationErr *entity.ValidationError
		renderErr     *entity.TemplateRenderError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &renderErr),
		errors.Is(err, notify.ErrUnknownEvent):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotificationNotFound),
		errors.Is(err, entity.ErrDeliveryNotFound),
		errors.Is(err, entity.ErrTemplateNotFound),
		errors.Is(err, entity.ErrPreferenceNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrInvalidTransition),
		errors.Is(err, entity.ErrConcurrentModification),
		errors.Is(err, entity.ErrDuplicateSlug),
		errors.Is(err, entity.ErrRetryLimitExceeded),
		errors.Is(err, notify.ErrNotDispatchable):
		return http.StatusConflict
	case errors.Is(err, template.ErrInactiveTemplate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, notify.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, entity.ErrSystemTemplate):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// DomainError writes err with the status StatusFor assigns to it. Domain
// errors are client-facing; anything unmapped goes through SafeError.
func DomainError(w http.ResponseWriter, err error) {
	code := StatusFor(err)
	if code < http.StatusInternalServerError {
		Error(w, code, err)
		return
	}
	SafeError(w, code, err)
}
