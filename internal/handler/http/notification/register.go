// Package notification exposes the notification lifecycle and the provider
// callbacks over HTTP.
package notification

import (
	"net/http"

	"notify-dispatch/internal/usecase/notify"
)

// Register mounts the lifecycle and callback routes on mux.
func Register(mux *http.ServeMux, svc notify.Service) {
	mux.Handle("POST /notifications", SendHandler{svc})
	mux.Handle("GET /notifications/{id}", GetHandler{svc})
	mux.Handle("POST /notifications/{id}/dispatch", DispatchHandler{svc})
	mux.Handle("POST /notifications/{id}/retry", RetryHandler{svc})
	mux.Handle("POST /notifications/{id}/cancel", CancelHandler{svc})
	mux.Handle("POST /notifications/{id}/read", ReadHandler{svc})

	mux.Handle("POST /callbacks/delivery", DeliveryCallbackHandler{svc})
	mux.Handle("POST /callbacks/engagement", EngagementCallbackHandler{svc})
}
