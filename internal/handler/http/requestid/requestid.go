// Package requestid assigns every API request an id that is echoed in the
// X-Request-ID header and carried through logs and downstream dispatches.
package requestid

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"notify-dispatch/internal/observability/logging"
)

type contextKey string

const (
	RequestIDKey    contextKey = "request_id"
	RequestIDHeader            = "X-Request-ID"
	maxIDLength                = 128
)

// FromContext returns the request id, or "" outside a request.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// Middleware reuses a client-supplied X-Request-ID or generates a UUID. The id
// is also the correlation id of the request and is attached as request_id to
// the logger stored in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > maxIDLength {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := WithRequestID(r.Context(), requestID)
		ctx = logging.WithCorrelationID(ctx, requestID)
		ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With(slog.String("request_id", requestID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
