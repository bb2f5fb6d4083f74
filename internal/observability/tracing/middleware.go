package tracing

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDHeader carries the trace id back to the caller.
const TraceIDHeader = "X-Trace-Id"

type statusCapture struct {
	http.ResponseWriter
	code int
}

func (s *statusCapture) WriteHeader(code int) {
	if s.code == 0 {
		s.code = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusCapture) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusCapture) status() int {
	if s.code == 0 {
		return http.StatusOK
	}
	return s.code
}

// Middleware opens a server span named "METHOD /path" for each request,
// continuing a W3C traceparent when the caller sent one. 5xx responses mark
// the span as failed.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parent := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(parent, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			))
		defer span.End()

		w.Header().Set(TraceIDHeader, span.SpanContext().TraceID().String())

		sc := &statusCapture{ResponseWriter: w}
		next.ServeHTTP(sc, r.WithContext(ctx))

		code := sc.status()
		span.SetAttributes(attribute.Int("http.status_code", code))
		if code >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(code))
		}
	})
}
