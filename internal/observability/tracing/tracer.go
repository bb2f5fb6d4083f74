package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is the instrumentation scope of every span in the process.
const ServiceName = "notify-dispatch"

var tracer = otel.Tracer(ServiceName)

// GetTracer returns the process tracer.
//
//	ctx, span := tracing.GetTracer().Start(ctx, "notify.Dispatch")
//	defer span.End()
func GetTracer() trace.Tracer {
	return tracer
}

// InitProvider installs an SDK tracer provider sampling sampleRatio of root
// spans and the W3C trace-context propagator. Span processors are added by
// the caller through opts. The returned function flushes and stops the provider.
func InitProvider(sampleRatio float64, opts ...sdktrace.TracerProviderOption) func(context.Context) error {
	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
	}, opts...)
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown
}

// InjectHeaders writes the span context of ctx into outbound request headers.
func InjectHeaders(ctx context.Context, header map[string][]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}

// TraceID returns the hex trace id of the span in ctx, or "" when there is none.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
