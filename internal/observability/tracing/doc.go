// Package tracing wires OpenTelemetry into the worker.
//
// Dispatch and every channel send run inside spans started from GetTracer.
// Middleware traces the operational HTTP endpoints, and InjectHeaders
// propagates the trace context to HTTP-based providers.
package tracing
