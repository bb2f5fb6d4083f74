// Package observability groups the worker's logging, metrics, tracing and
// delivery SLO packages.
package observability
