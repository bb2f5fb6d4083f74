// Package metrics holds the process-level Prometheus metrics shared by the
// API and the worker that do not belong to a single usecase package.
package metrics

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP request metrics, labelled by method, route and status code.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notify",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served.",
	}, []string{"method", "route", "code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "notify",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "code"})
)

// RegisterDBStats exports the pool statistics of db as go_sql_* metrics with
// db_name="notify". Registering the same pool twice is not an error.
func RegisterDBStats(db *sql.DB) error {
	return registerOnce(prometheus.DefaultRegisterer, collectors.NewDBStatsCollector(db, "notify"))
}

func registerOnce(reg prometheus.Registerer, c prometheus.Collector) error {
	err := reg.Register(c)
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route string, status int, took time.Duration) {
	code := strconv.Itoa(status)
	HTTPRequestsTotal.WithLabelValues(method, route, code).Inc()
	HTTPRequestDuration.WithLabelValues(method, route, code).Observe(took.Seconds())
}

type codeRecorder struct {
	http.ResponseWriter
	code int
}

func (c *codeRecorder) WriteHeader(code int) {
	if c.code == 0 {
		c.code = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *codeRecorder) Unwrap() http.ResponseWriter { return c.ResponseWriter }

// InstrumentHandler records request count and latency for next. It must wrap
// the ServeMux directly: the matched pattern, not the raw path, becomes the
// route label so that path parameters do not create new series.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &codeRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		code := rec.code
		if code == 0 {
			code = http.StatusOK
		}
		RecordHTTPRequest(r.Method, route(r), code, time.Since(start))
	})
}

// route strips the method from a "GET /path/{id}" pattern. Unmatched
// requests share one label.
func route(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}
