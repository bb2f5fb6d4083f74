package main

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notify-dispatch/internal/common/pagination"
	hhttp "notify-dispatch/internal/handler/http"
	hanalytics "notify-dispatch/internal/handler/http/analytics"
	"notify-dispatch/internal/handler/http/auth"
	"notify-dispatch/internal/handler/http/middleware"
	hnotification "notify-dispatch/internal/handler/http/notification"
	hpreference "notify-dispatch/internal/handler/http/preference"
	"notify-dispatch/internal/handler/http/requestid"
	htemplate "notify-dispatch/internal/handler/http/template"
	"notify-dispatch/internal/observability/metrics"
	"notify-dispatch/internal/observability/tracing"
	"notify-dispatch/internal/usecase/notify"
)

// services are the usecases the routes serve.
type services struct {
	Notifications notify.Service
	Templates     htemplate.Service
	Preferences   hpreference.Service
	Reports       hanalytics.Reporter
	Inbox         hnotification.InboxLister
}

type routeOptions struct {
	DB           *sql.DB
	Version      string
	JWTSecret    []byte
	Pagination   pagination.Config
	MaxBodyBytes int64
	CORS         middleware.CORSConfig
	RateLimiter  *middleware.RateLimiter
}

// newRouter builds the API handler. Middleware order, outermost first:
// tracing, request id, recover, logging, CORS, body limit, auth, rate limit,
// metrics, mux.
func newRouter(logger *slog.Logger, svc services, opts routeOptions) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /health", &hhttp.HealthHandler{
		DB:       opts.DB,
		Version:  opts.Version,
		Channels: svc.Notifications.ChannelHealth,
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	hnotification.Register(mux, svc.Notifications)
	hnotification.RegisterInbox(mux, svc.Inbox, opts.Pagination)
	htemplate.Register(mux, svc.Templates)
	hpreference.Register(mux, svc.Preferences)
	hanalytics.Register(mux, svc.Reports)

	mws := []func(http.Handler) http.Handler{
		tracing.Middleware,
		requestid.Middleware,
		hhttp.Recover(logger),
		hhttp.Logging(logger),
	}
	if opts.CORS.Enabled() {
		mws = append(mws, middleware.CORS(opts.CORS, logger))
	}
	mws = append(mws,
		hhttp.LimitRequestBody(opts.MaxBodyBytes),
		auth.Authz(opts.JWTSecret),
	)
	if opts.RateLimiter != nil {
		mws = append(mws, opts.RateLimiter.Middleware)
	}
	mws = append(mws, metrics.InstrumentHandler)

	return hhttp.Chain(mux, mws...)
}
