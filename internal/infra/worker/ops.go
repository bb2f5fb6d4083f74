package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Check tests one dependency for readiness.
type Check func(ctx context.Context) error

// OpsServer is the worker's single operational listener. It always serves
// GET /health (liveness) and GET /health/ready (readiness); Handle mounts the
// rest, such as /metrics and /health/channels.
type OpsServer struct {
	addr   string
	logger *slog.Logger
	ready  atomic.Bool
	mux    *http.ServeMux

	mu           sync.RWMutex
	checks       map[string]Check
	checkTimeout time.Duration
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewOpsServer returns a server that reports not ready until SetReady(true).
func NewOpsServer(addr string, logger *slog.Logger) *OpsServer {
	s := &OpsServer{
		addr:         addr,
		logger:       logger,
		mux:          http.NewServeMux(),
		checks:       make(map[string]Check),
		checkTimeout: 2 * time.Second,
	}
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		s.write(w, http.StatusOK, healthResponse{Status: "ok"})
	})
	s.mux.HandleFunc("GET /health/ready", s.readiness)
	return s
}

// Handle mounts h on pattern. It must be called before Start.
func (s *OpsServer) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// AddCheck registers a readiness check under name, replacing any previous one.
func (s *OpsServer) AddCheck(name string, check Check) {
	s.mu.Lock()
	s.checks[name] = check
	s.mu.Unlock()
}

// SetReady flips the readiness flag.
func (s *OpsServer) SetReady(ready bool) {
	s.ready.Store(ready)
	s.logger.Info("worker readiness changed", slog.Bool("ready", ready))
}

// Handler returns the routes without any middleware.
func (s *OpsServer) Handler() http.Handler { return s.mux }

// Start listens on addr and serves wrap(Handler()) until ctx is cancelled. A
// nil wrap serves the bare routes. After a graceful shutdown it returns
// http.ErrServerClosed.
func (s *OpsServer) Start(ctx context.Context, wrap func(http.Handler) http.Handler) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	var h http.Handler = s.mux
	if wrap != nil {
		h = wrap(h)
	}
	srv := &http.Server{
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	s.logger.Info("ops server listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-served; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("ops server stopped")
	return http.ErrServerClosed
}

func (s *OpsServer) readiness(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		s.write(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
		return
	}
	results, ok := s.runChecks(r.Context())
	status, code := "ok", http.StatusOK
	if !ok {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	s.write(w, code, healthResponse{Status: status, Checks: results})
}

// runChecks runs every check concurrently, each under checkTimeout.
func (s *OpsServer) runChecks(ctx context.Context) (map[string]string, bool) {
	s.mu.RLock()
	checks := maps.Clone(s.checks)
	s.mu.RUnlock()
	if len(checks) == 0 {
		return nil, true
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]string, len(checks))
		ok      = true
	)
	for name, check := range checks {
		wg.Go(func() {
			cctx, cancel := context.WithTimeout(ctx, s.checkTimeout)
			defer cancel()
			err := check(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				ok = false
				results[name] = err.Error()
				s.logger.Warn("readiness check failed", slog.String("check", name), slog.Any("error", err))
				return
			}
			results[name] = "ok"
		})
	}
	wg.Wait()
	return results, ok
}

func (s *OpsServer) write(w http.ResponseWriter, code int, body healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode health response", slog.Any("error", err))
	}
}
