package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestOpsServer() *OpsServer {
	return NewOpsServer("127.0.0.1:0", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func getHealth(t *testing.T, h http.Handler, path string) (int, healthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	return rec.Code, resp
}

func TestOpsServer_Liveness(t *testing.T) {
	h := newTestOpsServer()

	code, resp := getHealth(t, h.Handler(), "/health")
	if code != http.StatusOK || resp.Status != "ok" {
		t.Errorf("got %d %q, want 200 ok", code, resp.Status)
	}
}

func TestOpsServer_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		checks     map[string]Check
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "not ready",
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not ready",
		},
		{
			name:       "ready without checks",
			ready:      true,
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:  "ready with passing checks",
			ready: true,
			checks: map[string]Check{
				"postgres": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return nil },
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok"},
		},
		{
			name:  "failing check",
			ready: true,
			checks: map[string]Check{
				"postgres": func(context.Context) error { return errors.New("connection refused") },
				"redis":    func(context.Context) error { return nil },
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not ready",
			wantChecks: map[string]string{"postgres": "connection refused", "redis": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestOpsServer()
			for name, c := range tt.checks {
				h.AddCheck(name, c)
			}
			h.SetReady(tt.ready)

			code, resp := getHealth(t, h.Handler(), "/health/ready")
			if code != tt.wantCode || resp.Status != tt.wantStatus {
				t.Fatalf("got %d %q, want %d %q", code, resp.Status, tt.wantCode, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if resp.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, resp.Checks[name], want)
				}
			}
		})
	}
}

func TestOpsServer_ReadinessCheckTimeout(t *testing.T) {
	h := newTestOpsServer()
	h.checkTimeout = 20 * time.Millisecond
	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	h.SetReady(true)

	code, resp := getHealth(t, h.Handler(), "/health/ready")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", code)
	}
	if resp.Checks["slow"] != context.DeadlineExceeded.Error() {
		t.Errorf("slow = %q", resp.Checks["slow"])
	}
}

func TestOpsServer_LivenessRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestOpsServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("code = %d, want 405", rec.Code)
	}
}

func TestOpsServer_StartFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	defer ln.Close()

	h := NewOpsServer(ln.Addr().String(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := h.Start(context.Background(), nil); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestOpsServer_StartAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	h := NewOpsServer(addr, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.Handle("GET /metrics", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Start(ctx, nil) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never came up: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	resp, err = http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("mounted route status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("Start returned %v, want ErrServerClosed", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down")
	}
}
