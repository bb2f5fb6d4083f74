package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"notify-dispatch/internal/usecase/retry"
)

func TestNewWorkerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWorkerMetrics(reg)

	if m.ConfigMetrics == nil || m.TickRunsTotal == nil || m.TickDurationSeconds == nil {
		t.Fatal("metrics not initialised")
	}

	// A second set on the same registry would collide.
	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	NewWorkerMetrics(reg)
}

func TestWorkerMetrics_ObserveTick(t *testing.T) {
	m := NewWorkerMetrics(prometheus.NewRegistry())

	m.ObserveTick(retry.Stats{Claimed: 3, Succeeded: 2, Failed: 1, Expired: 4}, 150*time.Millisecond, nil)
	m.ObserveTick(retry.Stats{Claimed: 1, Errors: 1}, time.Second, errors.New("db down"))

	if got := testutil.ToFloat64(m.TickRunsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("success runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TickRunsTotal.WithLabelValues("failure")); got != 1 {
		t.Errorf("failure runs = %v, want 1", got)
	}

	for outcome, want := range map[string]float64{
		"claimed":   4,
		"succeeded": 2,
		"failed":    1,
		"expired":   4,
		"errors":    1,
	} {
		if got := testutil.ToFloat64(m.TickItemsTotal.WithLabelValues(outcome)); got != want {
			t.Errorf("items[%s] = %v, want %v", outcome, got, want)
		}
	}
	if got := testutil.CollectAndCount(m.TickItemsTotal); got != 5 {
		t.Errorf("zero outcomes must not create series, got %d series", got)
	}
	if got := testutil.CollectAndCount(m.TickDurationSeconds); got != 1 {
		t.Errorf("duration histogram series = %d", got)
	}
	if testutil.ToFloat64(m.TickLastSuccessTimestamp) == 0 {
		t.Error("last success timestamp not set")
	}
}

func TestWorkerMetrics_ObserveTick_FailureKeepsLastSuccess(t *testing.T) {
	m := NewWorkerMetrics(prometheus.NewRegistry())

	m.ObserveTick(retry.Stats{}, time.Millisecond, errors.New("timeout"))
	if got := testutil.ToFloat64(m.TickLastSuccessTimestamp); got != 0 {
		t.Errorf("last success = %v, want 0 after failure only", got)
	}
}
