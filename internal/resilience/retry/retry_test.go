package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fast() Policy {
	return Policy{Attempts: 3, Initial: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestDo(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", errs: []error{nil}, wantCalls: 1},
		{name: "recovers from refused", errs: []error{syscall.ECONNREFUSED, nil}, wantCalls: 2},
		{name: "recovers from 503", errs: []error{&HTTPError{StatusCode: 503}, &HTTPError{StatusCode: 502}, nil}, wantCalls: 3},
		{name: "stops on 400", errs: []error{&HTTPError{StatusCode: 400}}, wantCalls: 1, wantErr: true},
		{name: "exhausts attempts", errs: []error{timeoutErr{}, timeoutErr{}, timeoutErr{}}, wantCalls: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), fast(), func() error {
				err := tt.errs[calls]
				calls++
				return err
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.errs[len(tt.errs)-1])
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDo_ExhaustedMessage(t *testing.T) {
	err := Do(context.Background(), fast(), func() error { return syscall.ECONNRESET })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gave up after 3 attempts")
}

func TestDo_ContextCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 5, Initial: time.Minute, Max: time.Minute, Factor: 1}

	calls := 0
	err := Do(ctx, p, func() error {
		calls++
		cancel()
		return syscall.ECONNREFUSED
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_RetryAfterIsCappedAtMax(t *testing.T) {
	p := Policy{Attempts: 2, Initial: time.Millisecond, Max: 20 * time.Millisecond, Factor: 2}

	start := time.Now()
	calls := 0
	err := Do(context.Background(), p, func() error {
		calls++
		if calls == 1 {
			return &HTTPError{StatusCode: 429, RetryAfter: time.Hour}
		}
		return nil
	})
	require.NoError(t, err)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{fmt.Errorf("send: %w", context.DeadlineExceeded), false},
		{timeoutErr{}, true},
		{fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{&HTTPError{StatusCode: 500}, true},
		{&HTTPError{StatusCode: 429}, true},
		{&HTTPError{StatusCode: 408}, true},
		{&HTTPError{StatusCode: 404}, false},
		{errors.New("invalid recipient"), false},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestPolicies(t *testing.T) {
	for _, p := range []Policy{ProviderPolicy(), DatabasePolicy()} {
		assert.GreaterOrEqual(t, p.Attempts, 2)
		assert.LessOrEqual(t, p.Initial, p.Max)
	}
	assert.Equal(t, time.Duration(0), withJitter(0, 0.5))
	d := withJitter(100*time.Millisecond, 0.1)
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.LessOrEqual(t, d, 110*time.Millisecond)
}
