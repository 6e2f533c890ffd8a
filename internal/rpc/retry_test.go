package rpc

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/goran-ethernal/FAssetIndexor/internal/common"
	"github.com/goran-ethernal/FAssetIndexor/pkg/config"
	"github.com/stretchr/testify/require"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "net failure" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

func testRetryConfig() *config.RetryConfig {
	return &config.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    common.NewDuration(time.Millisecond),
		MaxBackoff:        common.NewDuration(5 * time.Millisecond),
		BackoffMultiplier: 2,
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
	}{
		{nil, false},
		{&fakeNetError{timeout: true}, true},
		{syscall.ECONNREFUSED, true},
		{fmt.Errorf("dial: %w", syscall.ECONNRESET), true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("503 Service Unavailable"), true},
		{errors.New("header not found"), true},
		{errors.New("context deadline exceeded"), true},
		{ethereum.NotFound, false},
		{context.Canceled, false},
		{errors.New("execution reverted"), false},
		{errors.New("invalid argument 0"), false},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tt.retryable, retryableError(tt.err))
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := &config.RetryConfig{
		InitialBackoff:    common.NewDuration(100 * time.Millisecond),
		MaxBackoff:        common.NewDuration(time.Second),
		BackoffMultiplier: 2,
	}

	require.Zero(t, calculateBackoff(1, cfg))

	for attempt, base := range map[int]time.Duration{
		2: 100 * time.Millisecond,
		3: 200 * time.Millisecond,
		4: 400 * time.Millisecond,
		9: time.Second,
	} {
		got := calculateBackoff(attempt, cfg)
		require.GreaterOrEqual(t, got, base*3/4, "attempt %d", attempt)
		require.LessOrEqual(t, got, base*5/4, "attempt %d", attempt)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(ctx, testRetryConfig(), "test", "eth_getLogs", func() error {
			calls++
			if calls < 3 {
				return errors.New("503 service unavailable")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(ctx, testRetryConfig(), "test", "eth_getLogs", func() error {
			calls++
			return ethereum.NotFound
		})
		require.ErrorIs(t, err, ethereum.NotFound)
		require.Equal(t, 1, calls)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(ctx, testRetryConfig(), "test", "eth_getLogs", func() error {
			calls++
			return errors.New("timeout")
		})
		require.ErrorContains(t, err, "all 3 attempts")
		require.Equal(t, 3, calls)
	})

	t.Run("nil config runs once", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(ctx, nil, "test", "eth_getLogs", func() error {
			calls++
			return errors.New("timeout")
		})
		require.Error(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := retryWithBackoff(cctx, testRetryConfig(), "test", "eth_getLogs", func() error {
			t.Fatal("must not be called")
			return nil
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}
