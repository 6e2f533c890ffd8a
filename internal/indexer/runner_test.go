package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/internal/metrics"
	pkgindexer "github.com/goran-ethernal/FAssetIndexor/pkg/indexer"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type step struct {
	res pkgindexer.Result
	err error
}

// scripted returns its steps in order and cancels the runner once they run out.
type scripted struct {
	name   string
	steps  []step
	calls  int
	cancel context.CancelFunc
	trace  *[]string
}

func (s *scripted) Name() string { return s.name }

func (s *scripted) Run(ctx context.Context, _ *uint64) (pkgindexer.Result, error) {
	s.calls++
	if s.trace != nil {
		*s.trace = append(*s.trace, s.name)
	}

	if s.calls > len(s.steps) {
		s.cancel()
		return pkgindexer.Continue(), nil
	}

	st := s.steps[s.calls-1]
	return st.res, st.err
}

func TestRunner_RetriesSameRunnableAfterError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	boom := errors.New("rpc timeout")
	r := &scripted{
		name:   "plain",
		steps:  []step{{err: boom}, {err: boom}, {res: pkgindexer.Continue()}},
		cancel: cancel,
	}

	runner := NewRunner(RunnerConfig{Name: "retry-test", ErrorSleep: time.Millisecond, PollInterval: time.Millisecond},
		logger.NewNopLogger())

	err := runner.Run(ctx, r, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 4, r.calls)
	require.Zero(t, testutil.ToFloat64(metrics.RunnerConsecutiveErrors.WithLabelValues("retry-test")))
}

func TestRunner_ReplaceSwitchesWithoutSleeping(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var trace []string
	front := &scripted{name: "front", cancel: cancel, trace: &trace}
	composite := &scripted{
		name:   "composite",
		steps:  []step{{res: pkgindexer.Replace(front)}},
		cancel: cancel,
		trace:  &trace,
	}

	// an hour long poll interval would hang the test if a replacement slept
	runner := NewRunner(RunnerConfig{Name: "replace-test", PollInterval: time.Hour, ErrorSleep: time.Hour},
		logger.NewNopLogger())

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx, composite, nil) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not switch to the replacement")
	}

	require.Equal(t, []string{"composite", "front"}, trace)
	require.Equal(t, 1, composite.calls)
}

func TestRunner_CancelInterruptsSleep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	r := &scripted{name: "plain", steps: []step{{err: errors.New("db locked")}}, cancel: cancel}

	runner := NewRunner(RunnerConfig{Name: "cancel-test", ErrorSleep: time.Hour}, logger.NewNopLogger())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := runner.Run(ctx, r, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, 1, r.calls)
}

func TestRunner_EscalatesWhenStuck(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	boom := errors.New("collateral reservation 9 missing")
	r := &scripted{
		name:   "plain",
		steps:  []step{{err: boom}, {err: boom}, {err: boom}},
		cancel: cancel,
	}

	runner := NewRunner(RunnerConfig{Name: "stuck-test", ErrorSleep: time.Millisecond, StuckThreshold: 2}, log)
	require.ErrorIs(t, runner.Run(ctx, r, nil), context.Canceled)

	require.Equal(t, float64(3), testutil.ToFloat64(metrics.RunnerErrors.WithLabelValues("stuck-test")))
	require.Equal(t, 1, logs.FilterMessage("runnable failed, retrying").Len())
	require.Equal(t, 2, logs.FilterMessage("runnable is stuck, retrying").Len())
	require.Equal(t, zapcore.ErrorLevel, logs.FilterMessage("runnable is stuck, retrying").All()[0].Level)
	require.Equal(t, 1, logs.FilterMessage("runner recovered").Len())
}
