package indexer

import (
	"context"
	"fmt"
	"time"

	icommon "github.com/goran-ethernal/FAssetIndexor/internal/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/internal/metrics"
	pkgindexer "github.com/goran-ethernal/FAssetIndexor/pkg/indexer"
)

// RunnerConfig holds the cadence of a runner.
type RunnerConfig struct {
	// Name labels the runner in logs and metrics.
	Name string
	// PollInterval is the sleep after a successful iteration.
	PollInterval time.Duration
	// ErrorSleep is the sleep after a failed iteration.
	ErrorSleep time.Duration
	// StuckThreshold is the number of consecutive failures after which failures
	// are logged at error level. Zero disables escalation.
	StuckThreshold int
}

// Runner drives a runnable forever.
// A failed iteration is retried on the same runnable after ErrorSleep. Nothing is
// ever skipped: progress is only durable up to the last committed watermark, so
// retrying from there is always correct.
type Runner struct {
	cfg RunnerConfig
	log *logger.Logger
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig, log *logger.Logger) *Runner {
	return &Runner{
		cfg: cfg,
		log: log.WithComponent(icommon.ComponentRunner).WithFields("runner", cfg.Name),
	}
}

// Run calls runnable until ctx is cancelled, switching to replacements as they are returned.
// It returns ctx.Err() once cancelled.
func (r *Runner) Run(ctx context.Context, runnable pkgindexer.Runnable, startBlock *uint64) error {
	current := runnable
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := current.Run(ctx, startBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			failures++
			metrics.RunnerErrorInc(r.cfg.Name, failures)
			r.reportFailure(current, failures, err)

			if !sleep(ctx, r.cfg.ErrorSleep) {
				return ctx.Err()
			}
			continue
		}

		if failures > 0 {
			r.log.Infow("runner recovered", "runnable", nameOf(current), "failures", failures)
			metrics.RunnerRecovered(r.cfg.Name)
			failures = 0
		}

		if next, ok := res.Replacement(); ok {
			r.log.Infow("switching runnable", "from", nameOf(current), "to", nameOf(next))
			current = next
			continue
		}

		if !sleep(ctx, r.cfg.PollInterval) {
			return ctx.Err()
		}
	}
}

func (r *Runner) reportFailure(current pkgindexer.Runnable, failures int, err error) {
	if r.cfg.StuckThreshold > 0 && failures >= r.cfg.StuckThreshold {
		r.log.Errorw("runnable is stuck, retrying",
			"runnable", nameOf(current), "consecutiveFailures", failures, "error", err)
		return
	}

	r.log.Warnw("runnable failed, retrying",
		"runnable", nameOf(current), "consecutiveFailures", failures, "retryIn", r.cfg.ErrorSleep, "error", err)
}

// sleep waits for d and reports false if ctx was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nameOf(r pkgindexer.Runnable) string {
	if n, ok := r.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", r)
}
