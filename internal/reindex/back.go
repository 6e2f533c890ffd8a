// Package reindex holds the composite runnables that change the indexed event
// set of a live database while the regular track keeps advancing.
package reindex

import (
	"context"
	"fmt"

	icommon "github.com/goran-ethernal/FAssetIndexor/internal/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/contracts"
	"github.com/goran-ethernal/FAssetIndexor/internal/indexer"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	pkgindexer "github.com/goran-ethernal/FAssetIndexor/pkg/indexer"
)

var (
	_ pkgindexer.Runnable = (*BackPopulation)(nil)
	_ pkgindexer.Runnable = (*RacePopulation)(nil)
)

// Options are the knobs shared by both strategies.
type Options struct {
	// Name keys the extra watermark tracks of the migration.
	Name string
	// EventNameDiff is the set of event names indexed retroactively.
	EventNameDiff []string
	// StepSize bounds how many blocks the back track advances per call.
	StepSize uint64
	// NewBlocksBeforeIndex is the slack the front track needs before it is stepped.
	NewBlocksBeforeIndex uint64
}

func (o Options) validate() error {
	if o.Name == "" {
		return fmt.Errorf("reindex name is required")
	}
	if len(o.EventNameDiff) == 0 {
		return fmt.Errorf("reindex %s: event name diff is empty", o.Name)
	}
	if o.StepSize == 0 {
		return fmt.Errorf("reindex %s: step size must be positive", o.Name)
	}
	return nil
}

// BackPopulation fills in the diff events behind a live front track.
// The back track has its own watermark and never passes the front's. Once it
// catches up, the front indexer replaces the composite.
type BackPopulation struct {
	opts  Options
	back  *indexer.Indexer
	front *indexer.Indexer
	log   *logger.Logger
}

// NewBackPopulation creates the composite. front is the regular indexer; its event
// set is widened with the diff so the indexer that takes over keeps the new events.
// The back track is built from front's settings restricted to the diff.
func NewBackPopulation(deps indexer.Deps, front indexer.Options, opts Options) (*BackPopulation, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	front.Events = contracts.Union(front.Events, opts.EventNameDiff)
	frontIdx, err := indexer.New(deps, front)
	if err != nil {
		return nil, err
	}

	backIdx, err := indexer.New(deps, indexer.Options{
		Track:       backTrack(opts.Name),
		Events:      opts.EventNameDiff,
		BatchSize:   front.BatchSize,
		BlockOffset: front.BlockOffset,
	})
	if err != nil {
		return nil, err
	}

	return &BackPopulation{
		opts:  opts,
		back:  backIdx,
		front: frontIdx,
		log:   deps.Log.WithComponent(icommon.ComponentReindex).WithFields("reindex", opts.Name, "kind", "back"),
	}, nil
}

// Name identifies the composite in runner logs.
func (b *BackPopulation) Name() string {
	return "backPopulation_" + b.opts.Name
}

// Run advances the back track by one bounded step, handing over to the front
// indexer once the back track has reached it.
func (b *BackPopulation) Run(ctx context.Context, startBlock *uint64) (pkgindexer.Result, error) {
	frontFirst, err := b.front.FirstUnhandledBlock(ctx, startBlock)
	if err != nil {
		return pkgindexer.Continue(), err
	}

	caughtUp, err := stepBack(ctx, b.back, frontFirst, b.opts.StepSize)
	if err != nil {
		return pkgindexer.Continue(), err
	}
	if caughtUp {
		b.log.Infow("back population complete", "block", frontFirst)
		return pkgindexer.Replace(b.front), nil
	}

	if err := stepFront(ctx, b.front, frontFirst, b.opts); err != nil {
		return pkgindexer.Continue(), err
	}

	return pkgindexer.Continue(), nil
}

// stepBack runs the back track over at most step blocks below frontFirst and
// reports whether it has reached frontFirst.
func stepBack(ctx context.Context, back *indexer.Indexer, frontFirst, step uint64) (bool, error) {
	backFirst, err := back.FirstUnhandledBlock(ctx, nil)
	if err != nil {
		return false, err
	}
	if backFirst >= frontFirst {
		return true, nil
	}

	end := min(backFirst+step-1, frontFirst-1)
	if err := back.IndexUpTo(ctx, backFirst, end); err != nil {
		return false, err
	}

	return end+1 >= frontFirst, nil
}

// stepFront advances the front track by one bounded step, but only once the
// chain is at least NewBlocksBeforeIndex blocks past it.
func stepFront(ctx context.Context, front *indexer.Indexer, frontFirst uint64, opts Options) error {
	last, ok, err := front.LastBlockToHandle(ctx)
	if err != nil || !ok {
		return err
	}
	if last < frontFirst+opts.NewBlocksBeforeIndex {
		return nil
	}

	return front.IndexUpTo(ctx, frontFirst, min(last, frontFirst+opts.StepSize-1))
}
