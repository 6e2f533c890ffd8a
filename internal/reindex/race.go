package reindex

import (
	"context"
	"fmt"

	icommon "github.com/goran-ethernal/FAssetIndexor/internal/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/contracts"
	"github.com/goran-ethernal/FAssetIndexor/internal/indexer"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/internal/watermark"
	pkgindexer "github.com/goran-ethernal/FAssetIndexor/pkg/indexer"
)

func backTrack(name string) string { return watermark.BackTrackKey(name) }

// RacePopulation runs a back track over the diff events and a front track over
// the remaining events. Convergence is detected by comparing their watermarks and
// recorded in a persisted flag, after which the merged indexer takes over for good.
type RacePopulation struct {
	opts       Options
	back       *indexer.Indexer
	front      *indexer.Indexer
	merged     *indexer.Indexer
	watermarks *watermark.Store
	log        *logger.Logger
}

// NewRacePopulation creates the composite. base describes the regular track over
// the full event set: the front races on base minus the diff, and once synced the
// merged indexer continues base's track over the union of both sets.
func NewRacePopulation(deps indexer.Deps, base indexer.Options, opts Options) (*RacePopulation, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	frontOpts := base
	frontOpts.Events = deps.Registry.Difference(base.Events, opts.EventNameDiff)
	if len(frontOpts.Events) == 0 {
		return nil, fmt.Errorf("reindex %s: event name diff leaves no front events", opts.Name)
	}
	front, err := indexer.New(deps, frontOpts)
	if err != nil {
		return nil, err
	}

	back, err := indexer.New(deps, indexer.Options{
		Track:       watermark.RaceTrackKey(opts.Name),
		Events:      opts.EventNameDiff,
		BatchSize:   base.BatchSize,
		BlockOffset: base.BlockOffset,
	})
	if err != nil {
		return nil, err
	}

	mergedOpts := base
	mergedOpts.Events = contracts.Union(frontOpts.Events, opts.EventNameDiff)
	merged, err := indexer.New(deps, mergedOpts)
	if err != nil {
		return nil, err
	}

	return &RacePopulation{
		opts:       opts,
		back:       back,
		front:      front,
		merged:     merged,
		watermarks: deps.Watermarks,
		log:        deps.Log.WithComponent(icommon.ComponentReindex).WithFields("reindex", opts.Name, "kind", "race"),
	}, nil
}

// Name identifies the composite in runner logs.
func (r *RacePopulation) Name() string {
	return "racePopulation_" + r.opts.Name
}

// Run steps the back track toward the front one and hands over to the merged
// indexer once they meet. A previously recorded convergence short-circuits
// without touching the chain.
func (r *RacePopulation) Run(ctx context.Context, startBlock *uint64) (pkgindexer.Result, error) {
	synced, err := r.watermarks.GetBool(ctx, watermark.RaceSyncedKey(r.opts.Name))
	if err != nil {
		return pkgindexer.Continue(), err
	}
	if synced {
		return pkgindexer.Replace(r.merged), nil
	}

	frontFirst, err := r.front.FirstUnhandledBlock(ctx, startBlock)
	if err != nil {
		return pkgindexer.Continue(), err
	}

	caughtUp, err := stepBack(ctx, r.back, frontFirst, r.opts.StepSize)
	if err != nil {
		return pkgindexer.Continue(), err
	}
	if caughtUp {
		if err := r.watermarks.SetBool(ctx, watermark.RaceSyncedKey(r.opts.Name), true); err != nil {
			return pkgindexer.Continue(), err
		}
		r.log.Infow("race population synced", "block", frontFirst)
		return pkgindexer.Replace(r.merged), nil
	}

	if err := stepFront(ctx, r.front, frontFirst, r.opts); err != nil {
		return pkgindexer.Continue(), err
	}

	return pkgindexer.Continue(), nil
}
