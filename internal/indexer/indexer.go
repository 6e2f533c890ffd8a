package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/goran-ethernal/FAssetIndexor/internal/classifier"
	icommon "github.com/goran-ethernal/FAssetIndexor/internal/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/contracts"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/internal/metrics"
	"github.com/goran-ethernal/FAssetIndexor/internal/scraper"
	"github.com/goran-ethernal/FAssetIndexor/internal/watermark"
	pkgindexer "github.com/goran-ethernal/FAssetIndexor/pkg/indexer"
	pkgrpc "github.com/goran-ethernal/FAssetIndexor/pkg/rpc"
)

var _ pkgindexer.Runnable = (*Indexer)(nil)

// Deps are the collaborators shared by every indexer of one process.
type Deps struct {
	Client     pkgrpc.EthClient
	Storer     pkgindexer.EventStorer
	Lookup     pkgindexer.ContractLookup
	Watermarks *watermark.Store
	Registry   *contracts.Registry
	Addresses  classifier.Addresses
	Log        *logger.Logger
}

// Options describe one watermark track.
type Options struct {
	// Track is the watermark key advanced by the indexer.
	Track string
	// Events restricts the indexed event names; empty means all of them.
	Events []string
	// BatchSize is the span of one scraped sub-range.
	BatchSize uint64
	// BlockOffset is how far the indexer stays behind the chain head.
	BlockOffset uint64
}

// Indexer scrapes, classifies and stores the events of one watermark track.
// It owns its track: nothing else advances that watermark.
type Indexer struct {
	opts       Options
	client     pkgrpc.EthClient
	scraper    *scraper.LogScraper
	classifier *classifier.Classifier
	storer     pkgindexer.EventStorer
	watermarks *watermark.Store
	log        *logger.Logger
}

// New creates an indexer for the track described by opts.
func New(deps Deps, opts Options) (*Indexer, error) {
	if opts.Track == "" {
		return nil, fmt.Errorf("indexer track is required")
	}
	if opts.BatchSize == 0 {
		return nil, fmt.Errorf("indexer %s: batch size must be positive", opts.Track)
	}

	cls, err := classifier.New(deps.Client, deps.Lookup, deps.Addresses, opts.Events, deps.Registry, deps.Log)
	if err != nil {
		return nil, fmt.Errorf("indexer %s: %w", opts.Track, err)
	}

	return &Indexer{
		opts:       opts,
		client:     deps.Client,
		scraper:    scraper.NewLogScraper(deps.Client, cls.Topics(), deps.Log),
		classifier: cls,
		storer:     deps.Storer,
		watermarks: deps.Watermarks,
		log:        deps.Log.WithComponent(icommon.ComponentIndexer).WithFields("track", opts.Track),
	}, nil
}

// Name returns the watermark track of the indexer.
func (i *Indexer) Name() string {
	return i.opts.Track
}

// Events returns the event names the indexer was restricted to, nil meaning all.
func (i *Indexer) Events() []string {
	return i.opts.Events
}

// Run indexes everything between the track's first unhandled block and the
// head minus the offset, one sub-range at a time. It never replaces itself.
func (i *Indexer) Run(ctx context.Context, startBlock *uint64) (pkgindexer.Result, error) {
	first, err := i.FirstUnhandledBlock(ctx, startBlock)
	if err != nil {
		return pkgindexer.Continue(), err
	}

	last, ok, err := i.LastBlockToHandle(ctx)
	if err != nil || !ok {
		return pkgindexer.Continue(), err
	}

	return pkgindexer.Continue(), i.IndexUpTo(ctx, first, last)
}

// FirstUnhandledBlock returns max(watermark, startBlock). The minimum block floor
// stands in for the watermark while the track has never been written.
func (i *Indexer) FirstUnhandledBlock(ctx context.Context, startBlock *uint64) (uint64, error) {
	first, ok, err := i.watermarks.GetBlock(ctx, i.opts.Track)
	if err != nil {
		return 0, err
	}

	if !ok {
		floor, _, err := i.watermarks.GetBlock(ctx, watermark.KeyMinBlockNumber)
		if err != nil {
			return 0, err
		}
		first = floor
	}

	if startBlock != nil && *startBlock > first {
		first = *startBlock
	}

	return first, nil
}

// LastBlockToHandle returns the chain head minus the offset.
// ok is false while the chain is shorter than the offset.
func (i *Indexer) LastBlockToHandle(ctx context.Context) (last uint64, ok bool, err error) {
	head, err := i.client.BlockNumber(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get chain head: %w", err)
	}

	if head < i.opts.BlockOffset {
		return 0, false, nil
	}

	return head - i.opts.BlockOffset, true, nil
}

// IndexUpTo indexes [first, last] in sub-ranges of at most BatchSize+1 blocks,
// advancing the watermark after each one. An empty range is a no-op.
func (i *Indexer) IndexUpTo(ctx context.Context, first, last uint64) error {
	for first <= last {
		end := min(last, first+i.opts.BatchSize)
		if err := i.RunRange(ctx, first, end); err != nil {
			return err
		}
		first = end + 1
	}

	return nil
}

// RunRange stores the events of [from, to] in (block, log index) order and then
// moves the watermark to to+1. A failure leaves the watermark untouched, so the
// whole range is replayed next time; logs already stored are skipped by the storer.
func (i *Indexer) RunRange(ctx context.Context, from, to uint64) error {
	start := time.Now()

	logs, err := i.scraper.GetLogs(ctx, from, to)
	if err != nil {
		return err
	}

	stored := 0
	for _, l := range logs {
		ev, err := i.classifier.Classify(ctx, l)
		if err != nil {
			return fmt.Errorf("failed to classify log %d/%d in [%d, %d]: %w", l.BlockNumber, l.Index, from, to, err)
		}
		if ev == nil {
			continue
		}

		if err := i.storer.ProcessLog(ctx, ev); err != nil {
			return fmt.Errorf("failed to store %s in [%d, %d]: %w", ev.Name, from, to, err)
		}
		stored++
	}

	if err := i.watermarks.SetBlock(ctx, i.opts.Track, to+1); err != nil {
		return err
	}

	metrics.LogsScrapedInc(i.opts.Track, len(logs))
	metrics.BlocksProcessedInc(i.opts.Track, to-from+1)
	metrics.BatchDurationLog(i.opts.Track, time.Since(start))

	i.log.Infow("indexed block range", "from", from, "to", to, "logs", len(logs), "events", stored)

	return nil
}
