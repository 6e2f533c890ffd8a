package underlying

import (
	"context"
	"database/sql"
	"fmt"

	icommon "github.com/goran-ethernal/FAssetIndexor/internal/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/db"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/internal/metrics"
	"github.com/goran-ethernal/FAssetIndexor/internal/watermark"
	pkgindexer "github.com/goran-ethernal/FAssetIndexor/pkg/indexer"
)

var _ pkgindexer.Runnable = (*Tracker)(nil)

// TrackerOptions configure a tracker.
type TrackerOptions struct {
	StartBlock    uint64
	Confirmations uint64
	BatchSize     uint64
}

// Tracker follows one underlying chain, storing each block and its referenced
// payments before advancing the chain's watermark past it.
type Tracker struct {
	client     Client
	db         *sql.DB
	watermarks *watermark.Store
	opts       TrackerOptions
	key        string
	log        *logger.Logger
}

// NewTracker creates a tracker for client's chain.
func NewTracker(
	client Client, sqlDB *sql.DB, wm *watermark.Store, opts TrackerOptions, log *logger.Logger,
) *Tracker {
	if opts.BatchSize == 0 {
		opts.BatchSize = 1
	}

	return &Tracker{
		client:     client,
		db:         sqlDB,
		watermarks: wm,
		opts:       opts,
		key:        watermark.UnderlyingTrackKey(client.Chain()),
		log:        log.WithComponent(icommon.ComponentUnderlying).WithFields("chain", client.Chain()),
	}
}

// Name returns the watermark key of the tracked chain.
func (t *Tracker) Name() string {
	return t.key
}

// Run handles up to BatchSize confirmed blocks. startBlock overrides the
// configured start when the chain has no watermark yet and it is higher.
func (t *Tracker) Run(ctx context.Context, startBlock *uint64) (pkgindexer.Result, error) {
	first, ok, err := t.watermarks.GetBlock(ctx, t.key)
	if err != nil {
		return pkgindexer.Continue(), err
	}
	if !ok {
		first = t.opts.StartBlock
	}
	if startBlock != nil && *startBlock > first {
		first = *startBlock
	}

	head, err := t.client.BlockHeight(ctx)
	if err != nil {
		return pkgindexer.Continue(), fmt.Errorf("failed to get %s height: %w", t.client.Chain(), err)
	}
	if head < t.opts.Confirmations {
		return pkgindexer.Continue(), nil
	}

	last := min(head-t.opts.Confirmations, first+t.opts.BatchSize-1)
	for height := first; height <= last; height++ {
		block, err := t.client.Block(ctx, height)
		if err != nil {
			return pkgindexer.Continue(), fmt.Errorf("failed to get %s block %d: %w", t.client.Chain(), height, err)
		}

		stored, err := t.storeBlock(ctx, block)
		if err != nil {
			return pkgindexer.Continue(), err
		}

		if err := t.watermarks.SetBlock(ctx, t.key, height+1); err != nil {
			return pkgindexer.Continue(), err
		}

		metrics.UnderlyingTransactionsInc(t.client.Chain(), stored)
		t.log.Debugw("underlying block stored", "height", height, "transactions", stored)
	}

	return pkgindexer.Continue(), nil
}

// storeBlock writes the block and its referenced payments in one transaction.
// Blocks and transactions already present are kept as they are.
func (t *Tracker) storeBlock(ctx context.Context, b *Block) (int, error) {
	chain := t.client.Chain()
	stored := 0

	err := db.WithTx(ctx, t.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO underlying_block (chain, height, hash, timestamp) VALUES (?, ?, ?, ?)
			ON CONFLICT (chain, height) DO NOTHING`, chain, b.Height, b.Hash, b.Timestamp); err != nil {
			return fmt.Errorf("failed to store %s block %d: %w", chain, b.Height, err)
		}

		var blockID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM underlying_block WHERE chain = ? AND height = ?`,
			chain, b.Height).Scan(&blockID); err != nil {
			return fmt.Errorf("failed to read %s block %d: %w", chain, b.Height, err)
		}

		for _, p := range b.Transactions {
			if p.PaymentReference == nil {
				continue
			}

			var amount any
			if p.Amount != nil {
				amount = p.Amount.String()
			}

			res, err := tx.ExecContext(ctx, `
				INSERT INTO underlying_transaction (chain, block_id, hash, source, target, amount, payment_reference)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (chain, hash) DO NOTHING`,
				chain, blockID, p.Hash, nullable(p.Source), nullable(p.Target), amount, p.PaymentReference.Hex())
			if err != nil {
				return fmt.Errorf("failed to store %s transaction %s: %w", chain, p.Hash, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				stored++
			}
		}

		return nil
	})

	return stored, err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
