package storer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	icommon "github.com/goran-ethernal/FAssetIndexor/internal/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/db"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/internal/metrics"
	"github.com/goran-ethernal/FAssetIndexor/pkg/indexer"
	"github.com/russross/meddler"
)

var (
	_ indexer.EventStorer    = (*Storer)(nil)
	_ indexer.ContractLookup = (*Storer)(nil)
)

// Storer persists classified events into the sqlite schema.
// Every event is stored in its own transaction together with its log row,
// so a failed event leaves nothing behind and a stored one is never stored twice.
type Storer struct {
	db          *sql.DB
	maintenance db.Maintenance
	log         *logger.Logger
}

// New creates a storer. maintenance may be nil.
func New(sqlDB *sql.DB, maintenance db.Maintenance, log *logger.Logger) *Storer {
	if maintenance == nil {
		maintenance = &db.NoOpMaintenance{}
	}

	return &Storer{
		db:          sqlDB,
		maintenance: maintenance,
		log:         log.WithComponent(icommon.ComponentStorer),
	}
}

// LogExists reports whether the log at (blockIndex, logIndex) is already stored.
func (s *Storer) LogExists(ctx context.Context, blockIndex uint64, logIndex uint) (bool, error) {
	return logExists(ctx, s.db, blockIndex, logIndex)
}

// ProcessLog stores ev and its entities unless its log is already stored.
func (s *Storer) ProcessLog(ctx context.Context, ev *indexer.Event) error {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	stored := false
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		exists, err := logExists(ctx, tx, ev.Block.Index, ev.LogIndex)
		if err != nil || exists {
			return err
		}

		logID, err := insertLog(ctx, tx, ev)
		if err != nil {
			return err
		}

		if h := indexer.GetHandler(ev.Name); h != nil {
			if err := h.Persist(ctx, tx, ev, logID); err != nil {
				return fmt.Errorf("failed to persist %s at block %d log %d: %w",
					ev.Name, ev.Block.Index, ev.LogIndex, err)
			}
		}

		stored = true
		return nil
	})
	if err != nil {
		return err
	}

	if stored {
		metrics.EventStoredInc(ev.Name)
		s.log.Debugw("event stored", "event", ev.Name, "block", ev.Block.Index, "logIndex", ev.LogIndex)
	}

	return nil
}

// IsCollateralPool reports whether addr is the collateral pool of a known agent vault.
func (s *Storer) IsCollateralPool(ctx context.Context, addr common.Address) (bool, error) {
	return s.exists(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM agent_vault av
			JOIN evm_address a ON a.id = av.collateral_pool_id
			WHERE a.hex = ?)`, addr.Hex())
}

// IsCollateralPoolToken reports whether addr is the pool token of a known agent vault.
func (s *Storer) IsCollateralPoolToken(ctx context.Context, addr common.Address) (bool, error) {
	return s.exists(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM agent_vault av
			JOIN evm_address a ON a.id = av.collateral_pool_token_id
			WHERE a.hex = ?)`, addr.Hex())
}

func (s *Storer) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

type querier interface {
	meddler.DB
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func logExists(ctx context.Context, q querier, blockIndex uint64, logIndex uint) (bool, error) {
	var ok bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM evm_log WHERE block_index = ? AND log_index = ?)`,
		blockIndex, logIndex).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check log %d/%d: %w", blockIndex, logIndex, err)
	}
	return ok, nil
}

func insertLog(ctx context.Context, tx *sql.Tx, ev *indexer.Event) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO evm_block (block_index, timestamp) VALUES (?, ?) ON CONFLICT (block_index) DO NOTHING`,
		ev.Block.Index, ev.Block.Timestamp); err != nil {
		return 0, fmt.Errorf("failed to store block %d: %w", ev.Block.Index, err)
	}

	txID, err := transactionID(ctx, tx, ev)
	if err != nil {
		return 0, err
	}

	sourceID, err := AddressID(ctx, tx, ev.Source)
	if err != nil {
		return 0, err
	}

	row := &evmLog{
		BlockIndex:    ev.Block.Index,
		LogIndex:      ev.LogIndex,
		TransactionID: txID,
		AddressID:     sourceID,
		Name:          ev.Name,
		Topic:         ev.Topic,
	}
	if err := meddler.Insert(tx, "evm_log", row); err != nil {
		return 0, fmt.Errorf("failed to store log %d/%d: %w", ev.Block.Index, ev.LogIndex, err)
	}

	return row.ID, nil
}

func transactionID(ctx context.Context, tx *sql.Tx, ev *indexer.Event) (int64, error) {
	info := ev.Transaction

	sourceID, err := AddressID(ctx, tx, info.Source)
	if err != nil {
		return 0, err
	}

	var targetID *int64
	if info.Target != nil {
		id, err := AddressID(ctx, tx, *info.Target)
		if err != nil {
			return 0, err
		}
		targetID = &id
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO evm_transaction
			(hash, block_index, transaction_index, source_id, target_id, gas_limit, gas_price, gas_used, value, nonce, type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (hash) DO NOTHING`,
		info.Hash.Hex(), ev.Block.Index, info.Index, sourceID, targetID, info.GasLimit,
		bigString(info.GasPrice), info.GasUsed, bigString(info.Value), info.Nonce, info.Type)
	if err != nil {
		return 0, fmt.Errorf("failed to store transaction %s: %w", info.Hash.Hex(), err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM evm_transaction WHERE hash = ?`, info.Hash.Hex()).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read transaction %s: %w", info.Hash.Hex(), err)
	}

	return id, nil
}

// AddressID returns the id of addr in evm_address, creating the row if needed.
// Concurrent creators race benignly on the unique constraint and both read the winner's row.
func AddressID(ctx context.Context, q querier, addr common.Address) (int64, error) {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO evm_address (hex) VALUES (?) ON CONFLICT (hex) DO NOTHING`, addr.Hex()); err != nil {
		return 0, fmt.Errorf("failed to store address %s: %w", addr.Hex(), err)
	}

	var id int64
	if err := q.QueryRowContext(ctx, `SELECT id FROM evm_address WHERE hex = ?`, addr.Hex()).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read address %s: %w", addr.Hex(), err)
	}

	return id, nil
}

// lookupID runs a single-column id query and turns "no rows" into a MissingReferenceError.
func lookupID(ctx context.Context, q querier, event, entity, key, query string, args ...any) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &MissingReferenceError{Event: event, Entity: entity, Key: key}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up %s %s: %w", entity, key, err)
	}
	return id, nil
}
