// Package watermark persists the per-track "first unhandled block" cursors
// and the few identity records kept in the same key/value table.
package watermark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/goran-ethernal/FAssetIndexor/internal/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/db"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/internal/metrics"
	"github.com/russross/meddler"
)

// Well-known keys of the var table.
const (
	KeyFirstUnhandledEventBlock = "firstUnhandledEventBlock"
	KeyMinBlockNumber           = "minBlockNumber"
	KeyChain                    = "chain"
	KeyChainID                  = "chainId"
	KeyAssetManager             = "assetManager"
)

// ErrWatermarkRegression is returned when a block watermark would move backwards.
var ErrWatermarkRegression = errors.New("watermark regression")

// BackTrackKey is the watermark key of the back track of a back-population named name.
func BackTrackKey(name string) string {
	return "backPopulation_" + name + "_" + KeyFirstUnhandledEventBlock
}

// RaceTrackKey is the watermark key of the back track of a race-population named name.
func RaceTrackKey(name string) string {
	return "racePopulation_" + name + "_" + KeyFirstUnhandledEventBlock
}

// RaceSyncedKey is the key of the flag marking a race-population named name as converged.
func RaceSyncedKey(name string) string {
	return "racePopulation_" + name + "_synced"
}

// UnderlyingTrackKey is the watermark key of an underlying chain tracker.
func UnderlyingTrackKey(chain string) string {
	return "firstUnhandledUnderlyingBlock_" + chain
}

// Var is one row of the var table.
type Var struct {
	Key   string  `meddler:"key"`
	Value *string `meddler:"value"`
}

// Store reads and writes the var table.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// NewStore creates a watermark store on top of a migrated database.
func NewStore(sqlDB *sql.DB, log *logger.Logger) *Store {
	return &Store{db: sqlDB, log: log.WithComponent(common.ComponentWatermark)}
}

// GetVar returns the value stored under key, or nil when the key is absent or NULL.
func (s *Store) GetVar(ctx context.Context, key string) (*string, error) {
	return getVar(ctx, s.db, key)
}

// SetVar stores value under key, creating the row if needed.
func (s *Store) SetVar(ctx context.Context, key, value string) error {
	return setVar(ctx, s.db, key, value)
}

// InitVars records every var of vars that has no value yet, in one transaction.
// Vars that already hold a value are left untouched.
func (s *Store) InitVars(ctx context.Context, vars map[string]string) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for key, value := range vars {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO var (key, value) VALUES (?, ?)
				ON CONFLICT (key) DO UPDATE SET value = excluded.value WHERE var.value IS NULL`,
				key, value); err != nil {
				return fmt.Errorf("failed to initialize var %s: %w", key, err)
			}
		}
		return nil
	})
}

// GetBlock returns the block stored under key. ok is false when nothing was stored yet.
func (s *Store) GetBlock(ctx context.Context, key string) (block uint64, ok bool, err error) {
	v, err := s.GetVar(ctx, key)
	if err != nil || v == nil {
		return 0, false, err
	}

	block, err = common.ParseBlockNumber(*v)
	if err != nil {
		return 0, false, fmt.Errorf("var %s holds an invalid block number: %w", key, err)
	}

	return block, true, nil
}

// SetBlock moves the block watermark stored under key to block.
// Moving a watermark backwards fails with ErrWatermarkRegression and leaves it unchanged.
func (s *Store) SetBlock(ctx context.Context, key string, block uint64) error {
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		current, err := getVar(ctx, tx, key)
		if err != nil {
			return err
		}

		if current != nil {
			prev, err := common.ParseBlockNumber(*current)
			if err != nil {
				return fmt.Errorf("var %s holds an invalid block number: %w", key, err)
			}
			if block < prev {
				return fmt.Errorf("%w: %s from %d to %d", ErrWatermarkRegression, key, prev, block)
			}
		}

		return setVar(ctx, tx, key, common.FormatBlockNumber(block))
	})
	if err != nil {
		return err
	}

	metrics.WatermarkSet(key, block)
	s.log.Debugw("watermark advanced", "track", key, "block", block)

	return nil
}

// GetBool returns the flag stored under key; absent flags are false.
func (s *Store) GetBool(ctx context.Context, key string) (bool, error) {
	v, err := s.GetVar(ctx, key)
	if err != nil || v == nil {
		return false, err
	}

	b, err := strconv.ParseBool(*v)
	if err != nil {
		return false, fmt.Errorf("var %s holds an invalid boolean: %w", key, err)
	}

	return b, nil
}

// SetBool stores a flag under key.
func (s *Store) SetBool(ctx context.Context, key string, value bool) error {
	return s.SetVar(ctx, key, strconv.FormatBool(value))
}

// All returns every row of the var table ordered by key.
func (s *Store) All(ctx context.Context) ([]*Var, error) {
	var vars []*Var
	if err := meddler.QueryAll(s.db, &vars, `SELECT key, value FROM var ORDER BY key`); err != nil {
		return nil, fmt.Errorf("failed to list vars: %w", err)
	}
	return vars, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getVar(ctx context.Context, q querier, key string) (*string, error) {
	var value sql.NullString

	err := q.QueryRowContext(ctx, `SELECT value FROM var WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read var %s: %w", key, err)
	}
	if !value.Valid {
		return nil, nil
	}

	return &value.String, nil
}

func setVar(ctx context.Context, q querier, key, value string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO var (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write var %s: %w", key, err)
	}
	return nil
}
