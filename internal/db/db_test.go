package db

import (
	"context"
	"database/sql"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/pkg/config"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/russross/meddler"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, journal string) (*sql.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	cfg := config.DatabaseConfig{Path: dbPath, JournalMode: journal}
	cfg.ApplyDefaults()

	sqlDB, err := NewSQLiteDBFromConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return sqlDB, dbPath
}

func TestRunMigrations(t *testing.T) {
	sqlDB, _ := newTestDB(t, "WAL")
	log := logger.NewNopLogger()

	require.NoError(t, RunMigrations(log, sqlDB))
	// second run is a no-op
	require.NoError(t, RunMigrations(log, sqlDB))

	for _, table := range []string{"var", "evm_log", "agent_vault", "erc20_transfer", "underlying_transaction"} {
		var name string
		err := sqlDB.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	require.NoError(t, RunMigrationsExtended(log, sqlDB, migrate.Down, 1))

	var count int
	require.NoError(t, sqlDB.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'underlying_block'`).Scan(&count))
	require.Zero(t, count)
}

func TestPragmasApplyToEveryConnection(t *testing.T) {
	cfg := config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "pragmas.db"),
		JournalMode: "WAL",
		Synchronous: "OFF",
		CacheSize:   -4000,
	}
	cfg.ApplyDefaults()

	sqlDB, err := NewSQLiteDBFromConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	ctx := context.Background()
	conns := make([]*sql.Conn, 0, 2)
	for range 2 {
		conn, err := sqlDB.Conn(ctx)
		require.NoError(t, err)
		conns = append(conns, conn)
	}
	t.Cleanup(func() {
		for _, c := range conns {
			c.Close()
		}
	})

	for i, conn := range conns {
		var synchronous, cacheSize int
		require.NoError(t, conn.QueryRowContext(ctx, `PRAGMA synchronous`).Scan(&synchronous))
		require.NoError(t, conn.QueryRowContext(ctx, `PRAGMA cache_size`).Scan(&cacheSize))
		require.Zero(t, synchronous, "connection %d", i)
		require.Equal(t, -4000, cacheSize, "connection %d", i)
	}
}

func TestWithTx(t *testing.T) {
	sqlDB, _ := newTestDB(t, "WAL")
	ctx := context.Background()

	_, err := sqlDB.Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = WithTx(ctx, sqlDB, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO kv VALUES ('a', '1')`)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, sqlDB.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&count))
	require.Zero(t, count, "rolled back")

	require.NoError(t, WithTx(ctx, sqlDB, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO kv VALUES ('a', '1')`)
		return err
	}))
}

type meddlerRow struct {
	ID      int64           `meddler:"id,pk"`
	Addr    common.Address  `meddler:"addr,address"`
	OptAddr *common.Address `meddler:"opt_addr,address"`
	Hash    common.Hash     `meddler:"hash,hash"`
	Amount  *big.Int        `meddler:"amount,bigint"`
}

func TestMeddlers(t *testing.T) {
	sqlDB, _ := newTestDB(t, "WAL")

	_, err := sqlDB.Exec(`CREATE TABLE meddler_rows (id INTEGER PRIMARY KEY AUTOINCREMENT, addr TEXT, opt_addr TEXT, hash TEXT, amount TEXT)`)
	require.NoError(t, err)

	huge, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)

	in := &meddlerRow{
		Addr:   common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Hash:   common.HexToHash("0xbeef"),
		Amount: huge,
	}
	require.NoError(t, meddler.Insert(sqlDB, "meddler_rows", in))
	require.NotZero(t, in.ID)

	var out meddlerRow
	require.NoError(t, meddler.Load(sqlDB, "meddler_rows", &out, in.ID))
	require.Equal(t, in.Addr, out.Addr)
	require.Nil(t, out.OptAddr)
	require.Equal(t, in.Hash, out.Hash)
	require.Equal(t, 0, huge.Cmp(out.Amount))
}
