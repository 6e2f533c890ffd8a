package indexer

import (
	"context"
	"database/sql"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/FAssetIndexor/internal/chaintest"
	"github.com/goran-ethernal/FAssetIndexor/internal/classifier"
	"github.com/goran-ethernal/FAssetIndexor/internal/contracts"
	"github.com/goran-ethernal/FAssetIndexor/internal/db/dbtest"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/internal/storer"
	"github.com/goran-ethernal/FAssetIndexor/internal/watermark"
	"github.com/stretchr/testify/require"
)

var (
	assetManager = common.HexToAddress("0xa000000000000000000000000000000000000001")
	fasset       = common.HexToAddress("0xa000000000000000000000000000000000000002")
	vault        = common.HexToAddress("0xc000000000000000000000000000000000000001")
	owner        = common.HexToAddress("0xc000000000000000000000000000000000000002")
	pool         = common.HexToAddress("0xb000000000000000000000000000000000000001")
	poolToken    = common.HexToAddress("0xb000000000000000000000000000000000000002")
	wnat         = common.HexToAddress("0xb000000000000000000000000000000000000003")
	alice        = common.HexToAddress("0xd000000000000000000000000000000000000001")
	bob          = common.HexToAddress("0xd000000000000000000000000000000000000002")
)

type harness struct {
	chain      *chaintest.Chain
	db         *sql.DB
	watermarks *watermark.Store
	deps       Deps
}

func newHarness(t *testing.T, head uint64) *harness {
	t.Helper()

	sqlDB := dbtest.New(t)
	log := logger.NewNopLogger()
	chain := chaintest.NewChain(head)
	st := storer.New(sqlDB, nil, log)
	wm := watermark.NewStore(sqlDB, log)

	return &harness{
		chain:      chain,
		db:         sqlDB,
		watermarks: wm,
		deps: Deps{
			Client:     chain,
			Storer:     st,
			Lookup:     st,
			Watermarks: wm,
			Registry:   contracts.MustLoad(),
			Addresses:  classifier.Addresses{AssetManager: assetManager, FAsset: fasset},
			Log:        log,
		},
	}
}

func (h *harness) indexer(t *testing.T, track string, events []string, batch, offset uint64) *Indexer {
	t.Helper()
	idx, err := New(h.deps, Options{Track: track, Events: events, BatchSize: batch, BlockOffset: offset})
	require.NoError(t, err)
	return idx
}

func (h *harness) setFloor(t *testing.T, floor uint64) {
	t.Helper()
	require.NoError(t, h.watermarks.SetBlock(context.Background(), watermark.KeyMinBlockNumber, floor))
}

func (h *harness) watermark(t *testing.T, track string) uint64 {
	t.Helper()
	block, ok, err := h.watermarks.GetBlock(context.Background(), track)
	require.NoError(t, err)
	require.True(t, ok, "no watermark for %s", track)
	return block
}

func (h *harness) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, h.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func vaultCreatedLog(t *testing.T, block uint64, index uint) types.Log {
	t.Helper()
	return chaintest.EventLog(t, contracts.IAssetManager, "AgentVaultCreated", assetManager, block, index,
		owner, vault, pool, poolToken, "rAgentUnderlying", wnat, big.NewInt(100))
}

func reservedLog(t *testing.T, block uint64, index uint, id int64) types.Log {
	t.Helper()
	return chaintest.EventLog(t, contracts.IAssetManager, "CollateralReserved", assetManager, block, index,
		vault, alice, big.NewInt(id), big.NewInt(1_000), big.NewInt(10), big.NewInt(500), big.NewInt(600),
		big.NewInt(1_700_000_600), "rAgentUnderlying", [32]byte{0x46}, bob, big.NewInt(0))
}

func executedLog(t *testing.T, block uint64, index uint, id int64) types.Log {
	t.Helper()
	return chaintest.EventLog(t, contracts.IAssetManager, "MintingExecuted", assetManager, block, index,
		vault, big.NewInt(id), big.NewInt(1_000), big.NewInt(8), big.NewInt(2))
}

func enteredLog(t *testing.T, block uint64, index uint) types.Log {
	t.Helper()
	return chaintest.EventLog(t, contracts.ICollateralPool, "Entered", pool, block, index,
		alice, big.NewInt(5), big.NewInt(5), big.NewInt(0), big.NewInt(0), big.NewInt(1_700_100_000))
}

func TestIndexer_FloorScenario(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 150)
	h.setFloor(t, 100)
	idx := h.indexer(t, watermark.KeyFirstUnhandledEventBlock, nil, 20, 10)
	ctx := context.Background()

	first, err := idx.FirstUnhandledBlock(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(100), first)

	require.NoError(t, idx.RunRange(ctx, 100, 120))
	require.Equal(t, uint64(121), h.watermark(t, watermark.KeyFirstUnhandledEventBlock))

	res, err := idx.Run(ctx, nil)
	require.NoError(t, err)
	_, replaced := res.Replacement()
	require.False(t, replaced)

	require.Equal(t, [][2]uint64{{100, 120}, {121, 140}}, h.chain.Ranges())
	require.Equal(t, uint64(141), h.watermark(t, watermark.KeyFirstUnhandledEventBlock))

	// [141, 140] is empty: nothing is scraped and the watermark stays put
	_, err = idx.Run(ctx, nil)
	require.NoError(t, err)
	require.Len(t, h.chain.Ranges(), 2)
	require.Equal(t, uint64(141), h.watermark(t, watermark.KeyFirstUnhandledEventBlock))
}

func TestIndexer_RunLoopsUntilCaughtUp(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 150)
	h.setFloor(t, 100)
	idx := h.indexer(t, watermark.KeyFirstUnhandledEventBlock, nil, 20, 10)

	_, err := idx.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Equal(t, [][2]uint64{{100, 120}, {121, 140}}, h.chain.Ranges())
	require.Equal(t, uint64(141), h.watermark(t, watermark.KeyFirstUnhandledEventBlock))
}

func TestIndexer_FirstUnhandledBlock(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1_000)
	idx := h.indexer(t, "track", nil, 10, 0)
	ctx := context.Background()
	start := func(v uint64) *uint64 { return &v }

	first, err := idx.FirstUnhandledBlock(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, first, "no floor and no watermark")

	h.setFloor(t, 100)
	first, err = idx.FirstUnhandledBlock(ctx, start(50))
	require.NoError(t, err)
	require.Equal(t, uint64(100), first)

	first, err = idx.FirstUnhandledBlock(ctx, start(130))
	require.NoError(t, err)
	require.Equal(t, uint64(130), first)

	// once written, the track's watermark wins over the floor even when lower
	require.NoError(t, h.watermarks.SetBlock(ctx, "track", 80))
	first, err = idx.FirstUnhandledBlock(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(80), first)
}

func TestIndexer_HeadBelowOffset(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 5)
	idx := h.indexer(t, "track", nil, 10, 10)

	_, ok, err := idx.LastBlockToHandle(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	_, err = idx.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, h.chain.Calls("GetLogs"))
}

func TestIndexer_StoresEventsInOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 200)
	h.setFloor(t, 100)
	// same-block dependencies arrive from the node in reverse order
	h.chain.AddLogs(
		executedLog(t, 105, 1, 77),
		reservedLog(t, 105, 0, 77),
		vaultCreatedLog(t, 101, 0),
		enteredLog(t, 106, 0),
		chaintest.EventLog(t, contracts.IERC20, "Transfer", poolToken, 107, 0, alice, bob, big.NewInt(1)),
		// unknown pool: skipped without error
		chaintest.EventLog(t, contracts.ICollateralPool, "Entered", common.HexToAddress("0x99"), 108, 0,
			alice, big.NewInt(5), big.NewInt(5), big.NewInt(0), big.NewInt(0), big.NewInt(0)),
	)

	idx := h.indexer(t, watermark.KeyFirstUnhandledEventBlock, nil, 50, 10)
	_, err := idx.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Equal(t, 5, h.count(t, "evm_log"))
	require.Equal(t, 1, h.count(t, "minting_executed"))
	require.Equal(t, 1, h.count(t, "collateral_pool_entered"))
	require.Equal(t, 1, h.count(t, "erc20_transfer"))
	require.Equal(t, uint64(191), h.watermark(t, watermark.KeyFirstUnhandledEventBlock))
}

func TestIndexer_ReplayIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 200)
	h.setFloor(t, 100)
	h.chain.AddLogs(vaultCreatedLog(t, 101, 0), reservedLog(t, 102, 0, 1), executedLog(t, 103, 0, 1))
	idx := h.indexer(t, watermark.KeyFirstUnhandledEventBlock, nil, 50, 10)
	ctx := context.Background()

	require.NoError(t, idx.RunRange(ctx, 100, 150))
	// a crash before the watermark moved replays the same range
	require.NoError(t, idx.RunRange(ctx, 100, 150))

	require.Equal(t, 3, h.count(t, "evm_log"))
	require.Equal(t, 1, h.count(t, "agent_vault"))
	require.Equal(t, 1, h.count(t, "minting_executed"))
}

func TestIndexer_FailedBatchKeepsWatermark(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 150)
	h.setFloor(t, 100)
	h.chain.AddLogs(vaultCreatedLog(t, 101, 0), executedLog(t, 130, 0, 9))
	idx := h.indexer(t, watermark.KeyFirstUnhandledEventBlock, nil, 20, 10)
	ctx := context.Background()

	_, err := idx.Run(ctx, nil)
	require.ErrorIs(t, err, storer.ErrMissingReference)
	require.ErrorContains(t, err, "[121, 140]")
	require.Equal(t, uint64(121), h.watermark(t, watermark.KeyFirstUnhandledEventBlock))

	h.chain.FailGetLogs(1)
	_, err = idx.Run(ctx, nil)
	require.ErrorContains(t, err, "503")
	require.Equal(t, uint64(121), h.watermark(t, watermark.KeyFirstUnhandledEventBlock))

	h.chain.AddLogs(reservedLog(t, 125, 0, 9))
	_, err = idx.Run(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(141), h.watermark(t, watermark.KeyFirstUnhandledEventBlock))
	require.Equal(t, 1, h.count(t, "minting_executed"))
}

func TestIndexer_EventRestriction(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 200)
	h.setFloor(t, 100)
	h.chain.AddLogs(
		vaultCreatedLog(t, 101, 0),
		chaintest.EventLog(t, contracts.IERC20, "Transfer", fasset, 102, 0, alice, bob, big.NewInt(1)),
	)

	idx := h.indexer(t, "transfers", []string{"Transfer"}, 100, 0)
	require.Equal(t, []string{"Transfer"}, idx.Events())

	_, err := idx.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Equal(t, 1, h.count(t, "evm_log"))
	require.Equal(t, 1, h.count(t, "erc20_transfer"))
	require.Zero(t, h.count(t, "agent_vault"))
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)

	_, err := New(h.deps, Options{BatchSize: 1})
	require.Error(t, err)

	_, err = New(h.deps, Options{Track: "x"})
	require.Error(t, err)

	_, err = New(h.deps, Options{Track: "x", BatchSize: 1, Events: []string{"Nope"}})
	require.ErrorContains(t, err, "Nope")
}
