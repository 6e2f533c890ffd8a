package storer

import (
	"context"
	"database/sql"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/db/dbtest"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/pkg/indexer"
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

func newTestStorer(t *testing.T) (*Storer, *sql.DB) {
	t.Helper()
	sqlDB := dbtest.New(t)
	return New(sqlDB, nil, logger.NewNopLogger()), sqlDB
}

func event(name string, source common.Address, block uint64, logIndex uint, args map[string]any) *indexer.Event {
	to := assetManager
	return &indexer.Event{
		Name:     name,
		Source:   source,
		LogIndex: logIndex,
		Args:     args,
		Topic:    common.BytesToHash([]byte(name)),
		Block:    indexer.BlockInfo{Index: block, Timestamp: 1_700_000_000 + block},
		Transaction: indexer.TransactionInfo{
			Hash:     common.BigToHash(new(big.Int).SetUint64(block)),
			Source:   alice,
			Target:   &to,
			GasLimit: 100_000,
			GasPrice: big.NewInt(25),
			GasUsed:  50_000,
			Value:    big.NewInt(0),
			Nonce:    1,
		},
	}
}

func vaultCreated(block uint64) *indexer.Event {
	return event("AgentVaultCreated", assetManager, block, 0, map[string]any{
		"owner":                owner,
		"agentVault":           vault,
		"collateralPool":       pool,
		"collateralPoolToken":  poolToken,
		"underlyingAddress":    "rAgentUnderlying",
		"vaultCollateralToken": wnat,
		"feeBIPS":              big.NewInt(100),
	})
}

func reserved(block uint64, id int64) *indexer.Event {
	return event("CollateralReserved", assetManager, block, 1, map[string]any{
		"agentVault":              vault,
		"minter":                  alice,
		"collateralReservationId": big.NewInt(id),
		"valueUBA":                big.NewInt(1_000),
		"feeUBA":                  big.NewInt(10),
		"firstUnderlyingBlock":    big.NewInt(500),
		"lastUnderlyingBlock":     big.NewInt(600),
		"lastUnderlyingTimestamp": big.NewInt(1_700_000_600),
		"paymentAddress":          "rAgentUnderlying",
		"paymentReference":        [32]byte{0x46, 0x42},
		"executor":                bob,
		"executorFeeNatWei":       big.NewInt(0),
	})
}

func executed(block uint64, id int64) *indexer.Event {
	return event("MintingExecuted", assetManager, block, 2, map[string]any{
		"agentVault":              vault,
		"collateralReservationId": big.NewInt(id),
		"mintedAmountUBA":         big.NewInt(1_000),
		"agentFeeUBA":             big.NewInt(8),
		"poolFeeUBA":              big.NewInt(2),
	})
}

func count(t *testing.T, sqlDB *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, sqlDB.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestProcessLog_MintingFlow(t *testing.T) {
	s, sqlDB := newTestStorer(t)
	ctx := context.Background()

	for _, ev := range []*indexer.Event{vaultCreated(10), reserved(11, 77), executed(12, 77)} {
		require.NoError(t, s.ProcessLog(ctx, ev))
	}

	require.Equal(t, 3, count(t, sqlDB, "evm_log"))
	require.Equal(t, 1, count(t, sqlDB, "agent_vault"))
	require.Equal(t, 1, count(t, sqlDB, "collateral_reserved"))
	require.Equal(t, 1, count(t, sqlDB, "minting_executed"))

	var minted, reference string
	require.NoError(t, sqlDB.QueryRow(`
		SELECT me.minted_amount_uba, cr.payment_reference
		FROM minting_executed me JOIN collateral_reserved cr ON cr.id = me.collateral_reserved_id`).
		Scan(&minted, &reference))
	require.Equal(t, "1000", minted)
	require.Equal(t, common.Hash{0x46, 0x42}.Hex(), reference)

	exists, err := s.LogExists(ctx, 12, 2)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = s.LogExists(ctx, 12, 3)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestProcessLog_ReplayIsNoop(t *testing.T) {
	s, sqlDB := newTestStorer(t)
	ctx := context.Background()

	events := []*indexer.Event{vaultCreated(10), reserved(11, 77), executed(12, 77)}
	for range 2 {
		for _, ev := range events {
			require.NoError(t, s.ProcessLog(ctx, ev))
		}
	}

	require.Equal(t, 3, count(t, sqlDB, "evm_log"))
	require.Equal(t, 3, count(t, sqlDB, "evm_transaction"))
	require.Equal(t, 3, count(t, sqlDB, "evm_block"))
	require.Equal(t, 1, count(t, sqlDB, "minting_executed"))
}

func TestProcessLog_MissingReference(t *testing.T) {
	s, sqlDB := newTestStorer(t)
	ctx := context.Background()

	err := s.ProcessLog(ctx, executed(12, 77))
	require.ErrorIs(t, err, ErrMissingReference)

	var missing *MissingReferenceError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, "MintingExecuted", missing.Event)
	require.Equal(t, "collateral reservation", missing.Entity)
	require.Equal(t, "77", missing.Key)

	// the failed event leaves no trace, so a later retry stores it
	require.Zero(t, count(t, sqlDB, "evm_log"))
	require.Zero(t, count(t, sqlDB, "evm_transaction"))

	err = s.ProcessLog(ctx, reserved(11, 77))
	require.ErrorIs(t, err, ErrMissingReference)

	require.NoError(t, s.ProcessLog(ctx, vaultCreated(10)))
	require.NoError(t, s.ProcessLog(ctx, reserved(11, 77)))
	require.NoError(t, s.ProcessLog(ctx, executed(12, 77)))
}

func TestProcessLog_WithoutHandlerStoresLogOnly(t *testing.T) {
	s, sqlDB := newTestStorer(t)

	ev := event("Approval", fasset, 5, 0, map[string]any{"owner": alice, "spender": bob, "value": big.NewInt(1)})
	require.NoError(t, s.ProcessLog(context.Background(), ev))

	require.Equal(t, 1, count(t, sqlDB, "evm_log"))
	require.Zero(t, count(t, sqlDB, "erc20_transfer"))
}

func TestProcessLog_BadArgument(t *testing.T) {
	s, sqlDB := newTestStorer(t)

	ev := event("Transfer", fasset, 5, 0, map[string]any{"from": alice, "to": bob, "value": "lots"})
	err := s.ProcessLog(context.Background(), ev)
	require.ErrorContains(t, err, "argument value")
	require.Zero(t, count(t, sqlDB, "evm_log"))
}

func TestProcessLog_SharedTransactionAndAddresses(t *testing.T) {
	s, sqlDB := newTestStorer(t)
	ctx := context.Background()

	for i := range uint(3) {
		ev := event("Transfer", fasset, 5, i, map[string]any{"from": alice, "to": bob, "value": big.NewInt(int64(i))})
		require.NoError(t, s.ProcessLog(ctx, ev))
	}

	require.Equal(t, 3, count(t, sqlDB, "erc20_transfer"))
	require.Equal(t, 1, count(t, sqlDB, "evm_transaction"))
	// fasset, alice, bob and the transaction target
	require.Equal(t, 4, count(t, sqlDB, "evm_address"))
}

func TestCollateralPoolLookup(t *testing.T) {
	s, _ := newTestStorer(t)
	ctx := context.Background()

	ok, err := s.IsCollateralPool(ctx, pool)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.ProcessLog(ctx, vaultCreated(10)))

	ok, err = s.IsCollateralPool(ctx, pool)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.IsCollateralPool(ctx, poolToken)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.IsCollateralPoolToken(ctx, poolToken)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPoolEventsAndAgentDestroyed(t *testing.T) {
	s, sqlDB := newTestStorer(t)
	ctx := context.Background()

	require.NoError(t, s.ProcessLog(ctx, vaultCreated(10)))
	require.NoError(t, s.ProcessLog(ctx, event("Entered", pool, 11, 0, map[string]any{
		"tokenHolder":        alice,
		"amountNatWei":       big.NewInt(5),
		"receivedTokensWei":  big.NewInt(5),
		"addedFAssetFeesUBA": big.NewInt(0),
		"newFAssetFeeDebt":   big.NewInt(0),
		"timelockExpiresAt":  big.NewInt(1_700_100_000),
	})))
	require.Equal(t, 1, count(t, sqlDB, "collateral_pool_entered"))

	err := s.ProcessLog(ctx, event("Exited", alice, 12, 0, map[string]any{
		"tokenHolder":           alice,
		"burnedTokensWei":       big.NewInt(5),
		"receivedNatWei":        big.NewInt(5),
		"receivedFAssetFeesUBA": big.NewInt(0),
		"closedFAssetsUBA":      big.NewInt(0),
		"newFAssetFeeDebt":      big.NewInt(0),
	}))
	require.ErrorIs(t, err, ErrMissingReference)

	require.NoError(t, s.ProcessLog(ctx, event("AgentDestroyed", assetManager, 13, 0,
		map[string]any{"agentVault": vault})))

	var destroyed bool
	require.NoError(t, sqlDB.QueryRow(`SELECT destroyed FROM agent_vault`).Scan(&destroyed))
	require.True(t, destroyed)
}
