package storer

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/FAssetIndexor/pkg/indexer"
	"github.com/russross/meddler"
)

// Events without a handler, like Approval, keep only their evm_log row.
func init() {
	indexer.Register("AgentVaultCreated", indexer.HandlerFunc(agentVaultCreated))
	indexer.Register("AgentDestroyed", indexer.HandlerFunc(agentDestroyed))
	indexer.Register("CollateralReserved", indexer.HandlerFunc(collateralReservedHandler))
	indexer.Register("MintingExecuted", indexer.HandlerFunc(mintingExecutedHandler))
	indexer.Register("MintingPaymentDefault", reservationClosedHandler("minting_payment_default"))
	indexer.Register("CollateralReservationDeleted", reservationClosedHandler("collateral_reservation_deleted"))
	indexer.Register("RedemptionRequested", indexer.HandlerFunc(redemptionRequestedHandler))
	indexer.Register("RedemptionPerformed", indexer.HandlerFunc(redemptionPerformedHandler))
	indexer.Register("RedemptionDefault", indexer.HandlerFunc(redemptionDefaultHandler))
	indexer.Register("Entered", indexer.HandlerFunc(poolEnteredHandler))
	indexer.Register("Exited", indexer.HandlerFunc(poolExitedHandler))
	indexer.Register("Transfer", indexer.HandlerFunc(transferHandler))
	indexer.Register("PricesPublished", indexer.HandlerFunc(pricesPublishedHandler))
	indexer.Register("PaymentConfirmed", indexer.HandlerFunc(paymentConfirmedHandler))
}

func agentVaultCreated(ctx context.Context, tx *sql.Tx, ev *indexer.Event, logID int64) error {
	r := &argReader{ev: ev}
	vault := r.address("agentVault")
	owner := r.address("owner")
	pool := r.address("collateralPool")
	poolToken := r.address("collateralPoolToken")
	vaultToken := r.address("vaultCollateralToken")
	underlying := r.string("underlyingAddress")
	fee := r.big("feeBIPS")
	if r.err != nil {
		return r.err
	}

	ids, err := addressIDs(ctx, tx, vault, owner, pool, poolToken, vaultToken)
	if err != nil {
		return err
	}

	return insert(tx, "agent_vault", &agentVault{
		EvmLogID:               logID,
		AddressID:              ids[0],
		OwnerID:                ids[1],
		CollateralPoolID:       ids[2],
		CollateralPoolTokenID:  ids[3],
		VaultCollateralTokenID: ids[4],
		UnderlyingAddress:      underlying,
		FeeBIPS:                fee,
	})
}

func agentDestroyed(ctx context.Context, tx *sql.Tx, ev *indexer.Event, _ int64) error {
	vault, err := arg[common.Address](ev, "agentVault")
	if err != nil {
		return err
	}

	id, err := agentVaultID(ctx, tx, ev.Name, vault)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE agent_vault SET destroyed = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark agent vault %s destroyed: %w", vault.Hex(), err)
	}
	return nil
}

func collateralReservedHandler(ctx context.Context, tx *sql.Tx, ev *indexer.Event, logID int64) error {
	r := &argReader{ev: ev}
	vault := r.address("agentVault")
	minter := r.address("minter")
	executor := r.address("executor")
	row := &collateralReserved{
		EvmLogID:                logID,
		CollateralReservationID: r.big("collateralReservationId"),
		ValueUBA:                r.big("valueUBA"),
		FeeUBA:                  r.big("feeUBA"),
		FirstUnderlyingBlock:    r.big("firstUnderlyingBlock"),
		LastUnderlyingBlock:     r.big("lastUnderlyingBlock"),
		LastUnderlyingTimestamp: r.big("lastUnderlyingTimestamp"),
		PaymentAddress:          r.string("paymentAddress"),
		PaymentReference:        r.bytes32("paymentReference"),
		ExecutorFeeNatWei:       r.big("executorFeeNatWei"),
	}
	if r.err != nil {
		return r.err
	}

	var err error
	if row.AgentVaultID, err = agentVaultID(ctx, tx, ev.Name, vault); err != nil {
		return err
	}

	ids, err := addressIDs(ctx, tx, minter, executor)
	if err != nil {
		return err
	}
	row.MinterID, row.ExecutorID = ids[0], ids[1]

	return insert(tx, "collateral_reserved", row)
}

func mintingExecutedHandler(ctx context.Context, tx *sql.Tx, ev *indexer.Event, logID int64) error {
	r := &argReader{ev: ev}
	reservation := r.big("collateralReservationId")
	row := &mintingExecuted{
		EvmLogID:        logID,
		MintedAmountUBA: r.big("mintedAmountUBA"),
		AgentFeeUBA:     r.big("agentFeeUBA"),
		PoolFeeUBA:      r.big("poolFeeUBA"),
	}
	if r.err != nil {
		return r.err
	}

	var err error
	if row.CollateralReservedID, err = collateralReservedID(ctx, tx, ev.Name, reservation); err != nil {
		return err
	}

	return insert(tx, "minting_executed", row)
}

func reservationClosedHandler(table string) indexer.HandlerFunc {
	return func(ctx context.Context, tx *sql.Tx, ev *indexer.Event, logID int64) error {
		r := &argReader{ev: ev}
		reservation := r.big("collateralReservationId")
		amount := r.big("reservedAmountUBA")
		if r.err != nil {
			return r.err
		}

		id, err := collateralReservedID(ctx, tx, ev.Name, reservation)
		if err != nil {
			return err
		}

		return insert(tx, table, &reservationClosed{
			EvmLogID:             logID,
			CollateralReservedID: id,
			ReservedAmountUBA:    amount,
		})
	}
}

func redemptionRequestedHandler(ctx context.Context, tx *sql.Tx, ev *indexer.Event, logID int64) error {
	r := &argReader{ev: ev}
	vault := r.address("agentVault")
	redeemer := r.address("redeemer")
	executor := r.address("executor")
	row := &redemptionRequested{
		EvmLogID:                logID,
		RequestID:               r.big("requestId"),
		PaymentAddress:          r.string("paymentAddress"),
		ValueUBA:                r.big("valueUBA"),
		FeeUBA:                  r.big("feeUBA"),
		FirstUnderlyingBlock:    r.big("firstUnderlyingBlock"),
		LastUnderlyingBlock:     r.big("lastUnderlyingBlock"),
		LastUnderlyingTimestamp: r.big("lastUnderlyingTimestamp"),
		PaymentReference:        r.bytes32("paymentReference"),
		ExecutorFeeNatWei:       r.big("executorFeeNatWei"),
	}
	if r.err != nil {
		return r.err
	}

	var err error
	if row.AgentVaultID, err = agentVaultID(ctx, tx, ev.Name, vault); err != nil {
		return err
	}

	ids, err := addressIDs(ctx, tx, redeemer, executor)
	if err != nil {
		return err
	}
	row.RedeemerID, row.ExecutorID = ids[0], ids[1]

	return insert(tx, "redemption_requested", row)
}

func redemptionPerformedHandler(ctx context.Context, tx *sql.Tx, ev *indexer.Event, logID int64) error {
	r := &argReader{ev: ev}
	request := r.big("requestId")
	row := &redemptionPerformed{
		EvmLogID:            logID,
		TransactionHash:     r.bytes32("transactionHash"),
		RedemptionAmountUBA: r.big("redemptionAmountUBA"),
		SpentUnderlyingUBA:  r.big("spentUnderlyingUBA"),
	}
	if r.err != nil {
		return r.err
	}

	var err error
	if row.RedemptionRequestedID, err = redemptionRequestedID(ctx, tx, ev.Name, request); err != nil {
		return err
	}

	return insert(tx, "redemption_performed", row)
}

func redemptionDefaultHandler(ctx context.Context, tx *sql.Tx, ev *indexer.Event, logID int64) error {
	r := &argReader{ev: ev}
	request := r.big("requestId")
	row := &redemptionDefault{
		EvmLogID:                   logID,
		RedemptionAmountUBA:        r.big("redemptionAmountUBA"),
		RedeemedVaultCollateralWei: r.big("redeemedVaultCollateralWei"),
		RedeemedPoolCollateralWei:  r.big("redeemedPoolCollateralWei"),
	}
	if r.err != nil {
		return r.err
	}

	var err error
	if row.RedemptionRequestedID, err = redemptionRequestedID(ctx, tx, ev.Name, request); err != nil {
		return err
	}

	return insert(tx, "redemption_default", row)
}

func poolEnteredHandler(ctx context.Context, tx *sql.Tx, ev *indexer.Event, logID int64) error {
	r := &argReader{ev: ev}
	holder := r.address("tokenHolder")
	row := &collateralPoolEntered{
		EvmLogID:           logID,
		AmountNatWei:       r.big("amountNatWei"),
		ReceivedTokensWei:  r.big("receivedTokensWei"),
		AddedFAssetFeesUBA: r.big("addedFAssetFeesUBA"),
		NewFAssetFeeDebt:   r.big("newFAssetFeeDebt"),
		TimelockExpiresAt:  r.big("timelockExpiresAt"),
	}
	if r.err != nil {
		return r.err
	}

	var err error
	if row.AgentVaultID, err = poolVaultID(ctx, tx, ev.Name, ev.Source); err != nil {
		return err
	}
	if row.TokenHolderID, err = AddressID(ctx, tx, holder); err != nil {
		return err
	}

	return insert(tx, "collateral_pool_entered", row)
}

func poolExitedHandler(ctx context.Context, tx *sql.Tx, ev *indexer.Event, logID int64) error {
	r := &argReader{ev: ev}
	holder := r.address("tokenHolder")
	row := &collateralPoolExited{
		EvmLogID:              logID,
		BurnedTokensWei:       r.big("burnedTokensWei"),
		ReceivedNatWei:        r.big("receivedNatWei"),
		ReceivedFAssetFeesUBA: r.big("receivedFAssetFeesUBA"),
		ClosedFAssetsUBA:      r.big("closedFAssetsUBA"),
		NewFAssetFeeDebt:      r.big("newFAssetFeeDebt"),
	}
	if r.err != nil {
		return r.err
	}

	var err error
	if row.AgentVaultID, err = poolVaultID(ctx, tx, ev.Name, ev.Source); err != nil {
		return err
	}
	if row.TokenHolderID, err = AddressID(ctx, tx, holder); err != nil {
		return err
	}

	return insert(tx, "collateral_pool_exited", row)
}

func transferHandler(ctx context.Context, tx *sql.Tx, ev *indexer.Event, logID int64) error {
	r := &argReader{ev: ev}
	from := r.address("from")
	to := r.address("to")
	value := r.big("value")
	if r.err != nil {
		return r.err
	}

	ids, err := addressIDs(ctx, tx, ev.Source, from, to)
	if err != nil {
		return err
	}

	return insert(tx, "erc20_transfer", &erc20Transfer{
		EvmLogID: logID,
		TokenID:  ids[0],
		FromID:   ids[1],
		ToID:     ids[2],
		Value:    value,
	})
}

func pricesPublishedHandler(_ context.Context, tx *sql.Tx, ev *indexer.Event, logID int64) error {
	round, err := arg[uint32](ev, "votingRoundId")
	if err != nil {
		return err
	}

	return insert(tx, "prices_published", &pricesPublished{EvmLogID: logID, VotingRoundID: round})
}

func paymentConfirmedHandler(_ context.Context, tx *sql.Tx, ev *indexer.Event, logID int64) error {
	r := &argReader{ev: ev}
	row := &coreVaultPaymentConfirmed{
		EvmLogID:         logID,
		TransactionID:    r.bytes32("transactionId"),
		PaymentReference: r.bytes32("paymentReference"),
		AmountUBA:        r.big("amount"),
	}
	if r.err != nil {
		return r.err
	}

	return insert(tx, "core_vault_payment_confirmed", row)
}

func insert(tx *sql.Tx, table string, row any) error {
	if err := meddler.Insert(tx, table, row); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

func addressIDs(ctx context.Context, tx *sql.Tx, addrs ...common.Address) ([]int64, error) {
	ids := make([]int64, len(addrs))
	for i, a := range addrs {
		id, err := AddressID(ctx, tx, a)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func agentVaultID(ctx context.Context, tx *sql.Tx, event string, vault common.Address) (int64, error) {
	return lookupID(ctx, tx, event, "agent vault", vault.Hex(), `
		SELECT av.id FROM agent_vault av
		JOIN evm_address a ON a.id = av.address_id
		WHERE a.hex = ?`, vault.Hex())
}

func poolVaultID(ctx context.Context, tx *sql.Tx, event string, pool common.Address) (int64, error) {
	return lookupID(ctx, tx, event, "collateral pool", pool.Hex(), `
		SELECT av.id FROM agent_vault av
		JOIN evm_address a ON a.id = av.collateral_pool_id
		WHERE a.hex = ?`, pool.Hex())
}

func collateralReservedID(ctx context.Context, tx *sql.Tx, event string, reservation *big.Int) (int64, error) {
	return lookupID(ctx, tx, event, "collateral reservation", reservation.String(),
		`SELECT id FROM collateral_reserved WHERE collateral_reservation_id = ?`, reservation.String())
}

func redemptionRequestedID(ctx context.Context, tx *sql.Tx, event string, request *big.Int) (int64, error) {
	return lookupID(ctx, tx, event, "redemption request", request.String(),
		`SELECT id FROM redemption_requested WHERE request_id = ?`, request.String())
}
