package storer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type evmLog struct {
	ID            int64       `meddler:"id,pk"`
	BlockIndex    uint64      `meddler:"block_index"`
	LogIndex      uint        `meddler:"log_index"`
	TransactionID int64       `meddler:"transaction_id"`
	AddressID     int64       `meddler:"address_id"`
	Name          string      `meddler:"name"`
	Topic         common.Hash `meddler:"topic,hash"`
}

type agentVault struct {
	ID                     int64    `meddler:"id,pk"`
	EvmLogID               int64    `meddler:"evm_log_id"`
	AddressID              int64    `meddler:"address_id"`
	OwnerID                int64    `meddler:"owner_id"`
	CollateralPoolID       int64    `meddler:"collateral_pool_id"`
	CollateralPoolTokenID  int64    `meddler:"collateral_pool_token_id"`
	VaultCollateralTokenID int64    `meddler:"vault_collateral_token_id"`
	UnderlyingAddress      string   `meddler:"underlying_address"`
	FeeBIPS                *big.Int `meddler:"fee_bips,bigint"`
	Destroyed              bool     `meddler:"destroyed"`
}

type collateralReserved struct {
	ID                      int64       `meddler:"id,pk"`
	EvmLogID                int64       `meddler:"evm_log_id"`
	AgentVaultID            int64       `meddler:"agent_vault_id"`
	MinterID                int64       `meddler:"minter_id"`
	ExecutorID              int64       `meddler:"executor_id"`
	CollateralReservationID *big.Int    `meddler:"collateral_reservation_id,bigint"`
	ValueUBA                *big.Int    `meddler:"value_uba,bigint"`
	FeeUBA                  *big.Int    `meddler:"fee_uba,bigint"`
	FirstUnderlyingBlock    *big.Int    `meddler:"first_underlying_block,bigint"`
	LastUnderlyingBlock     *big.Int    `meddler:"last_underlying_block,bigint"`
	LastUnderlyingTimestamp *big.Int    `meddler:"last_underlying_timestamp,bigint"`
	PaymentAddress          string      `meddler:"payment_address"`
	PaymentReference        common.Hash `meddler:"payment_reference,hash"`
	ExecutorFeeNatWei       *big.Int    `meddler:"executor_fee_nat_wei,bigint"`
}

type mintingExecuted struct {
	ID                   int64    `meddler:"id,pk"`
	EvmLogID             int64    `meddler:"evm_log_id"`
	CollateralReservedID int64    `meddler:"collateral_reserved_id"`
	MintedAmountUBA      *big.Int `meddler:"minted_amount_uba,bigint"`
	AgentFeeUBA          *big.Int `meddler:"agent_fee_uba,bigint"`
	PoolFeeUBA           *big.Int `meddler:"pool_fee_uba,bigint"`
}

// reservationClosed is the row shape of both minting_payment_default and collateral_reservation_deleted.
type reservationClosed struct {
	ID                   int64    `meddler:"id,pk"`
	EvmLogID             int64    `meddler:"evm_log_id"`
	CollateralReservedID int64    `meddler:"collateral_reserved_id"`
	ReservedAmountUBA    *big.Int `meddler:"reserved_amount_uba,bigint"`
}

type redemptionRequested struct {
	ID                      int64       `meddler:"id,pk"`
	EvmLogID                int64       `meddler:"evm_log_id"`
	AgentVaultID            int64       `meddler:"agent_vault_id"`
	RedeemerID              int64       `meddler:"redeemer_id"`
	ExecutorID              int64       `meddler:"executor_id"`
	RequestID               *big.Int    `meddler:"request_id,bigint"`
	PaymentAddress          string      `meddler:"payment_address"`
	ValueUBA                *big.Int    `meddler:"value_uba,bigint"`
	FeeUBA                  *big.Int    `meddler:"fee_uba,bigint"`
	FirstUnderlyingBlock    *big.Int    `meddler:"first_underlying_block,bigint"`
	LastUnderlyingBlock     *big.Int    `meddler:"last_underlying_block,bigint"`
	LastUnderlyingTimestamp *big.Int    `meddler:"last_underlying_timestamp,bigint"`
	PaymentReference        common.Hash `meddler:"payment_reference,hash"`
	ExecutorFeeNatWei       *big.Int    `meddler:"executor_fee_nat_wei,bigint"`
}

type redemptionPerformed struct {
	ID                    int64       `meddler:"id,pk"`
	EvmLogID              int64       `meddler:"evm_log_id"`
	RedemptionRequestedID int64       `meddler:"redemption_requested_id"`
	TransactionHash       common.Hash `meddler:"transaction_hash,hash"`
	RedemptionAmountUBA   *big.Int    `meddler:"redemption_amount_uba,bigint"`
	SpentUnderlyingUBA    *big.Int    `meddler:"spent_underlying_uba,bigint"`
}

type redemptionDefault struct {
	ID                         int64    `meddler:"id,pk"`
	EvmLogID                   int64    `meddler:"evm_log_id"`
	RedemptionRequestedID      int64    `meddler:"redemption_requested_id"`
	RedemptionAmountUBA        *big.Int `meddler:"redemption_amount_uba,bigint"`
	RedeemedVaultCollateralWei *big.Int `meddler:"redeemed_vault_collateral_wei,bigint"`
	RedeemedPoolCollateralWei  *big.Int `meddler:"redeemed_pool_collateral_wei,bigint"`
}

type collateralPoolEntered struct {
	ID                 int64    `meddler:"id,pk"`
	EvmLogID           int64    `meddler:"evm_log_id"`
	AgentVaultID       int64    `meddler:"agent_vault_id"`
	TokenHolderID      int64    `meddler:"token_holder_id"`
	AmountNatWei       *big.Int `meddler:"amount_nat_wei,bigint"`
	ReceivedTokensWei  *big.Int `meddler:"received_tokens_wei,bigint"`
	AddedFAssetFeesUBA *big.Int `meddler:"added_fasset_fees_uba,bigint"`
	NewFAssetFeeDebt   *big.Int `meddler:"new_fasset_fee_debt,bigint"`
	TimelockExpiresAt  *big.Int `meddler:"timelock_expires_at,bigint"`
}

type collateralPoolExited struct {
	ID                    int64    `meddler:"id,pk"`
	EvmLogID              int64    `meddler:"evm_log_id"`
	AgentVaultID          int64    `meddler:"agent_vault_id"`
	TokenHolderID         int64    `meddler:"token_holder_id"`
	BurnedTokensWei       *big.Int `meddler:"burned_tokens_wei,bigint"`
	ReceivedNatWei        *big.Int `meddler:"received_nat_wei,bigint"`
	ReceivedFAssetFeesUBA *big.Int `meddler:"received_fasset_fees_uba,bigint"`
	ClosedFAssetsUBA      *big.Int `meddler:"closed_fassets_uba,bigint"`
	NewFAssetFeeDebt      *big.Int `meddler:"new_fasset_fee_debt,bigint"`
}

type erc20Transfer struct {
	ID       int64    `meddler:"id,pk"`
	EvmLogID int64    `meddler:"evm_log_id"`
	TokenID  int64    `meddler:"token_id"`
	FromID   int64    `meddler:"from_id"`
	ToID     int64    `meddler:"to_id"`
	Value    *big.Int `meddler:"value,bigint"`
}

type pricesPublished struct {
	ID            int64  `meddler:"id,pk"`
	EvmLogID      int64  `meddler:"evm_log_id"`
	VotingRoundID uint32 `meddler:"voting_round_id"`
}

type coreVaultPaymentConfirmed struct {
	ID               int64       `meddler:"id,pk"`
	EvmLogID         int64       `meddler:"evm_log_id"`
	TransactionID    common.Hash `meddler:"transaction_id,hash"`
	PaymentReference common.Hash `meddler:"payment_reference,hash"`
	AmountUBA        *big.Int    `meddler:"amount_uba,bigint"`
}
