// Package integrity guards a database against being indexed with the wrong chain configuration.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	icommon "github.com/goran-ethernal/FAssetIndexor/internal/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/internal/watermark"
)

var (
	// ErrChainMismatch is returned when the database was created for another chain or deployment.
	ErrChainMismatch = errors.New("database does not match the configured chain")
	// ErrMissingMinBlock is returned when a database with indexing progress has no minimum block floor.
	ErrMissingMinBlock = errors.New("minimum block number is not recorded")
)

// ChainIDReader is the part of the chain client the check needs.
type ChainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// Expected is the identity the configuration gives the database.
type Expected struct {
	Chain        string
	AssetManager common.Address
	MinBlock     uint64
}

// Check compares the identity recorded in the database with the configured one
// and the node's chain id. Missing identity rows and the minimum block floor are
// recorded together in one transaction, so an initialization interrupted at any
// point is completed by the next start. A mismatch is fatal, and so is a missing
// floor once the database has indexing progress.
func Check(ctx context.Context, wm *watermark.Store, client ChainIDReader, exp Expected, log *logger.Logger) error {
	log = log.WithComponent(icommon.ComponentIntegrity)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}

	checks := []struct {
		key   string
		value string
		equal func(a, b string) bool
	}{
		{watermark.KeyChain, exp.Chain, strings.EqualFold},
		{watermark.KeyChainID, chainID.String(), func(a, b string) bool { return a == b }},
		{watermark.KeyAssetManager, exp.AssetManager.Hex(), func(a, b string) bool {
			return common.HexToAddress(a) == common.HexToAddress(b)
		}},
	}

	missing := make(map[string]string)
	for _, c := range checks {
		got, err := wm.GetVar(ctx, c.key)
		if err != nil {
			return err
		}
		if got == nil {
			missing[c.key] = c.value
			continue
		}
		if !c.equal(*got, c.value) {
			return fmt.Errorf("%w: %s is %q, configured %q", ErrChainMismatch, c.key, *got, c.value)
		}
	}

	_, hasFloor, err := wm.GetBlock(ctx, watermark.KeyMinBlockNumber)
	if err != nil {
		return err
	}
	if !hasFloor {
		_, indexed, err := wm.GetBlock(ctx, watermark.KeyFirstUnhandledEventBlock)
		if err != nil {
			return err
		}
		if indexed {
			return ErrMissingMinBlock
		}
		missing[watermark.KeyMinBlockNumber] = icommon.FormatBlockNumber(exp.MinBlock)
	}

	if len(missing) > 0 {
		if err := wm.InitVars(ctx, missing); err != nil {
			return err
		}
		for key, value := range missing {
			log.Infow("recorded database identity", "key", key, "value", value)
		}
	}

	log.Infow("database integrity verified", "chain", exp.Chain, "chainId", chainID.String(),
		"assetManager", exp.AssetManager.Hex())

	return nil
}
