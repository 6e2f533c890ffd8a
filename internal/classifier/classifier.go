package classifier

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	icommon "github.com/goran-ethernal/FAssetIndexor/internal/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/contracts"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/internal/metrics"
	"github.com/goran-ethernal/FAssetIndexor/pkg/indexer"
	pkgrpc "github.com/goran-ethernal/FAssetIndexor/pkg/rpc"
)

// Miss reasons reported in metrics and debug logs.
const (
	missNoTopics   = "no_topics"
	missUnknown    = "unknown_topic"
	missUnresolved = "unresolved_source"
	missDecode     = "decode"
)

// Addresses are the fixed, configured contract addresses.
// Zero addresses never match.
type Addresses struct {
	AssetManager     common.Address
	FAsset           common.Address
	PriceReader      common.Address
	CoreVaultManager common.Address
}

// Classifier turns raw logs into enriched events.
// It is not safe for concurrent use: the block and transaction caches
// assume logs arrive one at a time in (block, log index) order.
type Classifier struct {
	client pkgrpc.EthClient
	lookup indexer.ContractLookup
	addrs  Addresses
	topics map[common.Hash][]contracts.EventInfo
	log    *logger.Logger

	block blockSlot
	tx    txSlot
}

type blockSlot struct {
	valid  bool
	number uint64
	info   indexer.BlockInfo
}

type txSlot struct {
	valid bool
	hash  common.Hash
	info  indexer.TransactionInfo
}

// New creates a classifier for the given event names (empty means every known event).
func New(
	client pkgrpc.EthClient,
	lookup indexer.ContractLookup,
	addrs Addresses,
	eventNames []string,
	registry *contracts.Registry,
	log *logger.Logger,
) (*Classifier, error) {
	topics, err := registry.TopicMap(eventNames)
	if err != nil {
		return nil, err
	}

	return &Classifier{
		client: client,
		lookup: lookup,
		addrs:  addrs,
		topics: topics,
		log:    log.WithComponent(icommon.ComponentClassifier),
	}, nil
}

// Topics returns the event topics this classifier recognizes.
func (c *Classifier) Topics() []common.Hash {
	return contracts.Topics(c.topics)
}

// Classify decodes and enriches a raw log.
// It returns a nil event without error when the log is not relevant: an unknown
// topic, a source that does not resolve to a known contract, or undecodable data.
func (c *Classifier) Classify(ctx context.Context, log types.Log) (*indexer.Event, error) {
	if len(log.Topics) == 0 {
		return c.miss(log, missNoTopics), nil
	}

	candidates, ok := c.topics[log.Topics[0]]
	if !ok {
		return c.miss(log, missUnknown), nil
	}

	info, found, err := c.resolve(ctx, log.Address, candidates)
	if err != nil {
		return nil, err
	}
	if !found {
		return c.miss(log, missUnresolved), nil
	}

	args, err := decode(info.Event, log)
	if err != nil {
		c.log.Debugw("log decode failed", "event", info.Event.Name, "block", log.BlockNumber,
			"logIndex", log.Index, "error", err)
		return c.miss(log, missDecode), nil
	}

	block, err := c.blockInfo(ctx, log.BlockNumber)
	if err != nil {
		return nil, err
	}

	tx, err := c.transactionInfo(ctx, log)
	if err != nil {
		return nil, err
	}

	return &indexer.Event{
		Topic:       log.Topics[0],
		Name:        info.Event.Name,
		Interface:   info.Interface,
		Args:        args,
		Source:      log.Address,
		LogIndex:    log.Index,
		Transaction: tx,
		Block:       block,
	}, nil
}

func (c *Classifier) miss(log types.Log, reason string) *indexer.Event {
	metrics.ClassificationMissInc(reason)
	c.log.Debugw("log skipped", "reason", reason, "block", log.BlockNumber, "logIndex", log.Index,
		"address", log.Address.Hex())
	return nil
}

// resolve picks the candidate interface actually implemented by the contract at addr.
func (c *Classifier) resolve(
	ctx context.Context, addr common.Address, candidates []contracts.EventInfo,
) (contracts.EventInfo, bool, error) {
	for _, cand := range candidates {
		ok, err := c.matches(ctx, addr, cand.Interface)
		if err != nil {
			return contracts.EventInfo{}, false, fmt.Errorf("failed to resolve source %s as %s: %w",
				addr.Hex(), cand.Interface, err)
		}
		if ok {
			return cand, true, nil
		}
	}
	return contracts.EventInfo{}, false, nil
}

func (c *Classifier) matches(ctx context.Context, addr common.Address, iface string) (bool, error) {
	switch iface {
	case contracts.IAssetManager:
		return isFixed(addr, c.addrs.AssetManager), nil
	case contracts.IPriceReader:
		return isFixed(addr, c.addrs.PriceReader), nil
	case contracts.ICoreVaultManager:
		return isFixed(addr, c.addrs.CoreVaultManager), nil
	case contracts.IERC20:
		if isFixed(addr, c.addrs.FAsset) {
			return true, nil
		}
		return c.lookup.IsCollateralPoolToken(ctx, addr)
	case contracts.ICollateralPool:
		return c.lookup.IsCollateralPool(ctx, addr)
	default:
		return false, nil
	}
}

func isFixed(addr, fixed common.Address) bool {
	return fixed != (common.Address{}) && addr == fixed
}

func decode(ev abi.Event, log types.Log) (map[string]any, error) {
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}

	if len(log.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("expected %d indexed topics, got %d", len(indexed), len(log.Topics)-1)
	}

	args := make(map[string]any, len(ev.Inputs))
	if err := ev.Inputs.NonIndexed().UnpackIntoMap(args, log.Data); err != nil {
		return nil, err
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
		return nil, err
	}

	return args, nil
}

func (c *Classifier) blockInfo(ctx context.Context, number uint64) (indexer.BlockInfo, error) {
	if c.block.valid && c.block.number == number {
		return c.block.info, nil
	}

	header, err := c.client.GetBlockHeader(ctx, number)
	if err != nil {
		return indexer.BlockInfo{}, fmt.Errorf("failed to get block %d: %w", number, err)
	}

	c.block = blockSlot{
		valid:  true,
		number: number,
		info:   indexer.BlockInfo{Index: number, Timestamp: header.Time},
	}

	return c.block.info, nil
}

func (c *Classifier) transactionInfo(ctx context.Context, log types.Log) (indexer.TransactionInfo, error) {
	if c.tx.valid && c.tx.hash == log.TxHash {
		return c.tx.info, nil
	}

	tx, err := c.client.GetTransaction(ctx, log.TxHash)
	if err != nil {
		return indexer.TransactionInfo{}, fmt.Errorf("failed to get transaction %s: %w", log.TxHash.Hex(), err)
	}

	receipt, err := c.client.GetTransactionReceipt(ctx, log.TxHash)
	if err != nil {
		return indexer.TransactionInfo{}, fmt.Errorf("failed to get receipt %s: %w", log.TxHash.Hex(), err)
	}

	sender, err := c.client.TransactionSender(ctx, tx, log.BlockHash, log.TxIndex)
	if err != nil {
		return indexer.TransactionInfo{}, fmt.Errorf("failed to get sender of %s: %w", log.TxHash.Hex(), err)
	}

	c.tx = txSlot{
		valid: true,
		hash:  log.TxHash,
		info: indexer.TransactionInfo{
			Hash:     log.TxHash,
			Index:    log.TxIndex,
			Source:   sender,
			Target:   tx.To(),
			GasLimit: tx.Gas(),
			GasPrice: tx.GasPrice(),
			GasUsed:  receipt.GasUsed,
			Value:    tx.Value(),
			Nonce:    tx.Nonce(),
			Type:     tx.Type(),
		},
	}

	return c.tx.info, nil
}
