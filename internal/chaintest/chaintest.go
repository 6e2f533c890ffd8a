// Package chaintest provides a deterministic in-memory EVM chain and log
// builders for exercising the indexing pipeline in tests.
package chaintest

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goran-ethernal/FAssetIndexor/internal/contracts"
	pkgrpc "github.com/goran-ethernal/FAssetIndexor/pkg/rpc"
	"github.com/stretchr/testify/require"
)

var _ pkgrpc.EthClient = (*Chain)(nil)

// Sender is the sender of every transaction on the fake chain.
var Sender = common.HexToAddress("0x5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e")

// Chain is a fake chain client serving a fixed set of logs up to Head.
type Chain struct {
	mu    sync.Mutex
	head  uint64
	logs  []types.Log
	calls map[string]int
	// scraped GetLogs ranges, in call order
	ranges [][2]uint64

	// FailGetLogs makes the next n GetLogs calls fail.
	failGetLogs int
}

// NewChain creates a fake chain whose head is at head.
func NewChain(head uint64) *Chain {
	return &Chain{head: head, calls: make(map[string]int)}
}

// SetHead moves the chain head.
func (c *Chain) SetHead(head uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = head
}

// AddLogs appends logs to the chain, in any order.
func (c *Chain) AddLogs(logs ...types.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, logs...)
}

// FailGetLogs makes the next n GetLogs calls return an error.
func (c *Chain) FailGetLogs(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failGetLogs = n
}

// Calls returns how many times method was called.
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// Ranges returns the [from, to] ranges of successful GetLogs calls, in call order.
func (c *Chain) Ranges() [][2]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.ranges)
}

// TotalCalls returns the number of calls to any method.
func (c *Chain) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

func (c *Chain) record(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method]++
}

func (c *Chain) Close() {}

func (c *Chain) ChainID(ctx context.Context) (*big.Int, error) {
	c.record("ChainID")
	return big.NewInt(114), nil //nolint:mnd
}

func (c *Chain) BlockNumber(ctx context.Context) (uint64, error) {
	c.record("BlockNumber")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

// GetLogs returns logs in [FromBlock, ToBlock] matching the first topic set, newest block first
// so callers cannot rely on node ordering.
func (c *Chain) GetLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.record("GetLogs")
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failGetLogs > 0 {
		c.failGetLogs--
		return nil, fmt.Errorf("503 service unavailable")
	}

	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	if to > c.head {
		return nil, fmt.Errorf("block range extends beyond head %d", c.head)
	}
	c.ranges = append(c.ranges, [2]uint64{from, to})

	var out []types.Log
	for _, l := range c.logs {
		if l.BlockNumber < from || l.BlockNumber > to {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && !slices.Contains(q.Topics[0], l.Topics[0]) {
			continue
		}
		out = append(out, l)
	}

	slices.Reverse(out)
	return out, nil
}

func (c *Chain) GetBlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error) {
	c.record("GetBlockHeader")
	return &types.Header{Number: new(big.Int).SetUint64(blockNum), Time: BlockTime(blockNum)}, nil
}

func (c *Chain) GetTransaction(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	c.record("GetTransaction")
	to := common.HexToAddress("0x7070707070707070707070707070707070707070")
	return types.NewTx(&types.LegacyTx{
		Nonce:    7, //nolint:mnd
		To:       &to,
		Gas:      500_000, //nolint:mnd
		GasPrice: big.NewInt(25_000_000_000), //nolint:mnd
		Value:    big.NewInt(0),
	}), nil
}

func (c *Chain) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	c.record("GetTransactionReceipt")
	return &types.Receipt{TxHash: hash, GasUsed: 123_456}, nil //nolint:mnd
}

func (c *Chain) TransactionSender(
	ctx context.Context, tx *types.Transaction, block common.Hash, index uint,
) (common.Address, error) {
	c.record("TransactionSender")
	return Sender, nil
}

// BlockTime is the timestamp of block n on the fake chain.
func BlockTime(n uint64) uint64 {
	return 1_700_000_000 + n*2 //nolint:mnd
}

// TxHash is the hash of the single transaction of block n on the fake chain.
func TxHash(n uint64) common.Hash {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return crypto.Keccak256Hash([]byte("tx"), b[:])
}

// EventLog builds the log emitted by source for event of iface, at (block, index).
// args are the event inputs in ABI order.
func EventLog(
	t testing.TB, iface, event string, source common.Address, block uint64, index uint, args ...any,
) types.Log {
	t.Helper()

	parsed, ok := contracts.MustLoad().ABI(iface)
	require.True(t, ok, iface)

	ev, ok := parsed.Events[event]
	require.True(t, ok, event)
	require.Len(t, args, len(ev.Inputs))

	topics := []common.Hash{ev.ID}
	var data []any
	for i, in := range ev.Inputs {
		if in.Indexed {
			topics = append(topics, topicOf(t, in, args[i]))
			continue
		}
		data = append(data, args[i])
	}

	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)

	var b [8]byte
	binary.BigEndian.PutUint64(b[:], block)

	return types.Log{
		Address:     source,
		Topics:      topics,
		Data:        packed,
		BlockNumber: block,
		BlockHash:   crypto.Keccak256Hash([]byte("block"), b[:]),
		TxHash:      TxHash(block),
		TxIndex:     0,
		Index:       index,
	}
}

func topicOf(t testing.TB, in abi.Argument, v any) common.Hash {
	t.Helper()

	switch x := v.(type) {
	case common.Address:
		return common.BytesToHash(x.Bytes())
	case *big.Int:
		return common.BigToHash(x)
	case uint32:
		return common.BigToHash(new(big.Int).SetUint64(uint64(x)))
	case [32]byte:
		return common.Hash(x)
	default:
		require.FailNow(t, "unsupported indexed argument", "%s: %T", in.Name, v)
		return common.Hash{}
	}
}
