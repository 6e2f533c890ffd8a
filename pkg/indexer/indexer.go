package indexer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Runnable is one unit of indexing work driven by the runner loop.
// Run processes whatever is currently available and reports whether the runner
// should keep calling it or switch to another runnable.
type Runnable interface {
	Run(ctx context.Context, startBlock *uint64) (Result, error)
}

// Result is the outcome of a successful Run.
type Result struct {
	next Runnable
}

// Continue signals that the same runnable should be called again after the poll interval.
func Continue() Result {
	return Result{}
}

// Replace signals that next should be run instead from now on.
func Replace(next Runnable) Result {
	return Result{next: next}
}

// Replacement returns the runnable to switch to, if any.
func (r Result) Replacement() (Runnable, bool) {
	return r.next, r.next != nil
}

// Event is a decoded log enriched with its block and transaction metadata.
type Event struct {
	Topic       common.Hash
	Name        string
	Interface   string
	Args        map[string]any
	Source      common.Address
	LogIndex    uint
	Transaction TransactionInfo
	Block       BlockInfo
}

// TransactionInfo describes the transaction that emitted an event.
type TransactionInfo struct {
	Hash     common.Hash
	Index    uint
	Source   common.Address
	Target   *common.Address
	GasLimit uint64
	GasPrice *big.Int
	GasUsed  uint64
	Value    *big.Int
	Nonce    uint64
	Type     uint8
}

// BlockInfo describes the block an event was included in.
type BlockInfo struct {
	Index     uint64
	Timestamp uint64
}

// EventStorer persists classified events.
// ProcessLog must be idempotent on (block index, log index) and atomic per event.
type EventStorer interface {
	LogExists(ctx context.Context, blockIndex uint64, logIndex uint) (bool, error)
	ProcessLog(ctx context.Context, ev *Event) error
}

// ContractLookup resolves contract instances that are only known from previously indexed events.
type ContractLookup interface {
	IsCollateralPool(ctx context.Context, addr common.Address) (bool, error)
	IsCollateralPoolToken(ctx context.Context, addr common.Address) (bool, error)
}
