// Package underlying tracks the non-EVM chains whose payments back FAsset mintings
// and redemptions, recording transactions that carry a payment reference.
package underlying

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	irpc "github.com/goran-ethernal/FAssetIndexor/internal/rpc"
	"github.com/goran-ethernal/FAssetIndexor/pkg/config"
)

// Block is a chain-agnostic view of an underlying block.
type Block struct {
	Height       uint64
	Hash         string
	Timestamp    uint64
	Transactions []Transaction
}

// Transaction is a payment found in an underlying block.
type Transaction struct {
	Hash             string
	Source           string
	Target           string
	Amount           *big.Int
	PaymentReference *common.Hash
}

// Client reads blocks of one underlying chain.
type Client interface {
	Chain() string
	BlockHeight(ctx context.Context) (uint64, error)
	Block(ctx context.Context, height uint64) (*Block, error)
	Close()
}

// NewClient dials the node of the configured underlying chain.
func NewClient(ctx context.Context, cfg config.UnderlyingConfig) (Client, error) {
	switch cfg.Chain {
	case config.UnderlyingXRP, config.UnderlyingDoge:
	default:
		return nil, fmt.Errorf("unsupported underlying chain %q", cfg.Chain)
	}

	n, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Chain == config.UnderlyingXRP {
		return &XRPClient{node: n}, nil
	}
	return &DogeClient{node: n}, nil
}

// node is a dialed JSON-RPC endpoint of an underlying chain. Calls share the
// retry policy and request metrics of the EVM client.
type node struct {
	chain string
	rpc   *rpc.Client
	retry *config.RetryConfig
}

func dial(ctx context.Context, cfg config.UnderlyingConfig) (*node, error) {
	var opts []rpc.ClientOption
	if cfg.Username != "" || cfg.Password != "" {
		token := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		opts = append(opts, rpc.WithHeader("Authorization", "Basic "+token))
	}

	c, err := rpc.DialOptions(ctx, cfg.RPCURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s node %s: %w", cfg.Chain, cfg.RPCURL, err)
	}

	return &node{chain: cfg.Chain, rpc: c, retry: cfg.Retry}, nil
}

func (n *node) call(ctx context.Context, result any, method string, args ...any) error {
	return irpc.Do(ctx, n.chain, n.retry, method, func() error {
		return n.rpc.CallContext(ctx, result, method, args...)
	})
}

func (n *node) Chain() string { return n.chain }

func (n *node) Close() { n.rpc.Close() }

// referenceFromHex parses a 32 byte payment reference, rejecting anything else.
func referenceFromHex(s string) *common.Hash {
	b := common.FromHex(s)
	if len(b) != common.HashLength {
		return nil
	}
	h := common.BytesToHash(b)
	return &h
}
