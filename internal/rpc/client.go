package rpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/FAssetIndexor/pkg/config"
	pkgrpc "github.com/goran-ethernal/FAssetIndexor/pkg/rpc"
)

// Compile-time check to ensure Client implements pkgrpc.EthClient interface.
var _ pkgrpc.EthClient = (*Client)(nil)

// Client wraps the Ethereum RPC client with retries and request metrics.
// It implements the pkgrpc.EthClient interface.
type Client struct {
	eth   *ethclient.Client
	rpc   *rpc.Client
	chain string
	retry *config.RetryConfig
}

// NewClient creates a new RPC client connected to the configured endpoint.
func NewClient(ctx context.Context, cfg config.ChainConfig) (*Client, error) {
	var opts []rpc.ClientOption
	if cfg.RPCAPIKey != "" {
		opts = append(opts, rpc.WithHeader("x-apikey", cfg.RPCAPIKey))
	}

	rpcClient, err := rpc.DialOptions(ctx, cfg.RPCURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
	}

	return &Client{
		eth:   ethclient.NewClient(rpcClient),
		rpc:   rpcClient,
		chain: cfg.Name,
		retry: cfg.Retry,
	}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ChainID returns the chain id reported by the node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return call(ctx, c, "eth_chainId", func() (*big.Int, error) {
		return c.eth.ChainID(ctx)
	})
}

// BlockNumber returns the current head block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return call(ctx, c, "eth_blockNumber", func() (uint64, error) {
		return c.eth.BlockNumber(ctx)
	})
}

// GetLogs retrieves logs matching the given filter query.
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return call(ctx, c, "eth_getLogs", func() ([]types.Log, error) {
		return c.eth.FilterLogs(ctx, query)
	})
}

// GetBlockHeader retrieves the header for a specific block number.
func (c *Client) GetBlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error) {
	return call(ctx, c, "eth_getBlockByNumber", func() (*types.Header, error) {
		return c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNum))
	})
}

// GetTransaction retrieves a transaction by hash.
func (c *Client) GetTransaction(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	return call(ctx, c, "eth_getTransactionByHash", func() (*types.Transaction, error) {
		tx, _, err := c.eth.TransactionByHash(ctx, hash)
		return tx, err
	})
}

// GetTransactionReceipt retrieves the receipt of a mined transaction.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return call(ctx, c, "eth_getTransactionReceipt", func() (*types.Receipt, error) {
		return c.eth.TransactionReceipt(ctx, hash)
	})
}

// TransactionSender recovers the sender of a transaction mined in the given block.
func (c *Client) TransactionSender(
	ctx context.Context, tx *types.Transaction, block common.Hash, index uint,
) (common.Address, error) {
	return call(ctx, c, "eth_getTransactionByBlockHashAndIndex", func() (common.Address, error) {
		return c.eth.TransactionSender(ctx, tx, block, index)
	})
}

// call runs fn under the retry policy and records request metrics for method.
func call[T any](ctx context.Context, c *Client, method string, fn func() (T, error)) (T, error) {
	var result T

	err := Do(ctx, c.chain, c.retry, method, func() error {
		res, err := fn()
		if err != nil {
			return err
		}
		result = res
		return nil
	})

	return result, err
}

// Do runs fn under the retry policy, recording every attempt as a request of
// method on chain. A nil retry config makes exactly one attempt.
func Do(ctx context.Context, chain string, retry *config.RetryConfig, method string, fn func() error) error {
	return retryWithBackoff(ctx, retry, chain, method, func() error {
		start := time.Now()
		err := fn()
		rpcAttempt(chain, method, time.Since(start), err)
		return err
	})
}

func errorType(err error) string {
	if retryableError(err) {
		return "transient"
	}
	return "permanent"
}
