package scraper

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	icommon "github.com/goran-ethernal/FAssetIndexor/internal/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	pkgrpc "github.com/goran-ethernal/FAssetIndexor/pkg/rpc"
)

// ErrInvalidRange is returned when the requested range is inverted.
var ErrInvalidRange = errors.New("invalid block range")

// LogScraper fetches the raw logs of a block range in canonical order.
type LogScraper struct {
	client pkgrpc.EthClient
	topics []common.Hash
	log    *logger.Logger
}

// NewLogScraper creates a scraper. When topics is non-empty only logs whose
// first topic is one of them are requested from the node.
func NewLogScraper(client pkgrpc.EthClient, topics []common.Hash, log *logger.Logger) *LogScraper {
	return &LogScraper{
		client: client,
		topics: topics,
		log:    log.WithComponent(icommon.ComponentScraper),
	}
}

// GetLogs returns the logs of [from, to] sorted by block number, then log index.
// RPC errors are returned as is; retrying is up to the caller.
func (s *LogScraper) GetLogs(ctx context.Context, from, to uint64) ([]types.Log, error) {
	if from > to {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidRange, from, to)
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
	}
	if len(s.topics) > 0 {
		query.Topics = [][]common.Hash{s.topics}
	}

	logs, err := s.client.GetLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs for [%d, %d]: %w", from, to, err)
	}

	SortLogs(logs)
	s.log.Debugf("scraped %d logs in [%d, %d]", len(logs), from, to)

	return logs, nil
}

// SortLogs sorts logs in place by (block number, log index) ascending.
func SortLogs(logs []types.Log) {
	slices.SortStableFunc(logs, func(a, b types.Log) int {
		return cmp.Or(
			cmp.Compare(a.BlockNumber, b.BlockNumber),
			cmp.Compare(a.Index, b.Index),
		)
	})
}
