package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	rpcmocks "github.com/goran-ethernal/FAssetIndexor/internal/rpc/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type blockLog struct {
	block uint64
	index uint
}

func positions(logs []types.Log) []blockLog {
	out := make([]blockLog, 0, len(logs))
	for _, l := range logs {
		out = append(out, blockLog{l.BlockNumber, l.Index})
	}
	return out
}

func TestGetLogs_Ordering(t *testing.T) {
	ctx := context.Background()
	client := rpcmocks.NewEthClient(t)
	topic := common.HexToHash("0x01")

	unsorted := []types.Log{
		{BlockNumber: 5, Index: 2},
		{BlockNumber: 3, Index: 1},
		{BlockNumber: 5, Index: 0},
	}

	client.EXPECT().GetLogs(ctx, mock.MatchedBy(func(q ethereum.FilterQuery) bool {
		return q.FromBlock.Uint64() == 3 && q.ToBlock.Uint64() == 5 &&
			len(q.Topics) == 1 && q.Topics[0][0] == topic && len(q.Addresses) == 0
	})).Return(unsorted, nil).Once()

	s := NewLogScraper(client, []common.Hash{topic}, logger.NewNopLogger())

	logs, err := s.GetLogs(ctx, 3, 5)
	require.NoError(t, err)
	require.Equal(t, []blockLog{{3, 1}, {5, 0}, {5, 2}}, positions(logs))
}

func TestGetLogs_NoTopicFilter(t *testing.T) {
	ctx := context.Background()
	client := rpcmocks.NewEthClient(t)

	client.EXPECT().GetLogs(ctx, mock.MatchedBy(func(q ethereum.FilterQuery) bool {
		return q.Topics == nil
	})).Return(nil, nil).Once()

	logs, err := NewLogScraper(client, nil, logger.NewNopLogger()).GetLogs(ctx, 7, 7)
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestGetLogs_Errors(t *testing.T) {
	ctx := context.Background()
	client := rpcmocks.NewEthClient(t)
	s := NewLogScraper(client, nil, logger.NewNopLogger())

	_, err := s.GetLogs(ctx, 10, 9)
	require.ErrorIs(t, err, ErrInvalidRange)

	rpcErr := errors.New("503 service unavailable")
	client.EXPECT().GetLogs(ctx, mock.Anything).Return(nil, rpcErr).Once()

	_, err = s.GetLogs(ctx, 1, 2)
	require.ErrorIs(t, err, rpcErr)
}

func TestSortLogs_Stable(t *testing.T) {
	logs := []types.Log{
		{BlockNumber: 2, Index: 0, TxIndex: 9},
		{BlockNumber: 1, Index: 4},
		{BlockNumber: 2, Index: 0, TxIndex: 1},
	}

	SortLogs(logs)

	require.Equal(t, uint64(1), logs[0].BlockNumber)
	require.Equal(t, uint(9), logs[1].TxIndex)
	require.Equal(t, uint(1), logs[2].TxIndex)
}
