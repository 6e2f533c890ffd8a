package indexer

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

// resetRegistry clears the handler registry for testing
func resetRegistry() {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[string]Handler)
}

func TestRegister(t *testing.T) {
	// Cannot use t.Parallel() because it modifies the global registry
	resetRegistry()
	t.Cleanup(resetRegistry)

	called := ""
	Register("CollateralReserved", HandlerFunc(func(_ context.Context, _ *sql.Tx, ev *Event, _ int64) error {
		called = ev.Name
		return nil
	}))

	h := GetHandler("collateralreserved")
	require.NotNil(t, h)
	require.NoError(t, h.Persist(context.Background(), nil, &Event{Name: "CollateralReserved"}, 1))
	require.Equal(t, "CollateralReserved", called)

	require.Nil(t, GetHandler("MintingExecuted"))
}

func TestRegister_Overwrite(t *testing.T) {
	resetRegistry()
	t.Cleanup(resetRegistry)

	first := HandlerFunc(func(context.Context, *sql.Tx, *Event, int64) error { return nil })
	second := HandlerFunc(func(context.Context, *sql.Tx, *Event, int64) error { return sql.ErrNoRows })

	Register("Transfer", first)
	Register("TRANSFER", second)

	require.ErrorIs(t, GetHandler("transfer").Persist(context.Background(), nil, &Event{}, 0), sql.ErrNoRows)
	require.Equal(t, []string{"transfer"}, ListRegistered())
}

func TestResult(t *testing.T) {
	next, ok := Continue().Replacement()
	require.False(t, ok)
	require.Nil(t, next)

	r := Replace(runnableFunc(func(context.Context, *uint64) (Result, error) { return Continue(), nil }))
	next, ok = r.Replacement()
	require.True(t, ok)
	require.NotNil(t, next)
}

type runnableFunc func(ctx context.Context, startBlock *uint64) (Result, error)

func (f runnableFunc) Run(ctx context.Context, startBlock *uint64) (Result, error) { return f(ctx, startBlock) }
