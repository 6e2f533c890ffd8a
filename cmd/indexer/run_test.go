package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/goran-ethernal/FAssetIndexor/internal/contracts"
	"github.com/goran-ethernal/FAssetIndexor/internal/indexer"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/internal/reindex"
	"github.com/goran-ethernal/FAssetIndexor/internal/watermark"
	pkgconfig "github.com/goran-ethernal/FAssetIndexor/pkg/config"
	"github.com/stretchr/testify/require"
)

func testDeps() indexer.Deps {
	return indexer.Deps{Registry: contracts.MustLoad(), Log: logger.NewNopLogger()}
}

func TestBuildRunnable(t *testing.T) {
	t.Parallel()

	cfg := pkgconfig.IndexerConfig{BatchSize: 30, BlockOffset: 10}

	r, err := buildRunnable(testDeps(), cfg)
	require.NoError(t, err)
	require.IsType(t, &indexer.Indexer{}, r)
	require.Equal(t, watermark.KeyFirstUnhandledEventBlock, r.Name())

	cfg.Reindex = &pkgconfig.ReindexConfig{
		Type: pkgconfig.ReindexBack, Name: "transfers", EventNameDiff: []string{"Transfer"}, StepSize: 100,
	}
	r, err = buildRunnable(testDeps(), cfg)
	require.NoError(t, err)
	require.IsType(t, &reindex.BackPopulation{}, r)

	cfg.Reindex.Type = pkgconfig.ReindexRace
	r, err = buildRunnable(testDeps(), cfg)
	require.NoError(t, err)
	require.IsType(t, &reindex.RacePopulation{}, r)

	cfg.Reindex.Type = "sideways"
	_, err = buildRunnable(testDeps(), cfg)
	require.ErrorContains(t, err, "unknown reindex type")
}

func TestBuildRunnable_UnknownEvent(t *testing.T) {
	t.Parallel()

	_, err := buildRunnable(testDeps(), pkgconfig.IndexerConfig{BatchSize: 30, Events: []string{"NoSuchEvent"}})
	require.ErrorContains(t, err, "unknown event name")
}

func TestSchemaCommand(t *testing.T) {
	var out bytes.Buffer
	schemaCmd.SetOut(&out)
	require.NoError(t, schemaCmd.RunE(schemaCmd, nil))

	var schema map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &schema))
	require.Contains(t, schema, "properties")
	require.Contains(t, schema["properties"], "chain")
}

func TestEventsCommand(t *testing.T) {
	var out bytes.Buffer
	eventsCmd.SetOut(&out)
	require.NoError(t, eventsCmd.RunE(eventsCmd, nil))

	require.Contains(t, out.String(), "CollateralReserved")
	require.Contains(t, out.String(), "entity")
	require.Contains(t, out.String(), "log only")
}
