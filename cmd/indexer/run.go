package main

import (
	"context"
	"fmt"

	"github.com/goran-ethernal/FAssetIndexor/internal/classifier"
	"github.com/goran-ethernal/FAssetIndexor/internal/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/config"
	"github.com/goran-ethernal/FAssetIndexor/internal/contracts"
	"github.com/goran-ethernal/FAssetIndexor/internal/db"
	"github.com/goran-ethernal/FAssetIndexor/internal/indexer"
	"github.com/goran-ethernal/FAssetIndexor/internal/integrity"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/internal/reindex"
	"github.com/goran-ethernal/FAssetIndexor/internal/rpc"
	"github.com/goran-ethernal/FAssetIndexor/internal/storer"
	"github.com/goran-ethernal/FAssetIndexor/internal/watermark"
	pkgconfig "github.com/goran-ethernal/FAssetIndexor/pkg/config"
	pkgindexer "github.com/goran-ethernal/FAssetIndexor/pkg/indexer"
	"github.com/spf13/cobra"
)

func runIndexer(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	log := logger.NewComponentLoggerFromConfig(common.ComponentIndexer, cfg.Logging)
	logger.SetDefaultLogger(log)

	log.Info("Connecting to EVM node...")
	client, err := rpc.NewClient(ctx, cfg.Chain)
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	defer client.Close()

	sqlDB, err := openDatabase(cfg.DB, log)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	wm := watermark.NewStore(sqlDB, logger.NewComponentLoggerFromConfig(common.ComponentWatermark, cfg.Logging))

	if err := integrity.Check(ctx, wm, client, integrity.Expected{
		Chain:        cfg.Chain.Name,
		AssetManager: cfg.Chain.Contracts.AssetManagerAddress(),
		MinBlock:     cfg.Indexer.MinBlock,
	}, logger.NewComponentLoggerFromConfig(common.ComponentIntegrity, cfg.Logging)); err != nil {
		return err
	}

	maintenance := db.NewMaintenanceCoordinator(
		cfg.DB.Path,
		sqlDB,
		cfg.DB.Maintenance,
		logger.NewComponentLoggerFromConfig(common.ComponentMaintenance, cfg.Logging),
	)

	registry, err := contracts.Load()
	if err != nil {
		return err
	}

	st := storer.New(sqlDB, maintenance, logger.NewComponentLoggerFromConfig(common.ComponentStorer, cfg.Logging))
	deps := indexer.Deps{
		Client:     client,
		Storer:     st,
		Lookup:     st,
		Watermarks: wm,
		Registry:   registry,
		Addresses: classifier.Addresses{
			AssetManager:     cfg.Chain.Contracts.AssetManagerAddress(),
			FAsset:           cfg.Chain.Contracts.FAssetAddress(),
			PriceReader:      cfg.Chain.Contracts.PriceReaderAddress(),
			CoreVaultManager: cfg.Chain.Contracts.CoreVaultManagerAddress(),
		},
		Log: log,
	}

	runnable, err := buildRunnable(deps, cfg.Indexer)
	if err != nil {
		return err
	}

	runner := indexer.NewRunner(indexer.RunnerConfig{
		Name:           cfg.Chain.Name,
		PollInterval:   cfg.Indexer.PollInterval.Duration,
		ErrorSleep:     cfg.Indexer.ErrorSleep.Duration,
		StuckThreshold: cfg.Indexer.StuckThreshold,
	}, logger.NewComponentLoggerFromConfig(common.ComponentRunner, cfg.Logging))

	var start *uint64
	if cmd.Flags().Changed("start-block") {
		start = &startBlock
	}

	log.Infow("Starting FAssetIndexor...", "chain", cfg.Chain.Name, "runnable", runnable.Name())

	err = serve(ctx, cfg, maintenance, log, func(ctx context.Context) error {
		return runner.Run(ctx, runnable, start)
	})
	if err != nil {
		return err
	}

	log.Info("FAssetIndexor stopped successfully")
	return nil
}

// buildRunnable returns the plain indexer over the configured events, or the
// back or race composite when a reindex is in progress.
func buildRunnable(deps indexer.Deps, cfg pkgconfig.IndexerConfig) (pkgindexer.Runnable, error) {
	base := indexer.Options{
		Track:       watermark.KeyFirstUnhandledEventBlock,
		Events:      cfg.Events,
		BatchSize:   cfg.BatchSize,
		BlockOffset: cfg.BlockOffset,
	}

	if cfg.Reindex == nil {
		return indexer.New(deps, base)
	}

	opts := reindex.Options{
		Name:                 cfg.Reindex.Name,
		EventNameDiff:        cfg.Reindex.EventNameDiff,
		StepSize:             cfg.Reindex.StepSize,
		NewBlocksBeforeIndex: cfg.Reindex.NewBlocksBeforeIndex,
	}

	switch cfg.Reindex.Type {
	case pkgconfig.ReindexBack:
		return reindex.NewBackPopulation(deps, base, opts)
	case pkgconfig.ReindexRace:
		return reindex.NewRacePopulation(deps, base, opts)
	default:
		return nil, fmt.Errorf("unknown reindex type %q", cfg.Reindex.Type)
	}
}
