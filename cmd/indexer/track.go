package main

import (
	"context"
	"fmt"

	"github.com/goran-ethernal/FAssetIndexor/internal/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/config"
	"github.com/goran-ethernal/FAssetIndexor/internal/db"
	"github.com/goran-ethernal/FAssetIndexor/internal/indexer"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/internal/underlying"
	"github.com/goran-ethernal/FAssetIndexor/internal/watermark"
	"github.com/spf13/cobra"
)

// runTracker follows every configured underlying chain, one runner per chain,
// all writing to the same database.
func runTracker(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewComponentLoggerFromConfig(common.ComponentUnderlying, cfg.Logging)
	logger.SetDefaultLogger(log)

	if len(cfg.Underlying) == 0 {
		log.Warn("No underlying chains configured. Exiting.")
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	sqlDB, err := openDatabase(cfg.DB, log)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	wm := watermark.NewStore(sqlDB, logger.NewComponentLoggerFromConfig(common.ComponentWatermark, cfg.Logging))
	maintenance := db.NewMaintenanceCoordinator(
		cfg.DB.Path,
		sqlDB,
		cfg.DB.Maintenance,
		logger.NewComponentLoggerFromConfig(common.ComponentMaintenance, cfg.Logging),
	)
	runnerLog := logger.NewComponentLoggerFromConfig(common.ComponentRunner, cfg.Logging)

	jobs := make([]func(context.Context) error, 0, len(cfg.Underlying))
	for _, u := range cfg.Underlying {
		client, err := underlying.NewClient(ctx, u)
		if err != nil {
			return fmt.Errorf("failed to create %s client: %w", u.Chain, err)
		}
		defer client.Close()

		tracker := underlying.NewTracker(client, sqlDB, wm, underlying.TrackerOptions{
			StartBlock:    u.StartBlock,
			Confirmations: u.Confirmations,
			BatchSize:     u.BatchSize,
		}, log)

		runner := indexer.NewRunner(indexer.RunnerConfig{
			Name:           u.Chain,
			PollInterval:   u.PollInterval.Duration,
			ErrorSleep:     u.ErrorSleep.Duration,
			StuckThreshold: cfg.Indexer.StuckThreshold,
		}, runnerLog)

		jobs = append(jobs, func(ctx context.Context) error {
			return runner.Run(ctx, tracker, nil)
		})
		log.Infof("Tracking %s from %s", u.Chain, u.RPCURL)
	}

	if err := serve(ctx, cfg, maintenance, log, jobs...); err != nil {
		return err
	}

	log.Info("Underlying trackers stopped successfully")
	return nil
}
