package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goran-ethernal/FAssetIndexor/internal/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/config"
	"github.com/goran-ethernal/FAssetIndexor/internal/contracts"
	"github.com/goran-ethernal/FAssetIndexor/internal/db"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/internal/metrics"
	"github.com/goran-ethernal/FAssetIndexor/internal/watermark"
	pkgconfig "github.com/goran-ethernal/FAssetIndexor/pkg/config"
	"github.com/goran-ethernal/FAssetIndexor/pkg/indexer"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║         FAssetIndexor v%s              ║
║     FAsset Event Indexer and Tracker      ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath string
	startBlock uint64
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "FAssetIndexor - FAsset event indexer",
	Long: `FAssetIndexor scrapes the logs of the FAsset contracts, classifies them and
stores the decoded events in a relational database, advancing a persisted
watermark only after each block range is fully committed.`,
	Version:      version,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Index FAsset events from the EVM chain",
	RunE:  runIndexer,
}

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Track payments on the configured underlying chains",
	RunE:  runTracker,
}

var watermarksCmd = &cobra.Command{
	Use:   "watermarks",
	Short: "Print every watermark and identity variable of the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		log := logger.NewComponentLoggerFromConfig(common.ComponentWatermark, cfg.Logging)
		sqlDB, err := openDatabase(cfg.DB, log)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		vars, err := watermark.NewStore(sqlDB, log).All(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, v := range vars {
			value := "<null>"
			if v.Value != nil {
				value = *v.Value
			}
			fmt.Fprintf(out, "%-60s %s\n", v.Key, value)
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the known events, their interfaces and whether they are persisted",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := contracts.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, e := range registry.Events() {
			stored := "log only"
			if indexer.GetHandler(e.Event.Name) != nil {
				stored = "entity"
			}
			fmt.Fprintf(out, "%-20s %-32s %s %s\n", e.Interface, e.Event.Name, e.Event.ID.Hex(), stored)
		}
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		r := &jsonschema.Reflector{ExpandedStruct: true}
		schema := r.Reflect(&pkgconfig.Config{})

		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	runCmd.Flags().Uint64Var(&startBlock, "start-block", 0,
		"never index below this block, even when the watermark is lower")

	rootCmd.AddCommand(runCmd, trackCmd, watermarksCmd, eventsCmd, schemaCmd)
}

// openDatabase opens the configured database and brings its schema up to date.
func openDatabase(cfg pkgconfig.DatabaseConfig, log *logger.Logger) (*sql.DB, error) {
	sqlDB, err := db.NewSQLiteDBFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	if err := db.RunMigrations(log, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return sqlDB, nil
}

// serve runs jobs next to the metrics server and the maintenance scheduler until
// ctx is cancelled or a job fails. Cancellation is a clean shutdown.
func serve(
	ctx context.Context,
	cfg *pkgconfig.Config,
	maintenance db.Maintenance,
	log *logger.Logger,
	jobs ...func(ctx context.Context) error,
) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, job := range jobs {
		g.Go(func() error { return job(gctx) })
	}

	g.Go(func() error {
		return metrics.NewServer(cfg.Metrics, log).Run(gctx)
	})

	g.Go(func() error {
		if err := maintenance.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return maintenance.Stop()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
