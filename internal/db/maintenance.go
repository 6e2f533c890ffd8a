package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/goran-ethernal/FAssetIndexor/internal/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/pkg/config"
	"github.com/robfig/cron/v3"
)

// maintenanceRunTimeout bounds a single scheduled run.
const maintenanceRunTimeout = 5 * time.Minute

type Maintenance interface {
	// Start schedules background maintenance if enabled.
	Start(ctx context.Context) error
	// Stop stops the scheduler and waits for a running job to finish.
	Stop() error
	// AcquireOperationLock acquires a read lock for database operations.
	// Returns an unlock function that must be called when the operation completes.
	AcquireOperationLock() func()
	// RunMaintenance performs database maintenance operations (for manual invocation).
	RunMaintenance(ctx context.Context) error
	// GetMetrics returns current maintenance metrics.
	GetMetrics() MaintenanceMetrics
}

// NoOpMaintenance is a no-operation implementation of the Maintenance interface.
type NoOpMaintenance struct{}

func (m *NoOpMaintenance) Start(ctx context.Context) error          { return nil }
func (m *NoOpMaintenance) Stop() error                              { return nil }
func (m *NoOpMaintenance) RunMaintenance(ctx context.Context) error { return nil }
func (m *NoOpMaintenance) AcquireOperationLock() func()             { return func() {} }
func (m *NoOpMaintenance) GetMetrics() MaintenanceMetrics           { return MaintenanceMetrics{} }

// MaintenanceCoordinator runs WAL checkpoints and query planner optimization on a cron schedule.
// Storage writes hold the read side of opLock; maintenance holds the write side.
type MaintenanceCoordinator struct {
	db     *sql.DB
	config config.MaintenanceConfig
	dbPath string
	log    *logger.Logger

	opLock sync.RWMutex

	cron *cron.Cron

	metricsLock         sync.Mutex
	lastMaintenanceTime time.Time
	maintenanceCount    uint64
	lastMaintenanceErr  error
}

// NewMaintenanceCoordinator creates a new maintenance coordinator, or a no-op one when cfg is nil.
func NewMaintenanceCoordinator(
	dbPath string,
	db *sql.DB,
	cfg *config.MaintenanceConfig,
	log *logger.Logger,
) Maintenance {
	if cfg == nil {
		return &NoOpMaintenance{}
	}

	return newMaintenanceCoordinator(dbPath, db, *cfg, log)
}

func newMaintenanceCoordinator(
	dbPath string,
	db *sql.DB,
	cfg config.MaintenanceConfig,
	log *logger.Logger,
) *MaintenanceCoordinator {
	return &MaintenanceCoordinator{
		db:     db,
		config: cfg,
		dbPath: dbPath,
		log:    log.WithComponent(common.ComponentMaintenance),
	}
}

// Start schedules background maintenance if enabled.
func (m *MaintenanceCoordinator) Start(ctx context.Context) error {
	if !m.config.Enabled {
		m.log.Info("Background maintenance is disabled")
		return nil
	}

	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	cronLog := cronLogger{log: m.log}
	m.cron = cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	_, err := m.cron.AddFunc(m.config.Schedule, func() {
		rctx, cancel := context.WithTimeout(ctx, maintenanceRunTimeout)
		defer cancel()

		if err := m.RunMaintenance(rctx); err != nil {
			m.log.Warnf("Scheduled maintenance failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", m.config.Schedule, err)
	}

	m.cron.Start()
	m.log.Infof("Background maintenance started - schedule: %s, checkpoint mode: %s",
		m.config.Schedule, m.config.WALCheckpointMode)

	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (m *MaintenanceCoordinator) Stop() error {
	if m.cron == nil {
		return nil
	}

	m.log.Info("Stopping background maintenance...")
	<-m.cron.Stop().Done()
	m.log.Info("Background maintenance stopped")

	return nil
}

// RunMaintenance performs database maintenance operations.
// This acquires an exclusive lock, blocking storage writes until complete.
func (m *MaintenanceCoordinator) RunMaintenance(ctx context.Context) error {
	m.log.Debug("Starting database maintenance")
	start := time.Now().UTC()

	m.opLock.Lock()
	defer m.opLock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	var maintenanceErr error

	if err := m.walCheckpoint(ctx); err != nil {
		maintenanceErr = fmt.Errorf("WAL checkpoint failed: %w", err)
	}

	if _, err := m.db.ExecContext(ctx, "PRAGMA optimize"); err != nil && maintenanceErr == nil {
		maintenanceErr = fmt.Errorf("optimize failed: %w", err)
	}

	duration := time.Since(start)

	m.metricsLock.Lock()
	m.lastMaintenanceTime = time.Now().UTC()
	m.maintenanceCount++
	m.lastMaintenanceErr = maintenanceErr
	m.metricsLock.Unlock()

	recordMaintenance(duration, maintenanceErr)
	recordFileSizes(dbFileSizes(m.dbPath))

	if maintenanceErr != nil {
		return maintenanceErr
	}

	m.log.Infof("Maintenance completed in %v", duration)

	return nil
}

func (m *MaintenanceCoordinator) walCheckpoint(ctx context.Context) error {
	var mode string
	if err := m.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to check journal mode: %w", err)
	}

	if !strings.EqualFold(mode, "wal") {
		m.log.Debug("Database not in WAL mode, skipping WAL checkpoint")
		return nil
	}

	var busy, logFrames, checkpointed int
	err := m.db.QueryRowContext(ctx, fmt.Sprintf("PRAGMA wal_checkpoint(%s)", m.config.WALCheckpointMode)).
		Scan(&busy, &logFrames, &checkpointed)
	if err != nil {
		return err
	}

	recordCheckpoint(strings.ToLower(m.config.WALCheckpointMode), busy)
	m.log.Debugf("WAL checkpoint complete - mode: %s, busy: %d, log_frames: %d, checkpointed: %d",
		m.config.WALCheckpointMode, busy, logFrames, checkpointed)

	if busy > 0 {
		m.log.Warnf("WAL checkpoint encountered %d busy pages", busy)
	}

	return nil
}

// AcquireOperationLock acquires a read lock for database operations.
func (m *MaintenanceCoordinator) AcquireOperationLock() func() {
	m.opLock.RLock()
	return m.opLock.RUnlock
}

// GetMetrics returns current maintenance metrics.
func (m *MaintenanceCoordinator) GetMetrics() MaintenanceMetrics {
	m.metricsLock.Lock()
	defer m.metricsLock.Unlock()

	return MaintenanceMetrics{
		LastMaintenanceTime:  m.lastMaintenanceTime,
		MaintenanceCount:     m.maintenanceCount,
		LastMaintenanceError: m.lastMaintenanceErr,
	}
}

// MaintenanceMetrics provides visibility into maintenance operations.
type MaintenanceMetrics struct {
	LastMaintenanceTime  time.Time
	MaintenanceCount     uint64
	LastMaintenanceError error
}

// dbFileSizes returns the sizes of the database file and its WAL and shared-memory
// files, keyed main, wal and shm. Missing files are left out.
func dbFileSizes(dbPath string) map[string]int64 {
	sizes := make(map[string]int64, 3) //nolint:mnd
	for file, suffix := range map[string]string{"main": "", "wal": "-wal", "shm": "-shm"} {
		if fi, err := os.Stat(dbPath + suffix); err == nil {
			sizes[file] = fi.Size()
		}
	}
	return sizes
}

// cronLogger routes cron's internal messages into the component logger.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
