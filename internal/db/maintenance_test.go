package db

import (
	"context"
	"testing"
	"time"

	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/goran-ethernal/FAssetIndexor/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestNewMaintenanceCoordinator_NilConfig(t *testing.T) {
	sqlDB, dbPath := newTestDB(t, "WAL")

	m := NewMaintenanceCoordinator(dbPath, sqlDB, nil, logger.NewNopLogger())
	require.IsType(t, &NoOpMaintenance{}, m)
	require.NoError(t, m.Start(context.Background()))
	m.AcquireOperationLock()()
	require.NoError(t, m.Stop())
}

func TestRunMaintenance(t *testing.T) {
	for _, journal := range []string{"WAL", "TRUNCATE"} {
		t.Run(journal, func(t *testing.T) {
			sqlDB, dbPath := newTestDB(t, journal)

			_, err := sqlDB.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)`)
			require.NoError(t, err)
			for range 100 {
				_, err = sqlDB.Exec(`INSERT INTO t (v) VALUES ('x')`)
				require.NoError(t, err)
			}

			cfg := &config.MaintenanceConfig{Enabled: true}
			cfg.ApplyDefaults()
			m := NewMaintenanceCoordinator(dbPath, sqlDB, cfg, logger.NewNopLogger())

			require.NoError(t, m.RunMaintenance(context.Background()))

			metrics := m.GetMetrics()
			require.Equal(t, uint64(1), metrics.MaintenanceCount)
			require.NoError(t, metrics.LastMaintenanceError)
			require.False(t, metrics.LastMaintenanceTime.IsZero())
		})
	}
}

func TestRunMaintenance_CancelledContext(t *testing.T) {
	sqlDB, dbPath := newTestDB(t, "WAL")
	m := newMaintenanceCoordinator(dbPath, sqlDB, config.MaintenanceConfig{WALCheckpointMode: "PASSIVE"}, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, m.RunMaintenance(ctx), context.Canceled)
}

func TestMaintenance_WaitsForOperations(t *testing.T) {
	sqlDB, dbPath := newTestDB(t, "WAL")
	m := newMaintenanceCoordinator(dbPath, sqlDB, config.MaintenanceConfig{WALCheckpointMode: "PASSIVE"}, logger.NewNopLogger())

	unlock := m.AcquireOperationLock()

	done := make(chan struct{})
	go func() {
		_ = m.RunMaintenance(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("maintenance must wait for in-flight operations")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("maintenance did not run after operations completed")
	}
}

func TestMaintenance_Schedule(t *testing.T) {
	sqlDB, dbPath := newTestDB(t, "WAL")

	m := newMaintenanceCoordinator(dbPath, sqlDB, config.MaintenanceConfig{
		Enabled:           true,
		Schedule:          "@every 1s",
		WALCheckpointMode: "PASSIVE",
	}, logger.NewNopLogger())

	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, m.Stop()) })

	require.Eventually(t, func() bool {
		return m.GetMetrics().MaintenanceCount > 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestMaintenance_InvalidSchedule(t *testing.T) {
	sqlDB, dbPath := newTestDB(t, "WAL")

	m := newMaintenanceCoordinator(dbPath, sqlDB, config.MaintenanceConfig{
		Enabled:  true,
		Schedule: "not a schedule",
	}, logger.NewNopLogger())

	require.ErrorContains(t, m.Start(context.Background()), "invalid maintenance schedule")
}
