package db

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	maintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasset_indexer_maintenance_runs_total",
			Help: "Total number of maintenance runs by outcome",
		},
		[]string{"status"},
	)

	maintenanceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fasset_indexer_maintenance_duration_seconds",
			Help:    "Duration of maintenance runs, including the wait for in-flight writes",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
		},
	)

	maintenanceLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fasset_indexer_maintenance_last_run_timestamp",
			Help: "Unix timestamp of the last maintenance run",
		},
	)

	walCheckpoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasset_indexer_wal_checkpoint_total",
			Help: "Total number of WAL checkpoints by mode",
		},
		[]string{"mode"},
	)

	walBusyPages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fasset_indexer_wal_checkpoint_busy_pages",
			Help: "Pages the last WAL checkpoint could not copy back",
		},
	)

	dbFileSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fasset_indexer_db_size_bytes",
			Help: "Size of the database files in bytes (main, wal, shm)",
		},
		[]string{"file"},
	)
)

func recordMaintenance(took time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	maintenanceRuns.WithLabelValues(status).Inc()
	maintenanceDuration.Observe(took.Seconds())
	maintenanceLastRun.SetToCurrentTime()
}

func recordCheckpoint(mode string, busy int) {
	walCheckpoints.WithLabelValues(mode).Inc()
	walBusyPages.Set(float64(busy))
}

func recordFileSizes(sizes map[string]int64) {
	for file, size := range sizes {
		dbFileSize.WithLabelValues(file).Set(float64(size))
	}
}
