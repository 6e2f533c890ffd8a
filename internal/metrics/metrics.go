package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Watermark metrics
	Watermark = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fasset_indexer_watermark_block",
			Help: "First unhandled block per watermark track",
		},
		[]string{"track"},
	)

	// Indexing metrics
	BlocksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasset_indexer_blocks_processed_total",
			Help: "Total number of blocks processed",
		},
		[]string{"track"},
	)

	LogsScraped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasset_indexer_logs_scraped_total",
			Help: "Total number of raw logs scraped",
		},
		[]string{"track"},
	)

	EventsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasset_indexer_events_stored_total",
			Help: "Total number of events persisted by event name",
		},
		[]string{"event"},
	)

	ClassificationMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasset_indexer_classification_misses_total",
			Help: "Total number of logs skipped by the classifier by reason",
		},
		[]string{"reason"},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fasset_indexer_batch_duration_seconds",
			Help:    "Time taken to process one block sub-range",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"track"},
	)

	// Runner metrics
	RunnerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasset_indexer_runner_errors_total",
			Help: "Total number of failed runner iterations",
		},
		[]string{"runner"},
	)

	RunnerConsecutiveErrors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fasset_indexer_runner_consecutive_errors",
			Help: "Number of consecutive failed iterations of a runner",
		},
		[]string{"runner"},
	)

	// Underlying chain metrics
	UnderlyingTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasset_indexer_underlying_transactions_total",
			Help: "Total number of underlying chain transactions stored",
		},
		[]string{"chain"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fasset_indexer_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fasset_indexer_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fasset_indexer_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func WatermarkSet(track string, block uint64) {
	Watermark.WithLabelValues(track).Set(float64(block))
}

func BlocksProcessedInc(track string, count uint64) {
	BlocksProcessed.WithLabelValues(track).Add(float64(count))
}

func LogsScrapedInc(track string, count int) {
	LogsScraped.WithLabelValues(track).Add(float64(count))
}

func EventStoredInc(event string) {
	EventsStored.WithLabelValues(event).Inc()
}

func ClassificationMissInc(reason string) {
	ClassificationMisses.WithLabelValues(reason).Inc()
}

func BatchDurationLog(track string, duration time.Duration) {
	BatchDuration.WithLabelValues(track).Observe(duration.Seconds())
}

func RunnerErrorInc(runner string, consecutive int) {
	RunnerErrors.WithLabelValues(runner).Inc()
	RunnerConsecutiveErrors.WithLabelValues(runner).Set(float64(consecutive))
}

func RunnerRecovered(runner string) {
	RunnerConsecutiveErrors.WithLabelValues(runner).Set(0)
}

func UnderlyingTransactionsInc(chain string, count int) {
	UnderlyingTransactions.WithLabelValues(chain).Add(float64(count))
}

// UpdateSystemMetrics updates runtime system metrics.
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
