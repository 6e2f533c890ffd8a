package rpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Every RPC metric is labelled with the chain it was sent to, so the EVM client
// and the underlying chain clients share one set of series.
var (
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasset_indexer_rpc_requests_total",
			Help: "Total number of RPC requests by chain and method",
		},
		[]string{"chain", "method"},
	)

	RPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasset_indexer_rpc_errors_total",
			Help: "Total number of RPC errors by chain, method and class (transient or permanent)",
		},
		[]string{"chain", "method", "error_type"},
	)

	RPCRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasset_indexer_rpc_retries_total",
			Help: "Total number of RPC retries by chain and method",
		},
		[]string{"chain", "method"},
	)

	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fasset_indexer_rpc_request_duration_seconds",
			Help:    "Duration of single RPC attempts",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"chain", "method"},
	)
)

func rpcAttempt(chain, method string, took time.Duration, err error) {
	RPCRequests.WithLabelValues(chain, method).Inc()
	RPCDuration.WithLabelValues(chain, method).Observe(took.Seconds())
	if err != nil {
		RPCErrors.WithLabelValues(chain, method, errorType(err)).Inc()
	}
}

func rpcRetry(chain, method string) {
	RPCRetries.WithLabelValues(chain, method).Inc()
}
