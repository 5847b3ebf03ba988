// ABOUTME: Prometheus metrics for upstream calls
// ABOUTME: Counts requests by operation and outcome and records their latency

package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_upstream_requests_total",
			Help: "Total requests sent to the upstream conversation service",
		},
		[]string{"operation", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "convo_upstream_request_duration_seconds",
			Help:    "Upstream request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	historyLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_history_lookups_total",
			Help: "History document lookups by result",
		},
		[]string{"result"}, // hit, miss, refresh
	)
)
