// ABOUTME: Prometheus metrics for the HTTP API
// ABOUTME: Request counts and latency by method, route pattern and status

package api

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "convo_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// ConversationActions counts conversation mutations by action.
	ConversationActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_conversation_actions_total",
			Help: "Conversation mutations performed through the API",
		},
		[]string{"action"}, // delete, vanish, rename, assign, clear, gen_title
	)
)

func recordRequest(method, route string, status int, seconds float64) {
	code := strconv.Itoa(status)
	RequestDuration.WithLabelValues(method, route, code).Observe(seconds)
	RequestsTotal.WithLabelValues(method, route, code).Inc()
}
