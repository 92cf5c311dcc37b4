// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// TransfersTotal tracks transfer outcomes by kind (room, phone).
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Total transfer attempts by kind and result",
		},
		[]string{"kind", "result"},
	)

	// TransferDuration tracks end-to-end transfer latency.
	TransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transfer_duration_seconds",
			Help:    "Transfer orchestration duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"kind"},
	)

	// SummarizerRequests tracks remote summarization calls.
	SummarizerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summarizer_requests_total",
			Help: "Remote summarizer calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// SummarizerLatency tracks remote summarization latency.
	SummarizerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "summarizer_latency_seconds",
			Help:    "Remote summarizer call latency in seconds",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider"},
	)

	// SummarizerFallbacks counts transfers served by the local fallback.
	SummarizerFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "summarizer_fallbacks_total",
			Help: "Summaries produced by the deterministic local fallback",
		},
	)

	// CallPlacements tracks outbound call placement outcomes.
	CallPlacements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_placements_total",
			Help: "Outbound call placements by outcome",
		},
		[]string{"outcome"},
	)

	// CallMonitorsActive tracks running background call monitors.
	CallMonitorsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "call_monitors_active",
			Help: "Background call status monitors currently running",
		},
	)

	// TrackedRooms tracks live room-state registry entries.
	TrackedRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracked_rooms",
			Help: "Rooms with live transfer state",
		},
	)

	// LockConflicts counts transfer requests rejected on lock timeout.
	LockConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transfer_lock_conflicts_total",
			Help: "Transfers rejected because the room lock stayed held",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTransfer records one transfer attempt's outcome.
func RecordTransfer(kind, result string, duration float64) {
	TransfersTotal.WithLabelValues(kind, result).Inc()
	TransferDuration.WithLabelValues(kind).Observe(duration)
}

// RecordSummarizerCall records one remote summarization attempt.
func RecordSummarizerCall(provider, outcome string, duration float64) {
	SummarizerRequests.WithLabelValues(provider, outcome).Inc()
	SummarizerLatency.WithLabelValues(provider).Observe(duration)
}

// RecordFallbackSummary counts a locally generated summary.
func RecordFallbackSummary() {
	SummarizerFallbacks.Inc()
}

// RecordCallPlacement records one placement outcome.
func RecordCallPlacement(outcome string) {
	CallPlacements.WithLabelValues(outcome).Inc()
}
