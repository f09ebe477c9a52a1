// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks local API request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "widget_request_duration_seconds",
			Help:    "Local API request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total local API requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_requests_total",
			Help: "Total local API requests",
		},
		[]string{"method", "path", "status"},
	)

	// DeliveriesTotal tracks inbound messages forwarded to the UI boundary,
	// labeled by the channel that won the race.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_deliveries_total",
			Help: "Inbound messages delivered to the UI boundary",
		},
		[]string{"channel", "sender_type"},
	)

	// DuplicatesSuppressed tracks inbound messages dropped by deduplication.
	DuplicatesSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_duplicates_suppressed_total",
			Help: "Inbound messages suppressed as duplicates",
		},
		[]string{"channel"},
	)

	// SendsTotal tracks outgoing send attempts by final outcome.
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_sends_total",
			Help: "Outgoing message sends by outcome",
		},
		[]string{"outcome"},
	)

	// RetriesTotal tracks automatic retries by error kind.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_retries_total",
			Help: "Automatic retries by error kind",
		},
		[]string{"kind"},
	)

	// OfflineQueueDepth tracks messages waiting in the offline queue.
	OfflineQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "widget_offline_queue_depth",
			Help: "Messages waiting in the offline queue",
		},
	)

	// PollCyclesTotal tracks polling loop iterations by result.
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_poll_cycles_total",
			Help: "Polling loop iterations by result",
		},
		[]string{"result"},
	)

	// PushConnected reports whether the push subscription is established.
	PushConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "widget_push_connected",
			Help: "1 when the push subscription is active",
		},
	)

	// FallbackTransitions tracks fallback presentation activations.
	FallbackTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_fallback_transitions_total",
			Help: "Fallback presentation activations by kind",
		},
		[]string{"kind"},
	)

	// SSEConnectionsActive tracks active local event stream connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "widget_sse_connections_active",
			Help: "Number of active event stream connections",
		},
	)
)

// RecordRequest records metrics for a local API request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// IncrementSSEConnections increments the active event stream count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active event stream count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
