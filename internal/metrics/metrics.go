package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickstream_messages_received_total",
			Help: "Total number of broker messages received",
		},
		[]string{"channel"},
	)

	NormalizationDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickstream_normalization_drops_total",
			Help: "Messages dropped during normalization",
		},
		[]string{"reason"},
	)

	BrokerReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickstream_broker_reconnects_total",
			Help: "Broker reconnection attempts",
		},
	)

	// Queue metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tickstream_queue_depth",
			Help: "Current depth of the dispatch queue per tier",
		},
		[]string{"tier"},
	)

	QueueDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickstream_queue_drops_total",
			Help: "Items dropped from the dispatch queue per tier",
		},
		[]string{"tier"},
	)

	// Routing metrics
	RouteFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickstream_route_fallbacks_total",
			Help: "Events routed to a fallback path",
		},
		[]string{"route"},
	)

	RouteExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickstream_route_exhausted_total",
			Help: "Events for which both primary and fallback routes were failing",
		},
		[]string{"route"},
	)

	// Worker metrics
	WorkerFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickstream_worker_failures_total",
			Help: "Events dropped due to worker processing failures",
		},
	)

	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickstream_events_processed_total",
			Help: "Events processed by the worker pool",
		},
		[]string{"kind", "tier"},
	)

	// Delivery metrics
	Deliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickstream_deliveries_total",
			Help: "Alerts delivered to connected sessions",
		},
	)

	DeliveriesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickstream_deliveries_skipped_total",
			Help: "Deliveries skipped per reason (not_ready, slow_consumer, session_closed)",
		},
		[]string{"reason"},
	)

	ConnectedSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tickstream_connected_sessions",
			Help: "Number of currently connected sessions",
		},
	)

	// Trace metrics
	TraceDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickstream_trace_drops_total",
			Help: "Flow trace checkpoints dropped under backpressure",
		},
	)
)
