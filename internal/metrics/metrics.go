package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Query metrics
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regadvisor_queries_total",
			Help: "Total number of queries processed",
		},
		[]string{"path", "status"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "regadvisor_query_duration_seconds",
			Help:    "Query handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	CitationsPerResponse = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "regadvisor_citations_per_response",
			Help:    "Number of distinct citations attached to a response",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	// Agent metrics
	AgentExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regadvisor_agent_executions_total",
			Help: "Total number of agent executions",
		},
		[]string{"agent", "status"},
	)

	WorkflowsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regadvisor_workflows_executed_total",
			Help: "Total number of workflow executions",
		},
		[]string{"workflow", "status"},
	)

	// Streaming / relay metrics
	StreamEventsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regadvisor_stream_events_relayed_total",
			Help: "Stream events relayed to clients by event type",
		},
		[]string{"type"},
	)

	RelayDeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regadvisor_relay_delivery_failures_total",
			Help: "Relay delivery failures by kind (gone or transient)",
		},
		[]string{"kind"},
	)

	RelayDeadlinesExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regadvisor_relay_deadlines_exceeded_total",
			Help: "Responses terminated by the end-to-end relay deadline",
		},
	)

	// Connection metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "regadvisor_connections_active",
			Help: "Currently registered client connections",
		},
	)

	ConnectionsGone = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regadvisor_connections_gone_total",
			Help: "Connections terminated after a gone delivery failure",
		},
	)

	// Queue metrics
	JobsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regadvisor_jobs_enqueued_total",
			Help: "Query jobs enqueued for asynchronous processing",
		},
	)

	JobsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regadvisor_jobs_consumed_total",
			Help: "Query jobs consumed by the worker",
		},
		[]string{"status"},
	)

	// Auth metrics
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regadvisor_token_refreshes_total",
			Help: "OAuth2 access token refreshes",
		},
		[]string{"status"},
	)

	// Session metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "regadvisor_agent_sessions_active",
			Help: "Agent sessions currently cached per connection",
		},
	)

	SessionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regadvisor_agent_sessions_evicted_total",
			Help: "Agent sessions evicted on disconnect or expiry",
		},
	)
)
