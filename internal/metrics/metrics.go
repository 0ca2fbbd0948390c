package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poller Metrics
var (
	// PollsTotal tracks poll cycles by outcome (success/error)
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fngpulse_polls_total",
			Help: "Total index poll cycles by outcome",
		},
		[]string{"outcome"},
	)

	// PollDuration tracks full poll cycle duration in seconds
	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fngpulse_poll_duration_seconds",
			Help:    "Poll cycle duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// IndexValue exposes the most recently observed index value
	IndexValue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fngpulse_index_value",
			Help: "Most recently observed sentiment index value (0-100)",
		},
	)

	// UpstreamRequestsTotal tracks upstream feed requests by status
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fngpulse_upstream_requests_total",
			Help: "Upstream feed requests by status",
		},
		[]string{"status"},
	)

	// UpstreamRequestDuration tracks upstream feed request latency in seconds
	UpstreamRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fngpulse_upstream_request_duration_seconds",
			Help:    "Upstream feed request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// PollRetriesTotal tracks retry attempts during poll cycles
	PollRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fngpulse_poll_retries_total",
			Help: "Total retry attempts while polling the index feed",
		},
	)
)

// Notification Metrics
var (
	// NotificationsTotal tracks delivered notifications by reason and status
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fngpulse_notifications_total",
			Help: "Webhook notifications by reason and status",
		},
		[]string{"reason", "status"},
	)

	// NotificationsDebounced tracks notifications suppressed by cooldown
	NotificationsDebounced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fngpulse_notifications_debounced_total",
			Help: "Notifications suppressed by subscription cooldown",
		},
	)
)

// Redis Operations Metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// HTTP / WebSocket Metrics
var (
	// HTTPErrorsTotal tracks HTTP errors by type
	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total HTTP errors by error type",
		},
		[]string{"type"},
	)

	// WebSocketClientsCurrent tracks currently connected feed clients
	WebSocketClientsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients_current",
			Help: "Currently connected WebSocket feed clients",
		},
	)

	// WebSocketSlowClientsEvicted tracks slow clients dropped due to full buffers
	WebSocketSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_slow_clients_evicted_total",
			Help: "WebSocket clients evicted because their send buffer was full",
		},
	)

	// CacheHitsTotal tracks latest-reading lookups by source (cache/store/upstream)
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fngpulse_latest_lookups_total",
			Help: "Latest-reading lookups by resolving source",
		},
		[]string{"source"},
	)
)
