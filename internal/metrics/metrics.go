package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
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

// Connection Registry Metrics
var (
	// ConnectionsCurrent tracks current live subscriber connections
	ConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_current",
			Help: "Current number of live WebSocket subscriber connections",
		},
	)

	// ConnectionOrigins tracks the number of distinct origins with live connections
	ConnectionOrigins = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_unique_ips",
			Help: "Number of unique origin addresses with live WebSocket connections",
		},
	)

	// AdmissionsTotal tracks admission attempts by result
	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_admissions_total",
			Help: "Total WebSocket admission attempts by result (admitted/global_limit/origin_limit/shutting_down)",
		},
		[]string{"result"},
	)

	// DisconnectsTotal tracks connection removals by reason
	DisconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_disconnects_total",
			Help: "Total WebSocket connections removed by reason (client_closed/send_failure/timeout/shutdown)",
		},
		[]string{"reason"},
	)

	// ConnectionDuration tracks how long subscribers stay attached
	ConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "WebSocket connection duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
		},
	)

	// MessageSendDuration tracks single frame write latency
	MessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)
)

// Broadcaster Metrics
var (
	// BroadcastDeliveries tracks per-connection fan-out outcomes
	BroadcastDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcaster_deliveries_total",
			Help: "Per-connection broadcast outcomes (delivered/throttled/failed)",
		},
		[]string{"result"},
	)

	// BroadcastDuration tracks how long one publish takes across all connections
	BroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcaster_publish_duration_seconds",
			Help:    "Duration of one publish across all live connections",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5},
		},
	)

	// ReplayMessagesSent tracks cached messages replayed to new subscribers
	ReplayMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_replay_messages_total",
			Help: "Total cached messages replayed to newly attached subscribers",
		},
	)

	// ShutdownTimeoutsTotal tracks shutdowns that exceeded the grace period
	ShutdownTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_shutdown_timeouts_total",
			Help: "Shutdowns that exceeded the grace period and force-closed connections",
		},
	)
)

// Liveness Metrics
var (
	// HeartbeatProbesSent tracks idle probes sent to quiet subscribers
	HeartbeatProbesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_heartbeat_probes_total",
			Help: "Total idle heartbeat probes sent to subscribers",
		},
	)

	// HeartbeatPongsSent tracks pong replies to client pings
	HeartbeatPongsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_heartbeat_pongs_total",
			Help: "Total pong replies sent in response to client pings",
		},
	)

	// LivenessTimeouts tracks connections dropped for missing heartbeats
	LivenessTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_liveness_timeouts_total",
			Help: "Total WebSocket connections closed because the heartbeat timeout elapsed",
		},
	)
)

// Rate Limiter Metrics
var (
	// RateLimitDecisions tracks limiter outcomes by backend and result
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Rate limiter decisions by backend (memory/redis) and result (allowed/denied/fail_open)",
		},
		[]string{"backend", "result"},
	)

	// RateLimitBuckets tracks live in-memory rate-limit buckets
	RateLimitBuckets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limit_buckets",
			Help: "Current number of in-memory rate-limit buckets",
		},
	)
)

// Ingestion Metrics
var (
	// IngestTotal tracks upstream events by outcome
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "Total upstream events by outcome (broadcast/rejected)",
		},
		[]string{"result"},
	)

	// PersistTotal tracks durable store writes by outcome
	PersistTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_persist_total",
			Help: "Durable store writes by outcome (stored/duplicate/error)",
		},
		[]string{"result"},
	)

	// CacheErrorsTotal tracks replay cache and counter failures during ingest
	CacheErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_cache_errors_total",
			Help: "Replay cache and message counter failures during ingest",
		},
		[]string{"component"},
	)

	// IngestDuration tracks end-to-end ingest latency
	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_duration_seconds",
			Help:    "End-to-end ingest duration in seconds (persist, cache, broadcast)",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)

// Database Metrics
var (
	// DBQueryDuration tracks database query duration by query name
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"query"},
	)

	// DBErrorsTotal tracks database errors by query name
	DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_errors_total",
			Help: "Total database errors by query",
		},
		[]string{"query"},
	)
)

// Build Information Metrics
var (
	// HTTPErrorsTotal tracks HTTP errors by type
	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total HTTP errors by error type",
		},
		[]string{"type"},
	)

	// BuildInfo is a gauge that always returns 1, with build metadata as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, build_time, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)

// HTTP Error Metrics
// Note: http_errors_total{type} is provided by internal/platform/errors
