// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of registered WebSocket connections",
		},
	)

	WSHandshakeRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_handshake_rejections_total",
			Help: "Total number of WebSocket handshakes rejected before registration",
		},
		[]string{"reason"}, // missing, invalid, throttled
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket frames queued to clients",
		},
		[]string{"type"},
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket frames received from clients",
		},
		[]string{"type"},
	)

	WSFramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_frames_dropped_total",
			Help: "Total number of outbound frames dropped because a client queue was full",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of error frames sent to clients",
		},
		[]string{"code"},
	)

	WSClosures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_closures_total",
			Help: "Total number of server-initiated connection closures",
		},
		[]string{"reason"}, // superseded, evicted, session_expired, shutdown
	)

	// Rate Limiter Metrics
	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rate_limit_rejections_total",
			Help: "Total number of inbound messages rejected by the rate limiter",
		},
	)

	AuthzDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_authz_denials_total",
			Help: "Total number of room actions denied by the authorization policy",
		},
		[]string{"action"}, // join, send
	)

	RateLimitTrackedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_rate_limit_tracked_users",
			Help: "Current number of users with an active rate window",
		},
	)

	// Batching Metrics
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_batch_size",
			Help:    "Number of messages per flushed batch",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 40, 50, 100},
		},
	)

	BatchFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_batch_flushes_total",
			Help: "Total number of batch flushes",
		},
		[]string{"reason"}, // size, interval, shutdown
	)

	BatchesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_batches_dropped_total",
			Help: "Total number of batches dropped before delivery",
		},
		[]string{"reason"}, // queue_full, sink_error
	)

	BatchPendingMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_batch_pending_messages",
			Help: "Current number of messages waiting in batching buffers",
		},
	)

	// Backbone Metrics
	BackbonePublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backbone_messages_published_total",
			Help: "Total number of batches published to the backbone",
		},
	)

	BackboneConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backbone_messages_consumed_total",
			Help: "Total number of batches received from the backbone",
		},
	)

	BackbonePublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backbone_publish_failures_total",
			Help: "Total number of failed backbone publishes",
		},
		[]string{"reason"}, // error, breaker_open, not_subscribed
	)

	BackboneDecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backbone_decode_failures_total",
			Help: "Total number of backbone payloads that failed to decode",
		},
	)

	BackboneReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backbone_subscribe_attempts_total",
			Help: "Total number of backbone subscribe attempts after the first",
		},
	)

	BackboneSubscribed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backbone_subscribed",
			Help: "Whether this process currently holds a live backbone subscription (1) or not (0)",
		},
	)

	LocalFallbackDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backbone_local_fallback_deliveries_total",
			Help: "Total number of batches delivered locally because the backbone was unavailable",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Recent-Message Cache Metrics
	CacheWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recent_cache_write_failures_total",
			Help: "Total number of failed recent-message cache appends",
		},
	)

	CacheReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recent_cache_reads_total",
			Help: "Total number of recent-message cache reads",
		},
		[]string{"result"}, // hit, miss, error
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recent_cache_evictions_total",
			Help: "Total number of rooms evicted from the in-memory recent-message cache",
		},
	)

	// Health Monitor Metrics
	HealthEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_liveness_evictions_total",
			Help: "Total number of connections terminated for missing a liveness probe",
		},
	)

	HealthProbes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_liveness_probes_total",
			Help: "Total number of liveness pings sent",
		},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordBatchFlush records a flushed batch and the trigger that flushed it.
func RecordBatchFlush(reason string, size int) {
	BatchFlushes.WithLabelValues(reason).Inc()
	BatchSize.Observe(float64(size))
}

// RecordBatchDropped records a batch that never reached delivery.
func RecordBatchDropped(reason string) {
	BatchesDropped.WithLabelValues(reason).Inc()
}

// RecordPublishFailure records a backbone publish that fell back to local delivery.
func RecordPublishFailure(reason string) {
	BackbonePublishFailures.WithLabelValues(reason).Inc()
	LocalFallbackDeliveries.Inc()
}

// SetBackboneSubscribed updates the subscription gauge.
func SetBackboneSubscribed(subscribed bool) {
	if subscribed {
		BackboneSubscribed.Set(1)
		return
	}
	BackboneSubscribed.Set(0)
}

// RecordBreakerTransition records a circuit breaker state change.
// States follow gobreaker's ordering: 0=closed, 1=half-open, 2=open.
func RecordBreakerTransition(name, from, to string, toState int) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(float64(toState))
}

// RecordClosure records a server-initiated connection close.
func RecordClosure(reason string) {
	WSClosures.WithLabelValues(reason).Inc()
}

// RecordErrorFrame records an error frame sent to a client.
func RecordErrorFrame(code string) {
	WSErrors.WithLabelValues(code).Inc()
}
