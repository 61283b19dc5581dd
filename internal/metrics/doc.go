// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered with the default registry through promauto and
exposed at /metrics in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

Connections:
  - websocket_connections: registered connections (gauge)
  - websocket_handshake_rejections_total{reason}
  - websocket_messages_sent_total{type}, websocket_messages_received_total{type}
  - websocket_frames_dropped_total: frames dropped on full client queues
  - websocket_closures_total{reason}
  - websocket_liveness_probes_total, websocket_liveness_evictions_total

Pipeline:
  - chat_rate_limit_rejections_total, chat_rate_limit_tracked_users
  - chat_authz_denials_total{action}
  - chat_batch_size (histogram), chat_batch_flushes_total{reason}
  - chat_batches_dropped_total{reason}, chat_batch_pending_messages

Backbone:
  - backbone_messages_published_total, backbone_messages_consumed_total
  - backbone_publish_failures_total{reason}
  - backbone_local_fallback_deliveries_total
  - backbone_subscribed, backbone_subscribe_attempts_total
  - circuit_breaker_state{name}, circuit_breaker_state_transitions_total

Recent-message cache:
  - recent_cache_write_failures_total, recent_cache_reads_total{result}
  - recent_cache_evictions_total

HTTP:
  - api_requests_total, api_request_duration_seconds, api_active_requests
*/
package metrics
