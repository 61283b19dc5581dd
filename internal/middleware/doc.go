// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

/*
Package middleware provides HTTP middleware for the chat server's HTTP
surface.

Key Components:

  - RequestID: propagates or generates X-Request-ID and stores it in the
    logging context
  - PrometheusMetrics: request counts, latency and in-flight gauge, labelled
    by chi route pattern to keep cardinality bounded

Both are chi-style func(http.Handler) http.Handler. PrometheusMetrics wraps
the ResponseWriter, so it must not sit in front of the WebSocket upgrade.
*/
package middleware
