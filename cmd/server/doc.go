// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

// Command server runs the Buddichat fan-out server.
//
// # Startup order
//
//  1. Configuration: defaults, then config.yaml, then environment (koanf)
//  2. Logging: zerolog at LOG_LEVEL in LOG_FORMAT
//  3. Backbone: NATS (embedded by default), Redis or in-process
//  4. Recent-message cache: Redis, in-memory or disabled
//  5. Pipeline: hub, broadcaster, batcher, rate limiter, health monitor
//  6. HTTP: /ws, /healthz, /metrics, /api/rooms/{roomID}/recent
//  7. Supervisor tree: everything above runs under suture
//
// # Example
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export BACKBONE_DRIVER=nats NATS_URL=nats://nats:4222 NATS_EMBEDDED=false
//	./buddichat
//
// A single instance needs nothing but JWT_SECRET: the default backbone is
// an embedded NATS server and the default cache is in memory.
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. Every connection is closed
// with 1001 (going away), pending batches are flushed, the HTTP server
// drains for up to SHUTDOWN_TIMEOUT and the backbone is closed last.
package main
