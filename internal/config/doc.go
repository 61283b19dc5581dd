// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

/*
Package config provides configuration loading and validation for Buddichat.

Configuration is layered with koanf, each layer overriding the previous one:

 1. Struct defaults (defaultConfig)
 2. Optional YAML file (CONFIG_PATH, config.yaml, /etc/buddichat/config.yaml)
 3. Environment variables, mapped explicitly by envTransformFunc

Only mapped environment variables are read, so unrelated variables never
leak into configuration.

# Environment Variables

Server:
  - HTTP_HOST, HTTP_PORT: listener address (default 0.0.0.0:8080)
  - INSTANCE_ID: backbone origin identifier (generated when empty)
  - CORS_ORIGINS: comma-separated allowed origins for the REST surface

Security:
  - JWT_SECRET: HS256 signing key (required)
  - ALLOWED_ORIGINS: comma-separated WebSocket origin allow-list
  - SECURITY_POLICY_PATH: Casbin room policy file (built-in policy when empty)
  - DEFAULT_ROLE: role for credentials without a role claim (user)

Chat pipeline:
  - RATE_LIMIT_WINDOW, RATE_LIMIT_CEILING: fixed window limiter (60s, 60)
  - BATCH_MAX_SIZE, BATCH_FLUSH_INTERVAL: batching (50, 100ms)
  - ROOM_FILTERING: deliver only to room members (true)
  - HEALTH_PROBE_INTERVAL: liveness probe period (30s)

Backbone:
  - BACKBONE_DRIVER: nats, redis or memory (nats)
  - BACKBONE_CHANNEL: subject/channel name (chat_messages)
  - NATS_URL, NATS_EMBEDDED
  - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB

Cache:
  - CACHE_DRIVER: redis, memory or none (memory)
  - CACHE_MAX_MESSAGES, CACHE_TTL: retention per room (100, 5m)

Logging:
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER

# Usage

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}
*/
package config
