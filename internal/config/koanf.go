// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/buddichat/config.yaml",
	"/etc/buddichat/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ShutdownTimeout:     10 * time.Second,
			HandshakeRateLimit:  30,
			HandshakeRateWindow: time.Minute,
			CORSOrigins:         []string{"*"},
		},
		Security: SecurityConfig{
			TokenCookie:          "token",
			AllowedOrigins:       []string{"*"},
			PolicyReloadInterval: 30 * time.Second,
			DefaultRole:          "user",
		},
		RateLimit: RateLimitConfig{
			Window:        60 * time.Second,
			Ceiling:       60,
			SweepInterval: 5 * time.Minute,
		},
		Batch: BatchConfig{
			MaxSize:       50,
			FlushInterval: 100 * time.Millisecond,
			QueueSize:     1024,
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize:    64 * 1024,
			WriteWait:         10 * time.Second,
			SendQueueSize:     256,
			RoomFiltering:     true,
			DispatchQueueSize: 1024,
		},
		Health: HealthConfig{
			ProbeInterval: 30 * time.Second,
		},
		Backbone: BackboneConfig{
			Driver:  "nats",
			Channel: "chat_messages",
			NATS: NATSConfig{
				URL:           "nats://127.0.0.1:4222",
				Embedded:      true,
				EmbeddedHost:  "127.0.0.1",
				EmbeddedPort:  4222,
				ReconnectWait: 100 * time.Millisecond,
			},
			Redis: RedisConfig{
				Addr:     "127.0.0.1:6379",
				PoolSize: 10,
			},
			PublishTimeout:   2 * time.Second,
			ReconnectInitial: 100 * time.Millisecond,
			ReconnectMax:     3 * time.Second,
			Breaker: BreakerConfig{
				MaxRequests:      1,
				Interval:         time.Minute,
				Timeout:          5 * time.Second,
				FailureThreshold: 5,
			},
		},
		Cache: CacheConfig{
			Driver:       "memory",
			MaxMessages:  100,
			TTL:          300 * time.Second,
			MaxRooms:     10000,
			WriteTimeout: time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Default returns the built-in defaults without reading files or the
// environment. JWTSecret is left empty.
func Default() *Config {
	return defaultConfig()
}

// LoadWithKoanf loads configuration using the layered koanf providers.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.applyInheritance()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyInheritance fills cache Redis settings from the backbone when the
// cache section leaves them unset, so a single REDIS_ADDR serves both.
func (c *Config) applyInheritance() {
	if c.Cache.Redis.Addr == "" {
		c.Cache.Redis = c.Backbone.Redis
	}
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"server.cors_origins",
	"security.allowed_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"instance_id":           "server.instance_id",
	"shutdown_timeout":      "server.shutdown_timeout",
	"handshake_rate_limit":  "server.handshake_rate_limit",
	"handshake_rate_window": "server.handshake_rate_window",
	"cors_origins":          "server.cors_origins",

	// Security
	"jwt_secret":                      "security.jwt_secret",
	"token_cookie":                    "security.token_cookie",
	"allowed_origins":                 "security.allowed_origins",
	"security_policy_path":            "security.policy_path",
	"security_policy_reload_interval": "security.policy_reload_interval",
	"default_role":                    "security.default_role",

	// Rate limiting
	"rate_limit_window":         "ratelimit.window",
	"rate_limit_ceiling":        "ratelimit.ceiling",
	"rate_limit_sweep_interval": "ratelimit.sweep_interval",

	// Batching
	"batch_max_size":       "batch.max_size",
	"batch_flush_interval": "batch.flush_interval",
	"batch_queue_size":     "batch.queue_size",

	// WebSocket
	"ws_max_message_size":    "websocket.max_message_size",
	"ws_write_wait":          "websocket.write_wait",
	"ws_send_queue_size":     "websocket.send_queue_size",
	"ws_dispatch_queue_size": "websocket.dispatch_queue_size",
	"room_filtering":         "websocket.room_filtering",

	// Health
	"health_probe_interval": "health.probe_interval",

	// Backbone
	"backbone_driver":            "backbone.driver",
	"backbone_channel":           "backbone.channel",
	"backbone_publish_timeout":   "backbone.publish_timeout",
	"backbone_reconnect_initial": "backbone.reconnect_initial",
	"backbone_reconnect_max":     "backbone.reconnect_max",
	"breaker_max_requests":       "backbone.breaker.max_requests",
	"breaker_interval":           "backbone.breaker.interval",
	"breaker_timeout":            "backbone.breaker.timeout",
	"breaker_failure_threshold":  "backbone.breaker.failure_threshold",
	"nats_url":                   "backbone.nats.url",
	"nats_embedded":              "backbone.nats.embedded",
	"nats_embedded_host":         "backbone.nats.embedded_host",
	"nats_embedded_port":         "backbone.nats.embedded_port",
	"nats_reconnect_wait":        "backbone.nats.reconnect_wait",
	"redis_addr":                 "backbone.redis.addr",
	"redis_password":             "backbone.redis.password",
	"redis_db":                   "backbone.redis.db",
	"redis_pool_size":            "backbone.redis.pool_size",

	// Cache
	"cache_driver":         "cache.driver",
	"cache_max_messages":   "cache.max_messages",
	"cache_ttl":            "cache.ttl",
	"cache_max_rooms":      "cache.max_rooms",
	"cache_write_timeout":  "cache.write_timeout",
	"cache_redis_addr":     "cache.redis.addr",
	"cache_redis_password": "cache.redis.password",
	"cache_redis_db":       "cache.redis.db",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - JWT_SECRET -> security.jwt_secret
//   - NATS_URL -> backbone.nats.url
//   - BATCH_MAX_SIZE -> batch.max_size
//
// Unmapped keys return "" and are skipped.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
