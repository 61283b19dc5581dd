// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Security   SecurityConfig   `koanf:"security"`
	RateLimit  RateLimitConfig  `koanf:"ratelimit"`
	Batch      BatchConfig      `koanf:"batch"`
	WebSocket  WebSocketConfig  `koanf:"websocket"`
	Health     HealthConfig     `koanf:"health"`
	Backbone   BackboneConfig   `koanf:"backbone"`
	Cache      CacheConfig      `koanf:"cache"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// InstanceID identifies this process on the backbone. Generated when empty.
	InstanceID string `koanf:"instance_id"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// HandshakeRateLimit caps WebSocket upgrade attempts per IP per
	// HandshakeRateWindow. Zero disables the limit.
	HandshakeRateLimit  int           `koanf:"handshake_rate_limit"`
	HandshakeRateWindow time.Duration `koanf:"handshake_rate_window"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// SecurityConfig holds credential verification settings.
type SecurityConfig struct {
	// JWTSecret is the HS256 signing key shared with the credential issuer.
	JWTSecret string `koanf:"jwt_secret"`

	// TokenCookie is the cookie consulted when no ?token= query parameter is present.
	TokenCookie string `koanf:"token_cookie"`

	// AllowedOrigins restricts WebSocket upgrades by Origin header.
	// Empty or "*" allows every origin.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// PolicyPath is a Casbin CSV policy for room access. Empty uses the
	// built-in policy.
	PolicyPath string `koanf:"policy_path"`

	// PolicyReloadInterval controls how often PolicyPath is re-read.
	PolicyReloadInterval time.Duration `koanf:"policy_reload_interval"`

	// DefaultRole applies to credentials without a role claim.
	DefaultRole string `koanf:"default_role"`
}

// RateLimitConfig configures the fixed-window inbound message limiter.
type RateLimitConfig struct {
	Window  time.Duration `koanf:"window"`
	Ceiling int           `koanf:"ceiling"`

	// SweepInterval controls how often idle windows are evicted.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// BatchConfig configures the per-room batching buffer.
type BatchConfig struct {
	MaxSize       int           `koanf:"max_size"`
	FlushInterval time.Duration `koanf:"flush_interval"`

	// QueueSize is the capacity of the hand-off queue between flushes and
	// the publishing worker.
	QueueSize int `koanf:"queue_size"`
}

// WebSocketConfig configures connection handling.
type WebSocketConfig struct {
	MaxMessageSize int64         `koanf:"max_message_size"`
	WriteWait      time.Duration `koanf:"write_wait"`
	SendQueueSize  int           `koanf:"send_queue_size"`

	// RoomFiltering delivers batches only to members of the batch's room.
	// When false every local connection receives every batch.
	RoomFiltering bool `koanf:"room_filtering"`

	// DispatchQueueSize is the capacity of the hub's delivery queue.
	DispatchQueueSize int `koanf:"dispatch_queue_size"`
}

// HealthConfig configures liveness probing.
type HealthConfig struct {
	ProbeInterval time.Duration `koanf:"probe_interval"`
}

// BackboneConfig selects and configures the cross-instance pub/sub backbone.
type BackboneConfig struct {
	// Driver is one of: nats, redis, memory.
	Driver  string `koanf:"driver"`
	Channel string `koanf:"channel"`

	NATS  NATSConfig  `koanf:"nats"`
	Redis RedisConfig `koanf:"redis"`

	// PublishTimeout bounds a single publish call.
	PublishTimeout time.Duration `koanf:"publish_timeout"`

	// ReconnectInitial and ReconnectMax bound the subscribe retry backoff.
	ReconnectInitial time.Duration `koanf:"reconnect_initial"`
	ReconnectMax     time.Duration `koanf:"reconnect_max"`

	Breaker BreakerConfig `koanf:"breaker"`
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL string `koanf:"url"`

	// Embedded starts an in-process NATS server and connects to it.
	Embedded     bool   `koanf:"embedded"`
	EmbeddedHost string `koanf:"embedded_host"`
	EmbeddedPort int    `koanf:"embedded_port"`

	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// RedisConfig holds Redis connection settings shared by the Redis backbone
// and the Redis recent-message cache.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	PoolSize int    `koanf:"pool_size"`
}

// BreakerConfig configures the publish circuit breaker.
type BreakerConfig struct {
	MaxRequests      uint32        `koanf:"max_requests"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
}

// CacheConfig configures the recent-message cache.
type CacheConfig struct {
	// Driver is one of: redis, memory, none.
	Driver string `koanf:"driver"`

	// MaxMessages is the number of messages kept per room.
	MaxMessages int `koanf:"max_messages"`

	// TTL is refreshed on every append.
	TTL time.Duration `koanf:"ttl"`

	// MaxRooms bounds the in-memory driver.
	MaxRooms int `koanf:"max_rooms"`

	WriteTimeout time.Duration `koanf:"write_timeout"`

	Redis RedisConfig `koanf:"redis"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig holds suture tree settings.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// Load reads configuration from defaults, an optional config file, and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
