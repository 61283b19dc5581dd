// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package config

import (
	"fmt"
	"strings"
)

// minJWTSecretLength is the minimum accepted HS256 key length in bytes.
const minJWTSecretLength = 32

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	if err := c.validatePipeline(); err != nil {
		return err
	}

	if err := c.validateBackbone(); err != nil {
		return err
	}

	if err := c.validateCache(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got: %d", c.Server.Port)
	}
	if c.Server.HandshakeRateLimit < 0 {
		return fmt.Errorf("HANDSHAKE_RATE_LIMIT must not be negative, got: %d", c.Server.HandshakeRateLimit)
	}
	if c.Server.HandshakeRateLimit > 0 && c.Server.HandshakeRateWindow <= 0 {
		return fmt.Errorf("HANDSHAKE_RATE_WINDOW must be positive when HANDSHAKE_RATE_LIMIT is set")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Security.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters, got: %d", minJWTSecretLength, len(c.Security.JWTSecret))
	}
	if c.Security.TokenCookie == "" {
		return fmt.Errorf("TOKEN_COOKIE must not be empty")
	}
	if c.Security.DefaultRole == "" {
		return fmt.Errorf("DEFAULT_ROLE must not be empty")
	}
	if c.Security.PolicyPath != "" && c.Security.PolicyReloadInterval <= 0 {
		return fmt.Errorf("SECURITY_POLICY_RELOAD_INTERVAL must be positive when SECURITY_POLICY_PATH is set")
	}
	return nil
}

// validatePipeline validates rate limiting, batching, connection and health settings.
func (c *Config) validatePipeline() error {
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got: %v", c.RateLimit.Window)
	}
	if c.RateLimit.Ceiling < 1 {
		return fmt.Errorf("RATE_LIMIT_CEILING must be at least 1, got: %d", c.RateLimit.Ceiling)
	}
	if c.Batch.MaxSize < 1 {
		return fmt.Errorf("BATCH_MAX_SIZE must be at least 1, got: %d", c.Batch.MaxSize)
	}
	if c.Batch.FlushInterval <= 0 {
		return fmt.Errorf("BATCH_FLUSH_INTERVAL must be positive, got: %v", c.Batch.FlushInterval)
	}
	if c.Batch.QueueSize < 1 {
		return fmt.Errorf("BATCH_QUEUE_SIZE must be at least 1, got: %d", c.Batch.QueueSize)
	}
	if c.WebSocket.SendQueueSize < 1 {
		return fmt.Errorf("WS_SEND_QUEUE_SIZE must be at least 1, got: %d", c.WebSocket.SendQueueSize)
	}
	if c.WebSocket.DispatchQueueSize < 1 {
		return fmt.Errorf("WS_DISPATCH_QUEUE_SIZE must be at least 1, got: %d", c.WebSocket.DispatchQueueSize)
	}
	if c.WebSocket.MaxMessageSize < 1 {
		return fmt.Errorf("WS_MAX_MESSAGE_SIZE must be positive, got: %d", c.WebSocket.MaxMessageSize)
	}
	if c.Health.ProbeInterval <= 0 {
		return fmt.Errorf("HEALTH_PROBE_INTERVAL must be positive, got: %v", c.Health.ProbeInterval)
	}
	return nil
}

func (c *Config) validateBackbone() error {
	if c.Backbone.Channel == "" {
		return fmt.Errorf("BACKBONE_CHANNEL must not be empty")
	}
	switch strings.ToLower(c.Backbone.Driver) {
	case "nats":
		if c.Backbone.NATS.Embedded {
			if c.Backbone.NATS.EmbeddedPort < -1 || c.Backbone.NATS.EmbeddedPort > 65535 {
				return fmt.Errorf("NATS_EMBEDDED_PORT out of range: %d", c.Backbone.NATS.EmbeddedPort)
			}
			return nil
		}
		if err := validateNATSURL(c.Backbone.NATS.URL); err != nil {
			return fmt.Errorf("NATS_URL: %w", err)
		}
	case "redis":
		if err := validateRedisAddr(c.Backbone.Redis.Addr, "REDIS_ADDR"); err != nil {
			return err
		}
	case "memory":
	default:
		return fmt.Errorf("BACKBONE_DRIVER must be nats, redis, or memory, got: %s", c.Backbone.Driver)
	}
	if c.Backbone.ReconnectInitial <= 0 || c.Backbone.ReconnectMax < c.Backbone.ReconnectInitial {
		return fmt.Errorf("BACKBONE_RECONNECT_MAX (%v) must be >= BACKBONE_RECONNECT_INITIAL (%v) > 0",
			c.Backbone.ReconnectMax, c.Backbone.ReconnectInitial)
	}
	if c.Backbone.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be at least 1")
	}
	return nil
}

func (c *Config) validateCache() error {
	switch strings.ToLower(c.Cache.Driver) {
	case "none":
		return nil
	case "redis":
		if err := validateRedisAddr(c.Cache.Redis.Addr, "CACHE_REDIS_ADDR"); err != nil {
			return err
		}
	case "memory":
		if c.Cache.MaxRooms < 1 {
			return fmt.Errorf("CACHE_MAX_ROOMS must be at least 1, got: %d", c.Cache.MaxRooms)
		}
	default:
		return fmt.Errorf("CACHE_DRIVER must be redis, memory, or none, got: %s", c.Cache.Driver)
	}
	if c.Cache.MaxMessages < 1 {
		return fmt.Errorf("CACHE_MAX_MESSAGES must be at least 1, got: %d", c.Cache.MaxMessages)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got: %v", c.Cache.TTL)
	}
	return nil
}

func (c *Config) validateLogging() error {
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, got: %s", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("LOG_FORMAT must be json or console, got: %s", c.Logging.Format)
	}
	return nil
}
