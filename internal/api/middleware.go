// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/buddichat/internal/logging"
	"github.com/tomtom215/buddichat/internal/metrics"
)

// MiddlewareConfig configures the router middleware stack.
type MiddlewareConfig struct {
	// CORSOrigins lists allowed origins. "*" allows any origin.
	CORSOrigins []string

	// HandshakeRateLimit caps /ws upgrade attempts per IP per window.
	// Zero disables handshake throttling.
	HandshakeRateLimit  int
	HandshakeRateWindow time.Duration
}

// Middleware builds chi-compatible middleware from a MiddlewareConfig.
type Middleware struct {
	config MiddlewareConfig
}

// NewMiddleware creates a middleware factory.
func NewMiddleware(cfg MiddlewareConfig) *Middleware {
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.HandshakeRateWindow <= 0 {
		cfg.HandshakeRateWindow = time.Minute
	}
	return &Middleware{config: cfg}
}

// CORS returns the go-chi/cors handler for the configured origins.
func (m *Middleware) CORS() func(http.Handler) http.Handler {
	allowCredentials := true
	for _, origin := range m.config.CORSOrigins {
		// Browsers reject credentialed responses with a wildcard origin.
		if origin == "*" {
			allowCredentials = false
			break
		}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   m.config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	})
}

// HandshakeLimit throttles WebSocket upgrade attempts per client IP.
func (m *Middleware) HandshakeLimit() func(http.Handler) http.Handler {
	if m.config.HandshakeRateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(
		m.config.HandshakeRateLimit,
		m.config.HandshakeRateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.WSHandshakeRejections.WithLabelValues("throttled").Inc()
			logging.Ctx(r.Context()).Warn().
				Str("remote_addr", r.RemoteAddr).
				Msg("WebSocket handshake rate limit exceeded")
			NewResponseWriter(w, r).Error(http.StatusTooManyRequests, ErrCodeTooManyRequests,
				"too many connection attempts")
		}),
	)
}
