// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/buddichat/internal/auth"
	"github.com/tomtom215/buddichat/internal/cache"
	"github.com/tomtom215/buddichat/internal/middleware"
)

// ConnectionCounter reports the number of registered connections.
type ConnectionCounter interface {
	GetClientCount() int
}

// BackboneStatus reports the cross-instance broadcaster state.
type BackboneStatus interface {
	Subscribed() bool
	BreakerState() string
}

// RoomAuthorizer decides whether a role may act on a room.
type RoomAuthorizer interface {
	Authorize(role, roomID, action string) bool
}

// Deps holds everything the router serves.
type Deps struct {
	// WebSocket handles upgrades on /ws.
	WebSocket http.Handler

	Authenticator *auth.Authenticator
	// Authorizer gates room reads with the join action. Nil allows all.
	Authorizer  RoomAuthorizer
	Recent      cache.RecentStore
	Connections ConnectionCounter
	Backbone    BackboneStatus

	InstanceID string
	StartedAt  time.Time

	// CacheTimeout bounds reads from the recent-message cache.
	CacheTimeout time.Duration
}

// Router builds the chi router for the chat server.
type Router struct {
	deps       Deps
	middleware *Middleware
}

// NewRouter creates a router. Zero StartedAt and CacheTimeout get defaults.
func NewRouter(deps Deps, mwCfg MiddlewareConfig) *Router {
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}
	if deps.CacheTimeout <= 0 {
		deps.CacheTimeout = 2 * time.Second
	}
	if deps.Recent == nil {
		deps.Recent = cache.NopStore{}
	}
	return &Router{deps: deps, middleware: NewMiddleware(mwCfg)}
}

// Handler returns the configured http.Handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.middleware.CORS())

	// No metrics wrapper: the upgrade hijacks the connection.
	r.With(rt.middleware.HandshakeLimit()).Get("/ws", rt.serveWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)

		r.Get("/healthz", rt.handleHealth)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())

		r.Route("/api/rooms/{roomID}", func(r chi.Router) {
			r.Use(rt.requireAuth)
			r.Get("/recent", rt.handleRecent)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusNotFound, "NOT_FOUND", "route not found")
	})

	return r
}

func (rt *Router) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	if rt.deps.WebSocket == nil {
		NewResponseWriter(w, r).ServiceUnavailable("websocket endpoint not configured")
		return
	}
	rt.deps.WebSocket.ServeHTTP(w, r)
}
