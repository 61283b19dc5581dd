// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/buddichat/internal/api"
	"github.com/tomtom215/buddichat/internal/auth"
	"github.com/tomtom215/buddichat/internal/authz"
	"github.com/tomtom215/buddichat/internal/backbone"
	"github.com/tomtom215/buddichat/internal/batch"
	"github.com/tomtom215/buddichat/internal/cache"
	"github.com/tomtom215/buddichat/internal/config"
	"github.com/tomtom215/buddichat/internal/fanout"
	"github.com/tomtom215/buddichat/internal/logging"
	"github.com/tomtom215/buddichat/internal/ratelimit"
	"github.com/tomtom215/buddichat/internal/supervisor"
	"github.com/tomtom215/buddichat/internal/supervisor/services"
	ws "github.com/tomtom215/buddichat/internal/websocket"
)

// app holds the wired components of one server process.
type app struct {
	instanceID  string
	tree        *supervisor.SupervisorTree
	http        *services.HTTPServerService
	hub         *ws.Hub
	broadcaster *fanout.Broadcaster

	// closers run in reverse order after the tree stops.
	closers []func() error
}

// newApp wires every component from cfg. Nothing is started until the
// tree is served.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{instanceID: cfg.Server.InstanceID}
	if a.instanceID == "" {
		a.instanceID = uuid.NewString()
	}
	if err := a.wire(ctx, cfg); err != nil {
		if closeErr := a.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Msg("Cleanup after failed startup")
		}
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, cfg *config.Config) error {
	verifier, err := auth.NewJWTVerifier(cfg.Security.JWTSecret)
	if err != nil {
		return fmt.Errorf("credential verifier: %w", err)
	}
	authn := auth.NewAuthenticator(verifier, cfg.Security.TokenCookie)

	bb, err := backbone.Open(ctx, cfg.Backbone)
	if err != nil {
		return fmt.Errorf("open backbone: %w", err)
	}
	a.closers = append(a.closers, bb.Close)

	recent, err := a.openCache(cfg, bb)
	if err != nil {
		return err
	}

	a.hub = ws.NewHub(ws.HubConfig{
		DispatchQueueSize: cfg.WebSocket.DispatchQueueSize,
		RoomFiltering:     cfg.WebSocket.RoomFiltering,
	})

	a.broadcaster, err = fanout.New(bb, a.hub, recent, fanout.Config{
		Channel:          cfg.Backbone.Channel,
		InstanceID:       a.instanceID,
		PublishTimeout:   cfg.Backbone.PublishTimeout,
		CacheTimeout:     cfg.Cache.WriteTimeout,
		ReconnectInitial: cfg.Backbone.ReconnectInitial,
		ReconnectMax:     cfg.Backbone.ReconnectMax,
		Breaker: fanout.BreakerConfig{
			Name:             "backbone-publish",
			MaxRequests:      cfg.Backbone.Breaker.MaxRequests,
			Interval:         cfg.Backbone.Breaker.Interval,
			Timeout:          cfg.Backbone.Breaker.Timeout,
			FailureThreshold: cfg.Backbone.Breaker.FailureThreshold,
		},
	})
	if err != nil {
		return fmt.Errorf("broadcaster: %w", err)
	}

	batcher, err := batch.New(a.broadcaster, batch.Config{
		MaxBatchSize:  cfg.Batch.MaxSize,
		FlushInterval: cfg.Batch.FlushInterval,
		QueueSize:     cfg.Batch.QueueSize,
		SinkTimeout:   cfg.Backbone.PublishTimeout + cfg.Cache.WriteTimeout,
	})
	if err != nil {
		return fmt.Errorf("batcher: %w", err)
	}

	enforcer, err := authz.NewEnforcer(authz.Config{
		PolicyPath:     cfg.Security.PolicyPath,
		ReloadInterval: cfg.Security.PolicyReloadInterval,
		DefaultRole:    cfg.Security.DefaultRole,
	})
	if err != nil {
		return fmt.Errorf("room policy: %w", err)
	}

	limiter := ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.Ceiling,
		ratelimit.WithSweepInterval(cfg.RateLimit.SweepInterval))

	wsHandler := ws.NewHandler(a.hub, authn, limiter, batcher, ws.HandlerConfig{
		Client: ws.ClientConfig{
			WriteWait:      cfg.WebSocket.WriteWait,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
			SendQueueSize:  cfg.WebSocket.SendQueueSize,
		},
		AllowedOrigins: cfg.Security.AllowedOrigins,
		Authorizer:     enforcer,
	})

	router := api.NewRouter(api.Deps{
		WebSocket:     wsHandler,
		Authenticator: authn,
		Authorizer:    enforcer,
		Recent:        recent,
		Connections:   a.hub,
		Backbone:      a.broadcaster,
		InstanceID:    a.instanceID,
		StartedAt:     time.Now(),
		CacheTimeout:  cfg.Cache.WriteTimeout,
	}, api.MiddlewareConfig{
		CORSOrigins:         cfg.Server.CORSOrigins,
		HandshakeRateLimit:  cfg.Server.HandshakeRateLimit,
		HandshakeRateWindow: cfg.Server.HandshakeRateWindow,
	})

	server := &http.Server{
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	a.http = services.NewHTTPServerService(server, addr, cfg.Server.ShutdownTimeout)

	a.tree, err = supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	a.tree.AddMessagingService(a.hub)
	a.tree.AddMessagingService(a.broadcaster)
	a.tree.AddMessagingService(batcher)

	a.tree.AddMaintenanceService(ws.NewHealthMonitor(a.hub, cfg.Health.ProbeInterval))
	a.tree.AddMaintenanceService(limiter)
	a.tree.AddMaintenanceService(enforcer)
	if store, ok := recent.(*cache.MemoryStore); ok {
		a.tree.AddMaintenanceService(services.NewPeriodic("cache-janitor", cfg.Cache.TTL, store.CleanupExpired))
	}

	a.tree.AddAPIService(a.http)
	return nil
}

// openCache opens the recent-message cache. The Redis driver reuses the
// backbone's client when both point at the same server.
func (a *app) openCache(cfg *config.Config, bb backbone.Backbone) (cache.RecentStore, error) {
	var client *redis.Client
	if cfg.Cache.Driver == "redis" {
		if rb, ok := bb.(*backbone.Redis); ok && cfg.Cache.Redis == cfg.Backbone.Redis {
			client = rb.Client()
		} else {
			client = redis.NewClient(backbone.RedisOptions(cfg.Cache.Redis))
			a.closers = append(a.closers, client.Close)
		}
	}

	recent, err := cache.Open(cfg.Cache, client)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return recent, nil
}

// Close releases the backbone and any Redis clients. Call it after the
// tree has stopped.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
