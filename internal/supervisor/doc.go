// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

/*
Package supervisor runs the chat server's long-lived services under a
suture v4 supervisor tree.

# Layout

	RootSupervisor ("buddichat")
	├── MessagingSupervisor ("messaging-layer")
	│   ├── websocket.Hub          dispatch of delivered batches
	│   ├── fanout.Broadcaster     backbone subscription and reconnect
	│   └── batch.Batcher          per-room flush timer and sink workers
	├── MaintenanceSupervisor ("maintenance-layer")
	│   ├── websocket.HealthMonitor
	│   ├── ratelimit.Limiter      idle window sweep
	│   └── services.Periodic      in-memory cache expiry (memory driver only)
	└── APISupervisor ("api-layer")
	    └── services.HTTPServerService

Every service implements suture.Service (Serve(ctx) error) and
fmt.Stringer so suture can name it in events. Events are logged through
sutureslog into the zerolog-backed slog handler from internal/logging.

# Restart policy

A service that returns a non-nil error (or panics) is restarted. After
FailureThreshold failures inside the FailureDecay window the supervisor
waits FailureBackoff before the next restart. Returning ctx.Err() on
cancellation is a clean stop.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(),
	    supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
	    return err
	}
	tree.AddMessagingService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, ":8080", cfg.Server.ShutdownTimeout))
	errCh := tree.ServeBackground(ctx)
*/
package supervisor
