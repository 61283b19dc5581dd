// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

/*
Package api provides the HTTP surface of the chat server.

Routes:

	GET /ws                         WebSocket upgrade (handshake limited per IP)
	GET /healthz                    liveness and pipeline status
	GET /metrics                    Prometheus exposition
	GET /api/rooms/{roomID}/recent  recent-message window for a room

Every route runs behind request ID, real IP, panic recovery and CORS
middleware. JSON responses other than /healthz use the APIResponse envelope.
/ws is never wrapped by the metrics middleware because the upgrade needs
the raw http.Hijacker.

The recent-messages endpoint requires the same credential as the WebSocket
handshake, presented as ?token= or the token cookie.
*/
package api
