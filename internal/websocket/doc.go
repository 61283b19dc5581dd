// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

/*
Package websocket holds the connection side of the chat server: the
registry of authenticated connections, the per-connection read and write
loops, the local dispatch loop and the liveness monitor.

Key Components:

  - Hub: registry keyed by user ID with a room membership index, plus the
    dispatch loop that writes received batches to local clients
  - Client: one connection with a read goroutine and a write goroutine
  - Handler: upgrades /ws, authenticates and registers the connection
  - HealthMonitor: ping/pong liveness probes and eviction

Architecture:

	           ┌─────────┐  Enqueue   ┌─────────┐
	readPump ──┤ Client  ├───────────►│ batcher │
	           └────▲────┘            └────┬────┘
	                │ send queue           │ flush
	           ┌────┴────┐  Deliver   ┌────▼────────┐
	           │   Hub   │◄───────────┤ broadcaster │◄── backbone
	           └─────────┘            └─────────────┘

A user has at most one live connection. A newer connection replaces the
older one, which is closed with 4009. The read loop of a replaced client
only unregisters itself (compare-and-delete).

Frames:

Every frame is {"type": ..., "payload": {...}}.

	inbound:  message, ping, join, leave
	outbound: message_batch, pong, error, session_expired, joined, left

Sending a message to a room joins the sender to it. With room filtering
disabled every local client receives every batch. A configured
RoomAuthorizer can refuse a join or a send; the client then gets an error
frame with code FORBIDDEN and its membership is unchanged.

Close codes:

	1000 normal              4008 evicted (no pong)
	1001 server shutdown     4009 superseded
	4001 missing credential  4010 session expired
	4002 invalid credential

Thread Safety:

Registry state is guarded by one RWMutex. Dispatch and ForEach work on
snapshots. Frames reach a socket only through the client's bounded send
queue; a full queue drops the frame rather than blocking the dispatcher.
*/
package websocket
