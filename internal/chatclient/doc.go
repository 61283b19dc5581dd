// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

/*
Package chatclient is a reconnecting Go client for the chat WebSocket
endpoint, used by load tools and integration tests.

# State machine

	Disconnected ──Run──▶ Connecting ──dial ok──▶ Connected
	     ▲                    │                       │
	     └──── backoff ◀──────┴──── dial error / close ┘

A successful connect resets the retry counter. After a failure the client
waits base*2^attempt plus up to MaxJitter of random delay, capped at
MaxDelay, and gives up with ErrMaxAttempts after MaxAttempts consecutive
failures.

Some server close codes end Run without retrying because reconnecting with
the same credential cannot succeed: 1000 normal close, 4001 and 4002
credential rejection, 4009 superseded by a newer connection, 4010 session
expired. Run returns a *CloseError for these.

# Rooms

Join and Leave are remembered across reconnects. After every successful
connect the client re-sends a join frame for each remembered room before
any other traffic. Sending a message also remembers its room, matching the
server's auto-join on send.

# Heartbeat

Every HeartbeatInterval the client sends a ping frame. If no pong arrives
within PongTimeout the connection is dropped and the reconnect loop takes
over.
*/
package chatclient
