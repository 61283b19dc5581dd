// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

/*
Package backbone provides the cross-process publish/subscribe transport used
to fan chat batches out to every server instance.

Three drivers implement Backbone:

  - NATS: core NATS subjects via nats.go, optionally against an embedded
    nats-server started in-process (single node deployments and tests)
  - Redis: PUBLISH/SUBSCRIBE via go-redis
  - Memory: Watermill's gochannel pub/sub for a single process

All drivers are fire-and-forget. Publish while disconnected fails fast with
ErrUnavailable so the caller can fall back to local delivery, and a lost
subscription closes its stream so the caller can resubscribe with backoff.
*/
package backbone
