// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package backbone

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/buddichat/internal/config"
)

var (
	// ErrUnavailable is returned when the backbone cannot currently accept
	// a publish or subscription.
	ErrUnavailable = errors.New("backbone unavailable")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("backbone closed")
)

// Backbone is a best-effort publish/subscribe transport shared by every
// server process. Only processes subscribed at publish time receive a
// payload; nothing is persisted or replayed.
type Backbone interface {
	// Publish sends data to every current subscriber of channel.
	Publish(ctx context.Context, channel string, data []byte) error

	// Subscribe returns a stream of payloads published to channel. The
	// stream is closed when ctx is cancelled, the backbone is closed, or
	// the subscription is lost; callers resubscribe in the last case.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)

	// Close releases the connection.
	Close() error
}

// subscriptionBuffer is the capacity of each subscription stream.
const subscriptionBuffer = 256

// Open creates the backbone selected by cfg.Driver.
func Open(ctx context.Context, cfg config.BackboneConfig) (Backbone, error) {
	switch strings.ToLower(cfg.Driver) {
	case "nats":
		return OpenNATS(ctx, cfg.NATS)
	case "redis":
		return NewRedis(RedisOptions(cfg.Redis))
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown backbone driver %q", cfg.Driver)
	}
}
