// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

// Package cache keeps a short window of recent messages per room so that
// late joiners and the history endpoint can read them without hitting
// persistent storage.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/buddichat/internal/chat"
	"github.com/tomtom215/buddichat/internal/config"
)

// ErrWriteFailed wraps errors from Append. Callers log it and continue;
// a cache failure never blocks delivery.
var ErrWriteFailed = errors.New("recent message cache write failed")

// RecentStore holds the last N messages per room with a refreshed TTL.
type RecentStore interface {
	// Append adds messages to the end of the room's window, trims it to
	// the configured size and refreshes its TTL.
	Append(ctx context.Context, roomID string, messages []chat.Message) error

	// Recent returns the room's window, oldest first. A missing or
	// expired room yields an empty slice.
	Recent(ctx context.Context, roomID string) ([]chat.Message, error)
}

// Key returns the cache key for a room's recent messages.
func Key(roomID string) string {
	return "room:" + roomID + ":messages"
}

// Open creates the store selected by cfg.Driver. client is required for the
// redis driver and ignored otherwise.
func Open(cfg config.CacheConfig, client *redis.Client) (RecentStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis cache requires a client")
		}
		return NewRedisStore(client, cfg.MaxMessages, cfg.TTL), nil
	case "memory":
		return NewMemoryStore(cfg.MaxRooms, cfg.MaxMessages, cfg.TTL), nil
	case "none", "":
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// NopStore discards writes and returns nothing.
type NopStore struct{}

// Append does nothing.
func (NopStore) Append(context.Context, string, []chat.Message) error { return nil }

// Recent returns no messages.
func (NopStore) Recent(context.Context, string) ([]chat.Message, error) { return nil, nil }
