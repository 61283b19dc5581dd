// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package backbone

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/buddichat/internal/config"
	"github.com/tomtom215/buddichat/internal/logging"
)

// RedisOptions builds go-redis options from configuration. The retry
// backoff grows by 100ms per attempt up to 3s.
func RedisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 3 * time.Second,
	}
}

// Redis is a Backbone over Redis PUBLISH/SUBSCRIBE.
type Redis struct {
	client *redis.Client
	owned  bool

	mu     sync.Mutex
	closed bool
}

// NewRedis creates a Redis backbone owning a new client.
func NewRedis(opts *redis.Options) (*Redis, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	return &Redis{client: redis.NewClient(opts), owned: true}, nil
}

// NewRedisWithClient wraps an existing client. Close leaves it open.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Publish sends data on channel.
func (b *Redis) Publish(ctx context.Context, channel string, data []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Subscribe subscribes to channel. The subscription is confirmed with
// the server before the stream is returned.
func (b *Redis) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}

	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %v", ErrUnavailable, channel, err)
	}

	out := make(chan []byte, subscriptionBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					logging.Warn().Str("channel", channel).Msg("Redis subscription closed")
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close closes the client if this backbone created it.
func (b *Redis) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.owned {
		return b.client.Close()
	}
	return nil
}

// Client exposes the underlying client for sharing with the message cache.
func (b *Redis) Client() *redis.Client {
	return b.client
}

func (b *Redis) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
