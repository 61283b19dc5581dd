// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package backbone

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/buddichat/internal/logging"
)

// Memory is an in-process Backbone for single-instance deployments, built
// on Watermill's gochannel pub/sub. Nothing is persisted.
type Memory struct {
	pubsub *gochannel.GoChannel
}

// NewMemory creates an in-process backbone.
func NewMemory() *Memory {
	logger := logging.NewWatermillAdapter(watermill.LogFields{"backbone": "memory"})
	return &Memory{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: subscriptionBuffer,
			Persistent:          false,
		}, logger),
	}
}

// Publish sends data to current subscribers of channel.
func (b *Memory) Publish(_ context.Context, channel string, data []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.pubsub.Publish(channel, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Subscribe subscribes to channel until ctx is cancelled or Close is called.
func (b *Memory) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	messages, err := b.pubsub.Subscribe(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %v", ErrUnavailable, channel, err)
	}

	out := make(chan []byte, subscriptionBuffer)
	go func() {
		defer close(out)
		for msg := range messages {
			select {
			case out <- msg.Payload:
				msg.Ack()
			case <-ctx.Done():
				msg.Ack()
				// gochannel closes messages once ctx is done; drain it
				for m := range messages {
					m.Ack()
				}
				return
			}
		}
	}()

	return out, nil
}

// Close shuts down the pub/sub and ends every subscription.
func (b *Memory) Close() error {
	return b.pubsub.Close()
}
