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

	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/buddichat/internal/config"
	"github.com/tomtom215/buddichat/internal/logging"
)

// NATS is a Backbone over core NATS subjects.
type NATS struct {
	conn     *natsgo.Conn
	embedded *EmbeddedServer

	mu     sync.Mutex
	subs   map[*natsSubscription]struct{}
	closed bool
}

// OpenNATS connects to cfg.URL, or starts an embedded server first when
// cfg.Embedded is set.
func OpenNATS(_ context.Context, cfg config.NATSConfig) (*NATS, error) {
	url := cfg.URL
	var embedded *EmbeddedServer
	if cfg.Embedded {
		srv, err := StartEmbeddedServer(EmbeddedOptions{Host: cfg.EmbeddedHost, Port: cfg.EmbeddedPort})
		if err != nil {
			return nil, err
		}
		embedded = srv
		url = srv.ClientURL()
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	}

	b, err := ConnectNATS(url, cfg.ReconnectWait)
	if err != nil {
		if embedded != nil {
			embedded.Shutdown()
		}
		return nil, err
	}
	b.embedded = embedded
	return b, nil
}

// ConnectNATS connects to an existing NATS server. The connection retries
// forever; while it is down Publish and Subscribe return ErrUnavailable.
func ConnectNATS(url string, reconnectWait time.Duration) (*NATS, error) {
	if reconnectWait <= 0 {
		reconnectWait = 100 * time.Millisecond
	}

	b := &NATS{subs: make(map[*natsSubscription]struct{})}

	conn, err := natsgo.Connect(url,
		natsgo.Name("buddichat"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(reconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			logging.Warn().Err(err).Msg("NATS disconnected")
			b.dropSubscriptions()
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		natsgo.ErrorHandler(func(_ *natsgo.Conn, sub *natsgo.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logging.Error().Err(err).Str("subject", subject).Msg("NATS error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	b.conn = conn
	return b, nil
}

// Publish sends data on subject channel.
func (b *NATS) Publish(_ context.Context, channel string, data []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	if !b.conn.IsConnected() {
		return fmt.Errorf("%w: NATS not connected", ErrUnavailable)
	}
	if err := b.conn.Publish(channel, data); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Subscribe subscribes to subject channel. The returned stream is closed on
// disconnect even though the client reconnects on its own, so the caller
// learns that messages may have been missed.
func (b *NATS) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	if !b.conn.IsConnected() {
		return nil, fmt.Errorf("%w: NATS not connected", ErrUnavailable)
	}

	in := make(chan *natsgo.Msg, subscriptionBuffer)
	sub, err := b.conn.ChanSubscribe(channel, in)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %v", ErrUnavailable, channel, err)
	}

	s := &natsSubscription{
		sub:  sub,
		in:   in,
		out:  make(chan []byte, subscriptionBuffer),
		done: make(chan struct{}),
		exit: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = sub.Unsubscribe()
		return nil, ErrClosed
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.forward(ctx)
	go func() {
		<-s.exit
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
	}()

	return s.out, nil
}

// dropSubscriptions ends every active subscription stream.
func (b *NATS) dropSubscriptions() {
	b.mu.Lock()
	subs := make([]*natsSubscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

// Close ends all subscriptions, drains the connection and stops the
// embedded server if one was started.
func (b *NATS) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.dropSubscriptions()
	b.conn.Close()
	if b.embedded != nil {
		b.embedded.Shutdown()
	}
	return nil
}

// IsConnected reports whether the client currently has a server connection.
func (b *NATS) IsConnected() bool {
	return b.conn.IsConnected()
}

func (b *NATS) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// natsSubscription forwards messages from a NATS channel subscription to
// the caller's stream. Only forward closes out.
type natsSubscription struct {
	sub  *natsgo.Subscription
	in   chan *natsgo.Msg
	out  chan []byte
	done chan struct{}
	exit chan struct{}
	once sync.Once
}

func (s *natsSubscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *natsSubscription) forward(ctx context.Context) {
	defer func() {
		_ = s.sub.Unsubscribe()
		close(s.out)
		close(s.exit)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg := <-s.in:
			select {
			case s.out <- msg.Data:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}
}
