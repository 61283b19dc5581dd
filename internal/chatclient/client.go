// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package chatclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/buddichat/internal/logging"
	chatws "github.com/tomtom215/buddichat/internal/websocket"
)

var (
	// ErrMaxAttempts is returned by Run when every reconnect attempt failed.
	ErrMaxAttempts = errors.New("reconnect attempts exhausted")

	// ErrNotConnected is returned by Send while no connection is open.
	ErrNotConnected = errors.New("not connected")
)

// State is the connection state.
type State int32

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// CloseError is a close frame received from the server.
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("server closed connection: %d %s", e.Code, e.Text)
}

// Terminal reports whether reconnecting with the same credential is futile.
func (e *CloseError) Terminal() bool {
	switch e.Code {
	case chatws.CloseNormal,
		chatws.CloseMissingCredential,
		chatws.CloseInvalidCredential,
		chatws.CloseSuperseded,
		chatws.CloseSessionExpired:
		return true
	}
	return false
}

// Config configures a Client.
type Config struct {
	// URL is the WebSocket endpoint, e.g. ws://localhost:8080/ws.
	URL string

	// Token is sent as the ?token= query parameter.
	Token string

	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxJitter   time.Duration
	MaxAttempts int

	HeartbeatInterval time.Duration
	PongTimeout       time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration

	// FrameBuffer is the capacity of the Frames channel.
	FrameBuffer int

	// OnStateChange is called synchronously on every transition.
	OnStateChange func(from, to State)
}

// DefaultConfig returns the browser client's reconnect policy: 1s base
// delay, 500ms jitter and five attempts, with a 15s heartbeat.
func DefaultConfig() Config {
	return Config{
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		MaxJitter:         500 * time.Millisecond,
		MaxAttempts:       5,
		HeartbeatInterval: 15 * time.Second,
		PongTimeout:       5 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		FrameBuffer:       64,
	}
}

// Client is a reconnecting chat connection. Run drives it; Send, Join and
// Leave may be called from any goroutine.
type Client struct {
	config   Config
	endpoint *url.URL
	dialer   *ws.Dialer
	backoff  backoff.BackOff
	frames   chan chatws.Envelope
	pongs    chan struct{}
	logger   zerolog.Logger

	state atomic.Int32

	mu    sync.Mutex
	conn  *ws.Conn
	rooms map[string]struct{}

	writeMu sync.Mutex
}

// New creates a client. Zero config fields take DefaultConfig values.
func New(cfg Config) (*Client, error) {
	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if endpoint.Scheme != "ws" && endpoint.Scheme != "wss" {
		return nil, fmt.Errorf("url scheme must be ws or wss, got %q", endpoint.Scheme)
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("max attempts must be >= 0, got %d", cfg.MaxAttempts)
	}

	defaults := DefaultConfig()
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaults.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaults.MaxDelay
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaults.PongTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = defaults.FrameBuffer
	}

	return &Client{
		config:   cfg,
		endpoint: endpoint,
		dialer: &ws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		backoff: newReconnectBackOff(cfg),
		frames:  make(chan chatws.Envelope, cfg.FrameBuffer),
		pongs:   make(chan struct{}, 1),
		logger:  logging.WithComponent("chatclient"),
		rooms:   make(map[string]struct{}),
	}, nil
}

// Frames delivers every frame received from the server. It is closed when
// Run returns.
func (c *Client) Frames() <-chan chatws.Envelope {
	return c.frames
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(to State) {
	from := State(c.state.Swap(int32(to)))
	if from == to {
		return
	}
	c.logger.Debug().Stringer("from", from).Stringer("to", to).Msg("Connection state changed")
	if c.config.OnStateChange != nil {
		c.config.OnStateChange(from, to)
	}
}

// Run connects and keeps reconnecting until ctx is canceled, the server
// sends a terminal close code, or MaxAttempts consecutive attempts fail.
// Run must be called at most once.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.frames)
	defer c.setState(StateDisconnected)

	c.backoff.Reset()
	for {
		c.setState(StateConnecting)

		conn, err := c.dial(ctx)
		if err == nil {
			c.backoff.Reset()
			err = c.session(ctx, conn)
		}
		c.setState(StateDisconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		var closeErr *CloseError
		if errors.As(err, &closeErr) && closeErr.Terminal() {
			c.logger.Info().Int("close_code", closeErr.Code).Str("reason", closeErr.Text).Msg("Server ended session")
			return closeErr
		}

		delay := c.backoff.NextBackOff()
		if delay == backoff.Stop {
			return fmt.Errorf("%w: %w", ErrMaxAttempts, err)
		}

		c.logger.Warn().Err(err).Dur("retry_in", delay).Msg("Connection lost, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) dial(ctx context.Context) (*ws.Conn, error) {
	target := *c.endpoint
	q := target.Query()
	if c.config.Token != "" {
		q.Set("token", c.config.Token)
	}
	q.Set("connectionId", uuid.NewString())
	target.RawQuery = q.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, target.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.endpoint.Host, err)
	}
	return conn, nil
}

// session runs one connection until it closes.
func (c *Client) session(ctx context.Context, conn *ws.Conn) error {
	c.mu.Lock()
	c.conn = conn
	rooms := c.roomsLocked()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	c.setState(StateConnected)

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-sessCtx.Done()
		if ctx.Err() != nil {
			msg := ws.FormatCloseMessage(ws.CloseNormalClosure, "client shutdown")
			_ = conn.WriteControl(ws.CloseMessage, msg, time.Now().Add(time.Second))
		}
		_ = conn.Close()
	}()

	for _, room := range rooms {
		if err := c.write(conn, chatws.TypeJoin, chatws.RoomPayload{RoomID: room}); err != nil {
			return fmt.Errorf("rejoin %s: %w", room, err)
		}
	}

	go c.heartbeat(sessCtx, conn)

	return c.readLoop(sessCtx, conn)
}

func (c *Client) readLoop(ctx context.Context, conn *ws.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *ws.CloseError
			if errors.As(err, &ce) {
				return &CloseError{Code: ce.Code, Text: ce.Text}
			}
			return err
		}

		env, err := chatws.DecodeEnvelope(data)
		if err != nil {
			c.logger.Debug().Err(err).Msg("Ignoring malformed frame")
			continue
		}

		if env.Type == chatws.TypePong {
			select {
			case c.pongs <- struct{}{}:
			default:
			}
		}

		select {
		case c.frames <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) heartbeat(ctx context.Context, conn *ws.Conn) {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drop a pong left over from an earlier ping.
		select {
		case <-c.pongs:
		default:
		}

		if err := c.write(conn, chatws.TypePing, nil); err != nil {
			_ = conn.Close()
			return
		}

		timeout := time.NewTimer(c.config.PongTimeout)
		select {
		case <-ctx.Done():
			timeout.Stop()
			return
		case <-c.pongs:
			timeout.Stop()
		case <-timeout.C:
			c.logger.Warn().Dur("timeout", c.config.PongTimeout).Msg("Pong timeout, dropping connection")
			_ = conn.Close()
			return
		}
	}
}

func (c *Client) write(conn *ws.Conn, frameType string, payload interface{}) error {
	frame, err := chatws.EncodeFrame(frameType, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return conn.WriteMessage(ws.TextMessage, frame)
}

func (c *Client) current() *ws.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) roomsLocked() []string {
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Rooms returns the remembered rooms, sorted.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomsLocked()
}

// Send posts a text message to roomID and remembers the room.
func (c *Client) Send(roomID, content string) error {
	return c.SendMessage(chatws.MessagePayload{
		RoomID:          roomID,
		Content:         content,
		ClientTimestamp: time.Now().UnixMilli(),
	})
}

// SendMessage posts payload and remembers its room.
func (c *Client) SendMessage(payload chatws.MessagePayload) error {
	c.remember(payload.RoomID)
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	return c.write(conn, chatws.TypeMessage, payload)
}

// Join subscribes to roomID now if connected and after every reconnect.
func (c *Client) Join(roomID string) error {
	c.remember(roomID)
	if conn := c.current(); conn != nil {
		return c.write(conn, chatws.TypeJoin, chatws.RoomPayload{RoomID: roomID})
	}
	return nil
}

// Leave forgets roomID and leaves it now if connected.
func (c *Client) Leave(roomID string) error {
	c.mu.Lock()
	delete(c.rooms, roomID)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		return c.write(conn, chatws.TypeLeave, chatws.RoomPayload{RoomID: roomID})
	}
	return nil
}

func (c *Client) remember(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}
