// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/buddichat/internal/chat"
	"github.com/tomtom215/buddichat/internal/logging"
	"github.com/tomtom215/buddichat/internal/metrics"
	"github.com/tomtom215/buddichat/internal/validation"
)

// clientIDCounter orders clients for deterministic iteration.
var clientIDCounter atomic.Uint64

// RateLimiter admits or rejects inbound messages per user.
type RateLimiter interface {
	Allow(userID string) bool
}

// RoomAuthorizer decides whether a role may join or post to a room.
type RoomAuthorizer interface {
	Authorize(role, roomID, action string) bool
}

// Ingestor accepts messages for batching.
type Ingestor interface {
	Enqueue(msg chat.Message) error
}

// ClientConfig configures a single connection.
type ClientConfig struct {
	WriteWait      time.Duration
	MaxMessageSize int64
	SendQueueSize  int
}

// DefaultClientConfig returns the default connection settings.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteWait:      10 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendQueueSize:  256,
	}
}

// session is what a client needs from the rest of the server.
type session struct {
	hub     *Hub
	limiter RateLimiter
	ingest  Ingestor
	authz   RoomAuthorizer
	now     func() time.Time
}

// allowed reports whether the session's authorizer permits action. A nil
// authorizer permits everything.
func (s *session) allowed(role, roomID, action string) bool {
	return s.authz == nil || s.authz.Authorize(role, roomID, action)
}

// Client is one authenticated WebSocket connection. Exactly one goroutine
// reads from conn and exactly one writes to it; everything else reaches the
// socket through the send queue or Close.
type Client struct {
	id           uint64
	connectionID string
	userID       string
	role         string
	expiresAt    time.Time

	conn    *websocket.Conn
	session *session
	config  ClientConfig
	ctx     context.Context

	send chan []byte
	done chan struct{}

	closeOnce sync.Once
	closeCode int
	closeText string
	closeLast []byte

	alive      atomic.Bool
	lastPongAt atomic.Int64

	// expiryMu orders arming the expiry timer before the timer's own
	// callback reads it through closeWith.
	expiryMu sync.Mutex
	expiry   *time.Timer
}

func newClient(conn *websocket.Conn, s *session, cfg ClientConfig, connectionID, userID, role string, expiresAt time.Time) *Client {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = DefaultClientConfig().SendQueueSize
	}
	c := &Client{
		id:           clientIDCounter.Add(1),
		connectionID: connectionID,
		userID:       userID,
		role:         role,
		expiresAt:    expiresAt,
		conn:         conn,
		session:      s,
		config:       cfg,
		ctx:          logging.ContextWithConnection(context.Background(), connectionID, userID),
		send:         make(chan []byte, cfg.SendQueueSize),
		done:         make(chan struct{}),
	}
	c.markAlive(s.now())
	if !expiresAt.IsZero() {
		c.expiryMu.Lock()
		c.expiry = time.AfterFunc(expiresAt.Sub(s.now()), c.expire)
		c.expiryMu.Unlock()
	}
	return c
}

// ID returns the process-local ordering ID.
func (c *Client) ID() uint64 { return c.id }

// ConnectionID returns the connection identifier.
func (c *Client) ConnectionID() string { return c.connectionID }

// UserID returns the authenticated user.
func (c *Client) UserID() string { return c.userID }

// Alive reports whether the last liveness probe was answered.
func (c *Client) Alive() bool { return c.alive.Load() }

// LastPongAt returns when the client last proved it was alive.
func (c *Client) LastPongAt() time.Time {
	return time.UnixMilli(c.lastPongAt.Load())
}

// Done is closed once the client starts closing.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) markAlive(now time.Time) {
	c.alive.Store(true)
	c.lastPongAt.Store(now.UnixMilli())
}

// enqueue queues a frame without blocking. It reports false if the queue
// is full or the client is closing.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// sendFrame encodes and queues a frame for this client only.
func (c *Client) sendFrame(frameType string, payload interface{}) {
	frame, err := EncodeFrame(frameType, payload)
	if err != nil {
		logging.Ctx(c.ctx).Error().Err(err).Str("type", frameType).Msg("Failed to encode frame")
		return
	}
	if !c.enqueue(frame) {
		metrics.WSFramesDropped.Inc()
		return
	}
	metrics.WSMessagesSent.WithLabelValues(frameType).Inc()
}

// SendError queues an error frame.
func (c *Client) SendError(code, message string) {
	metrics.RecordErrorFrame(code)
	c.sendFrame(TypeError, ErrorPayload{Code: code, Message: message})
}

// Close starts closing the connection with code. It is safe to call more
// than once and from any goroutine; only the first call has effect.
func (c *Client) Close(code int, text string) {
	c.closeWith(code, text, nil)
}

// closeWith closes after writing last, if not nil, as the final data frame.
func (c *Client) closeWith(code int, text string, last []byte) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		c.closeLast = last
		c.expiryMu.Lock()
		if c.expiry != nil {
			c.expiry.Stop()
		}
		c.expiryMu.Unlock()
		if reason := closeReason(code); reason != "" {
			metrics.RecordClosure(reason)
		}
		close(c.done)
	})
}

func closeReason(code int) string {
	switch code {
	case CloseSuperseded:
		return "superseded"
	case CloseEvicted:
		return "evicted"
	case CloseSessionExpired:
		return "session_expired"
	case CloseGoingAway:
		return "shutdown"
	default:
		return ""
	}
}

// Ping sends a WebSocket ping control frame.
func (c *Client) Ping() error {
	if c.conn == nil {
		return errors.New("client has no connection")
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteWait))
}

// start runs the write loop in a new goroutine and the read loop in the
// caller's goroutine until the connection ends.
func (c *Client) start() {
	go c.writePump()
	c.readPump()
}

// expire tells the client its credential has lapsed and closes it.
func (c *Client) expire() {
	frame, err := EncodeFrame(TypeSessionExpired, SessionExpiredPayload{ExpiredAt: c.expiresAt})
	if err != nil {
		frame = nil
	}
	logging.NewSecurityLogger().LogSessionExpired(c.userID, c.connectionID, CloseSessionExpired)
	c.closeWith(CloseSessionExpired, "session expired", frame)
}

func (c *Client) readPump() {
	defer func() {
		c.session.hub.Unregister(c)
		c.Close(CloseNormal, "")
	}()

	if c.config.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.config.MaxMessageSize)
	}
	c.conn.SetPongHandler(func(string) error {
		c.markAlive(c.session.now())
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logging.Ctx(c.ctx).Debug().Err(err).Msg("WebSocket read ended")
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.SendError(CodeMalformedMessage, "binary frames are not supported")
			continue
		}
		c.handleFrame(data)
	}
}

// writePump writes queued frames until the client closes, then writes the
// close frame and closes the socket.
func (c *Client) writePump() {
	defer func() {
		_ = c.conn.Close() // best-effort; unblocks readPump
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				logging.Ctx(c.ctx).Debug().Err(err).Msg("WebSocket write failed")
				c.Close(CloseNormal, "")
				return
			}
		case <-c.done:
			if c.closeLast != nil {
				_ = c.write(websocket.TextMessage, c.closeLast)
			}
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.config.WriteWait))
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *Client) handleFrame(data []byte) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		metrics.WSMessagesReceived.WithLabelValues("malformed").Inc()
		c.SendError(CodeMalformedMessage, "frame must be a JSON object with a type")
		return
	}

	switch env.Type {
	case TypePing:
		metrics.WSMessagesReceived.WithLabelValues(TypePing).Inc()
		c.markAlive(c.session.now())
		c.sendFrame(TypePong, nil)
	case TypeMessage:
		metrics.WSMessagesReceived.WithLabelValues(TypeMessage).Inc()
		c.handleMessage(env)
	case TypeJoin, TypeLeave:
		metrics.WSMessagesReceived.WithLabelValues(env.Type).Inc()
		c.handleMembership(env)
	default:
		metrics.WSMessagesReceived.WithLabelValues("unknown").Inc()
		c.SendError(CodeUnknownType, "unknown frame type")
	}
}

func (c *Client) handleMessage(env Envelope) {
	var payload MessagePayload
	if err := DecodePayload(env, &payload); err != nil {
		c.SendError(CodeMalformedMessage, "message payload is not valid JSON")
		return
	}

	if !c.session.limiter.Allow(c.userID) {
		logging.Ctx(c.ctx).Debug().Str("room_id", payload.RoomID).Msg("Rate limit exceeded")
		c.SendError(CodeRateLimitExceeded, "Too many messages sent. Please slow down.")
		return
	}

	if verr := validation.ValidateStruct(&payload); verr != nil {
		fe := verr.ToFrameError()
		c.SendError(fe.Code, fe.Message)
		return
	}

	if !c.session.allowed(c.role, payload.RoomID, "send") {
		c.SendError(CodeForbidden, "not allowed to post in this room")
		return
	}

	msg := chat.NewMessage(payload.RoomID, c.userID, payload.Content, payload.Attachment, payload.ClientTimestamp, c.session.now())
	c.session.hub.Join(c.userID, payload.RoomID)

	if err := c.session.ingest.Enqueue(msg); err != nil {
		logging.Ctx(c.ctx).Warn().Err(err).Str("room_id", msg.RoomID).Msg("Message not accepted for batching")
	}
}

func (c *Client) handleMembership(env Envelope) {
	var payload RoomPayload
	if err := DecodePayload(env, &payload); err != nil {
		c.SendError(CodeMalformedMessage, "room payload is not valid JSON")
		return
	}
	if verr := validation.ValidateStruct(&payload); verr != nil {
		fe := verr.ToFrameError()
		c.SendError(fe.Code, fe.Message)
		return
	}

	if env.Type == TypeJoin {
		if !c.session.allowed(c.role, payload.RoomID, "join") {
			c.SendError(CodeForbidden, "not allowed to join this room")
			return
		}
		c.session.hub.Join(c.userID, payload.RoomID)
		c.sendFrame(TypeJoined, payload)
		return
	}
	c.session.hub.Leave(c.userID, payload.RoomID)
	c.sendFrame(TypeLeft, payload)
}
