// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package websocket

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/buddichat/internal/chat"
)

// ErrMalformedMessage is returned for frames that are not a valid envelope.
var ErrMalformedMessage = errors.New("malformed message")

// Frame types. Inbound: message, ping, join, leave.
// Outbound: message_batch, pong, error, session_expired, joined, left.
const (
	TypeMessage        = "message"
	TypePing           = "ping"
	TypeJoin           = "join"
	TypeLeave          = "leave"
	TypeMessageBatch   = "message_batch"
	TypePong           = "pong"
	TypeError          = "error"
	TypeSessionExpired = "session_expired"
	TypeJoined         = "joined"
	TypeLeft           = "left"
)

// Error codes carried by error frames.
const (
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeMalformedMessage  = "MALFORMED_MESSAGE"
	CodeValidationError   = "VALIDATION_ERROR"
	CodeUnknownType       = "UNKNOWN_TYPE"
	CodeForbidden         = "FORBIDDEN"
)

// Close codes sent when the server ends a connection.
const (
	CloseNormal            = 1000
	CloseGoingAway         = 1001
	CloseMissingCredential = 4001
	CloseInvalidCredential = 4002
	CloseEvicted           = 4008
	CloseSuperseded        = 4009
	CloseSessionExpired    = 4010
)

// Envelope is the frame wrapper for both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessagePayload is the body of an inbound message frame.
type MessagePayload struct {
	RoomID          string           `json:"roomId" validate:"required,roomid"`
	Content         string           `json:"content" validate:"required_without=Attachment,max=2000"`
	Attachment      *chat.Attachment `json:"attachment,omitempty" validate:"omitempty"`
	ClientTimestamp int64            `json:"clientTimestamp,omitempty" validate:"gte=0"`
}

// RoomPayload is the body of join and leave frames and their acknowledgements.
type RoomPayload struct {
	RoomID string `json:"roomId" validate:"required,roomid"`
}

// BatchPayload is the body of an outbound message_batch frame.
type BatchPayload struct {
	RoomID   string         `json:"roomId"`
	Messages []chat.Message `json:"messages"`
}

// ErrorPayload is the body of an outbound error frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SessionExpiredPayload is the body of a session_expired frame.
type SessionExpiredPayload struct {
	ExpiredAt time.Time `json:"expiredAt"`
}

// DecodeEnvelope parses a raw frame. Frames without a type are malformed.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return env, nil
}

// DecodePayload unmarshals an envelope payload into v.
func DecodePayload(env Envelope, v interface{}) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%w: %s frame has no payload", ErrMalformedMessage, env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}

// EncodeFrame encodes an outbound frame.
func EncodeFrame(frameType string, payload interface{}) ([]byte, error) {
	env := struct {
		Type    string      `json:"type"`
		Payload interface{} `json:"payload,omitempty"`
	}{Type: frameType, Payload: payload}
	return json.Marshal(env)
}

// EncodeBatch encodes a message_batch frame for batch.
func EncodeBatch(batch chat.Batch) ([]byte, error) {
	return EncodeFrame(TypeMessageBatch, BatchPayload{RoomID: batch.RoomID, Messages: batch.Messages})
}
