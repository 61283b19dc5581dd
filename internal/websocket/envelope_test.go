// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package websocket

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/buddichat/internal/chat"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"message","payload":{"roomId":"general","content":"hi"}}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	var p MessagePayload
	if err := DecodePayload(env, &p); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if p.RoomID != "general" || p.Content != "hi" {
		t.Errorf("unexpected payload %+v", p)
	}

	for _, in := range []string{``, `[]`, `{"payload":{}}`, `{"type":""}`} {
		if _, err := DecodeEnvelope([]byte(in)); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("DecodeEnvelope(%q) error = %v, want ErrMalformedMessage", in, err)
		}
	}

	if err := DecodePayload(Envelope{Type: TypeJoin}, &RoomPayload{}); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("empty payload error = %v, want ErrMalformedMessage", err)
	}
}

func TestEncodeBatch(t *testing.T) {
	msg := chat.NewMessage("general", "alice", "hi", nil, 0, time.UnixMilli(1700000000000))
	frame, err := EncodeBatch(chat.NewBatch("general", []chat.Message{msg}, time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	s := string(frame)
	for _, want := range []string{`"type":"message_batch"`, `"roomId":"general"`, `"userId":"alice"`, `"timestamp":1700000000000`} {
		if !strings.Contains(s, want) {
			t.Errorf("frame %s missing %s", s, want)
		}
	}
}

func TestEncodeFrame_NoPayload(t *testing.T) {
	frame, err := EncodeFrame(TypePong, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(frame) != `{"type":"pong"}` {
		t.Errorf("EncodeFrame(pong) = %s", frame)
	}
}
