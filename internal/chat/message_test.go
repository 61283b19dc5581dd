// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package chat

import (
	"testing"
	"time"
)

func TestNewMessage_StampsServerFields(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	m := NewMessage("room-1", "alice", "hi", nil, 42, now)

	if m.ID == "" {
		t.Error("ID should be assigned")
	}
	if m.Timestamp != now.UnixMilli() {
		t.Errorf("Timestamp = %d, want %d", m.Timestamp, now.UnixMilli())
	}
	if m.SenderID != "alice" || m.RoomID != "room-1" {
		t.Errorf("unexpected routing fields: %+v", m)
	}
	if m.ClientTimestamp != 42 {
		t.Errorf("ClientTimestamp = %d, want 42", m.ClientTimestamp)
	}

	other := NewMessage("room-1", "alice", "hi", nil, 42, now)
	if other.ID == m.ID {
		t.Error("message IDs should be unique")
	}
}

func TestNewBatch(t *testing.T) {
	msgs := []Message{{ID: "a"}, {ID: "b"}}
	b := NewBatch("room-1", msgs, time.Now())

	if b.ID == "" {
		t.Error("batch ID should be assigned")
	}
	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}
}
