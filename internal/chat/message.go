// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

// Package chat defines the message and batch types that flow from inbound
// connections through batching, the backbone and local delivery.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Attachment kinds accepted on inbound messages.
const (
	AttachmentImage = "image"
	AttachmentVideo = "video"
	AttachmentFile  = "file"
	AttachmentAudio = "audio"
)

// MaxContentLength is the longest accepted message body.
const MaxContentLength = 2000

// Attachment references uploaded media. Upload itself happens elsewhere.
type Attachment struct {
	URL  string `json:"url" validate:"required,url"`
	Type string `json:"type" validate:"required,oneof=image video file audio"`
}

// Message is one accepted chat message.
// ID and Timestamp are assigned by the server on acceptance.
type Message struct {
	ID              string      `json:"id"`
	RoomID          string      `json:"roomId"`
	SenderID        string      `json:"userId"`
	Content         string      `json:"content,omitempty"`
	Attachment      *Attachment `json:"attachment,omitempty"`
	ClientTimestamp int64       `json:"clientTimestamp,omitempty"`

	// Timestamp is the server acceptance time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// NewMessage stamps a message accepted from senderID at now.
func NewMessage(roomID, senderID, content string, attachment *Attachment, clientTS int64, now time.Time) Message {
	return Message{
		ID:              uuid.NewString(),
		RoomID:          roomID,
		SenderID:        senderID,
		Content:         content,
		Attachment:      attachment,
		ClientTimestamp: clientTS,
		Timestamp:       now.UnixMilli(),
	}
}

// Batch is a group of messages for one room, flushed together.
// A batch must not be mutated after it is flushed.
type Batch struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewBatch wraps messages for roomID. The slice is owned by the batch.
func NewBatch(roomID string, messages []Message, now time.Time) Batch {
	return Batch{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Messages:  messages,
		CreatedAt: now,
	}
}

// Len returns the number of messages in the batch.
func (b Batch) Len() int {
	return len(b.Messages)
}
