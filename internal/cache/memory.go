// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/buddichat/internal/chat"
	"github.com/tomtom215/buddichat/internal/metrics"
)

// roomEntry is one room's window in the LRU list.
type roomEntry struct {
	roomID    string
	messages  []chat.Message
	prev      *roomEntry
	next      *roomEntry
	expiresAt time.Time
}

// MemoryStore is an in-process RecentStore. Rooms are kept in a
// least-recently-used list bounded by maxRooms; each room's window is
// bounded by maxMessages and expires ttl after its last append.
//
// The list uses sentinel head/tail nodes: head.next is the most recently
// written room, tail.prev the least.
type MemoryStore struct {
	mu sync.Mutex

	maxRooms    int
	maxMessages int
	ttl         time.Duration
	now         func() time.Time

	rooms map[string]*roomEntry
	head  *roomEntry
	tail  *roomEntry
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(maxRooms, maxMessages int, ttl time.Duration) *MemoryStore {
	if maxRooms <= 0 {
		maxRooms = 10000
	}
	if maxMessages <= 0 {
		maxMessages = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	s := &MemoryStore{
		maxRooms:    maxRooms,
		maxMessages: maxMessages,
		ttl:         ttl,
		now:         time.Now,
		rooms:       make(map[string]*roomEntry),
		head:        &roomEntry{},
		tail:        &roomEntry{},
	}
	s.head.next = s.tail
	s.tail.prev = s.head
	return s
}

// WithClock replaces time.Now. Used by tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Append adds messages to the room's window.
func (s *MemoryStore) Append(_ context.Context, roomID string, messages []chat.Message) error {
	if len(messages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, exists := s.rooms[roomID]
	if exists && now.After(entry.expiresAt) {
		entry.messages = nil
	}
	if !exists {
		entry = &roomEntry{roomID: roomID}
		s.addToFront(entry)
		s.rooms[roomID] = entry
	} else {
		s.moveToFront(entry)
	}

	combined := append(entry.messages, messages...)
	if len(combined) > s.maxMessages {
		// Copy so the trimmed prefix can be collected.
		trimmed := make([]chat.Message, s.maxMessages)
		copy(trimmed, combined[len(combined)-s.maxMessages:])
		combined = trimmed
	}
	entry.messages = combined
	entry.expiresAt = now.Add(s.ttl)

	for len(s.rooms) > s.maxRooms {
		s.evictOldest()
	}
	return nil
}

// Recent returns a copy of the room's window.
func (s *MemoryStore) Recent(_ context.Context, roomID string) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.rooms[roomID]
	if !exists {
		metrics.CacheReads.WithLabelValues("miss").Inc()
		return []chat.Message{}, nil
	}
	if s.now().After(entry.expiresAt) {
		s.removeEntry(entry)
		metrics.CacheReads.WithLabelValues("miss").Inc()
		return []chat.Message{}, nil
	}

	metrics.CacheReads.WithLabelValues("hit").Inc()
	out := make([]chat.Message, len(entry.messages))
	copy(out, entry.messages)
	return out, nil
}

// CleanupExpired removes all expired rooms and returns how many were removed.
func (s *MemoryStore) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for entry := s.tail.prev; entry != s.head; {
		prev := entry.prev
		if now.After(entry.expiresAt) {
			s.removeEntry(entry)
			removed++
		}
		entry = prev
	}
	return removed
}

// Len returns the number of rooms held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// Internal methods (must be called with lock held)

func (s *MemoryStore) addToFront(entry *roomEntry) {
	entry.prev = s.head
	entry.next = s.head.next
	s.head.next.prev = entry
	s.head.next = entry
}

func (s *MemoryStore) moveToFront(entry *roomEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	s.addToFront(entry)
}

func (s *MemoryStore) removeEntry(entry *roomEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(s.rooms, entry.roomID)
}

func (s *MemoryStore) evictOldest() {
	oldest := s.tail.prev
	if oldest == s.head {
		return
	}
	s.removeEntry(oldest)
	metrics.CacheEvictions.Inc()
}
