// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/buddichat/internal/chat"
	"github.com/tomtom215/buddichat/internal/logging"
	"github.com/tomtom215/buddichat/internal/metrics"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// HubConfig configures the registry and the dispatch loop.
type HubConfig struct {
	// DispatchQueueSize bounds batches waiting for the dispatch loop.
	DispatchQueueSize int

	// RoomFiltering delivers a batch only to members of its room. When
	// false every local client receives every batch.
	RoomFiltering bool
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		DispatchQueueSize: 1024,
		RoomFiltering:     true,
	}
}

// Hub is the connection registry for this process. It holds at most one
// client per user and the room membership index, and it runs the loop that
// writes received batches to local clients.
//
// All registry state is guarded by mu. ForEach and dispatch iterate a
// snapshot taken under the read lock, so client writes never happen while
// the lock is held.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]struct{} // roomID -> userIDs
	joined  map[string]map[string]struct{} // userID -> roomIDs

	deliveries chan chat.Batch
	config     HubConfig

	dropLog rate.Sometimes
}

// NewHub creates a Hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.DispatchQueueSize <= 0 {
		cfg.DispatchQueueSize = DefaultHubConfig().DispatchQueueSize
	}
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]struct{}),
		joined:     make(map[string]map[string]struct{}),
		deliveries: make(chan chat.Batch, cfg.DispatchQueueSize),
		config:     cfg,
		dropLog:    rate.Sometimes{Interval: 10 * time.Second},
	}
}

// Add registers client as the live connection of userID. A previous
// connection for the same user is closed with CloseSuperseded. Room
// memberships belong to the user and survive the replacement.
func (h *Hub) Add(userID string, client *Client) {
	h.mu.Lock()
	previous := h.clients[userID]
	h.clients[userID] = client
	total := len(h.clients)
	h.mu.Unlock()

	if previous != nil && previous != client {
		previous.Close(CloseSuperseded, "superseded by a newer connection")
		logging.Info().
			Str("user_id", userID).
			Str("connection_id", client.ConnectionID()).
			Str("previous_connection_id", previous.ConnectionID()).
			Msg("WebSocket connection superseded")
		return
	}

	metrics.WSConnections.Set(float64(total))
	logging.Info().
		Str("user_id", userID).
		Str("connection_id", client.ConnectionID()).
		Int("total_clients", total).
		Msg("WebSocket client connected")
}

// Remove drops userID and its room memberships from the registry and
// returns the removed client, if any. The client is not closed.
func (h *Hub) Remove(userID string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[userID]
	if !ok {
		return nil
	}
	h.removeLocked(userID)
	return client
}

// Unregister removes client only if it is still the live connection of its
// user. A superseded client ending its read loop never removes its
// replacement.
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	current, ok := h.clients[client.UserID()]
	if !ok || current != client {
		h.mu.Unlock()
		return false
	}
	h.removeLocked(client.UserID())
	total := len(h.clients)
	h.mu.Unlock()

	logging.Info().
		Str("user_id", client.UserID()).
		Str("connection_id", client.ConnectionID()).
		Int("total_clients", total).
		Msg("WebSocket client disconnected")
	return true
}

// removeLocked must be called with mu held for writing.
func (h *Hub) removeLocked(userID string) {
	delete(h.clients, userID)
	for roomID := range h.joined[userID] {
		members := h.rooms[roomID]
		delete(members, userID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(h.joined, userID)
	metrics.WSConnections.Set(float64(len(h.clients)))
}

// Get returns the live client of userID.
func (h *Hub) Get(userID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[userID]
	return client, ok
}

// ForEach calls fn for every registered client. fn runs on a snapshot
// taken under the lock and may call back into the hub.
func (h *Hub) ForEach(fn func(userID string, client *Client)) {
	for _, client := range h.snapshot() {
		fn(client.UserID(), client)
	}
}

// snapshot returns every client ordered by ID.
func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].ID() < clients[j].ID()
	})
	return clients
}

// Join adds userID to roomID. It reports false if the user is not
// registered or was already a member.
func (h *Hub) Join(userID, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[userID]; !ok {
		return false
	}
	if _, ok := h.joined[userID][roomID]; ok {
		return false
	}

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[roomID] = members
	}
	members[userID] = struct{}{}

	rooms, ok := h.joined[userID]
	if !ok {
		rooms = make(map[string]struct{})
		h.joined[userID] = rooms
	}
	rooms[roomID] = struct{}{}
	return true
}

// Leave removes userID from roomID. It reports whether the user was a member.
func (h *Hub) Leave(userID, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[userID]; !ok {
		return false
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
	delete(h.joined[userID], roomID)
	if len(h.joined[userID]) == 0 {
		delete(h.joined, userID)
	}
	return true
}

// Members returns the sorted user IDs joined to roomID.
func (h *Hub) Members(roomID string) []string {
	h.mu.RLock()
	members := make([]string, 0, len(h.rooms[roomID]))
	for userID := range h.rooms[roomID] {
		members = append(members, userID)
	}
	h.mu.RUnlock()

	sort.Strings(members)
	return members
}

// GetClientCount returns the number of registered clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver queues batch for the dispatch loop. It never blocks; when the
// queue is full the batch is dropped.
func (h *Hub) Deliver(batch chat.Batch) {
	select {
	case h.deliveries <- batch:
	default:
		metrics.RecordBatchDropped("dispatch_full")
		h.dropLog.Do(func() {
			logging.Warn().
				Str("room_id", batch.RoomID).
				Str("batch_id", batch.ID).
				Msg("Dispatch queue full, dropping batch")
		})
	}
}

// RunWithContext runs the dispatch loop until ctx is done, then closes
// every client with CloseGoingAway.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case batch := <-h.deliveries:
			h.dispatch(batch)
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

// String implements fmt.Stringer for suture logging.
func (h *Hub) String() string {
	return "websocket-hub"
}

// dispatch encodes batch once and queues it on every target client.
func (h *Hub) dispatch(batch chat.Batch) {
	frame, err := EncodeBatch(batch)
	if err != nil {
		logging.Error().Err(err).Str("batch_id", batch.ID).Msg("Failed to encode batch frame")
		return
	}

	targets := h.targets(batch.RoomID)
	dropped := 0
	for _, client := range targets {
		if !client.enqueue(frame) {
			dropped++
		}
	}
	metrics.WSMessagesSent.WithLabelValues(TypeMessageBatch).Add(float64(len(targets) - dropped))

	if dropped > 0 {
		metrics.WSFramesDropped.Add(float64(dropped))
		h.dropLog.Do(func() {
			logging.Warn().
				Str("room_id", batch.RoomID).
				Int("dropped", dropped).
				Int("targets", len(targets)).
				Msg("Client send queue full, dropping frames")
		})
	}
}

// targets returns the clients that should receive a batch for roomID.
func (h *Hub) targets(roomID string) []*Client {
	if !h.config.RoomFiltering {
		return h.snapshot()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.rooms[roomID]
	clients := make([]*Client, 0, len(members))
	for userID := range members {
		if client, ok := h.clients[userID]; ok {
			clients = append(clients, client)
		}
	}
	return clients
}

// logGracefulShutdown closes every client and logs the shutdown. ctx.Err()
// is not logged as an error since cancellation is the expected path.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clients := h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clients).
		Msg("WebSocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// closeAllClients closes and unregisters every client in ID order.
func (h *Hub) closeAllClients() int {
	clients := h.snapshot()
	for _, client := range clients {
		h.Unregister(client)
		client.Close(CloseGoingAway, "server shutdown")
	}
	return len(clients)
}
