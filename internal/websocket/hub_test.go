// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package websocket

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/buddichat/internal/chat"
	"github.com/tomtom215/buddichat/internal/logging"
	"github.com/tomtom215/buddichat/internal/metrics"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

type allowAll struct{}

func (allowAll) Allow(string) bool { return true }

type discardIngest struct{}

func (discardIngest) Enqueue(chat.Message) error { return nil }

// createTestClient creates a client without a socket. Frames queued to it
// stay in its send channel.
func createTestClient(hub *Hub, userID string, queue int) *Client {
	s := &session{hub: hub, limiter: allowAll{}, ingest: discardIngest{}, now: time.Now}
	cfg := DefaultClientConfig()
	cfg.SendQueueSize = queue
	return newClient(nil, s, cfg, "conn-"+userID, userID, "user", time.Time{})
}

func runHub(t *testing.T, hub *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func receiveBatch(t *testing.T, c *Client) BatchPayload {
	t.Helper()
	select {
	case frame := <-c.send:
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		if env.Type != TypeMessageBatch {
			t.Fatalf("frame type = %s, want %s", env.Type, TypeMessageBatch)
		}
		var p BatchPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		return p
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.UserID())
		return BatchPayload{}
	}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.send:
		t.Errorf("client %s received unexpected frame %s", c.UserID(), frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func isClosed(c *Client) bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

func testBatch(room string, n int) chat.Batch {
	msgs := make([]chat.Message, n)
	for i := range msgs {
		msgs[i] = chat.NewMessage(room, "sender", fmt.Sprintf("m%d", i), nil, 0, time.Now())
	}
	return chat.NewBatch(room, msgs, time.Now())
}

func TestHub_AddGetRemove(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	a := createTestClient(hub, "alice", 8)

	hub.Add("alice", a)
	if got, ok := hub.Get("alice"); !ok || got != a {
		t.Fatal("Get(alice) did not return the registered client")
	}
	if hub.GetClientCount() != 1 {
		t.Errorf("GetClientCount() = %d, want 1", hub.GetClientCount())
	}

	hub.Join("alice", "general")
	if removed := hub.Remove("alice"); removed != a {
		t.Error("Remove should return the removed client")
	}
	if _, ok := hub.Get("alice"); ok {
		t.Error("alice still registered after Remove")
	}
	if members := hub.Members("general"); len(members) != 0 {
		t.Errorf("memberships not cleared: %v", members)
	}
	if hub.Remove("alice") != nil {
		t.Error("second Remove should return nil")
	}
}

func TestHub_AddSupersedes(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	first := createTestClient(hub, "alice", 8)
	second := createTestClient(hub, "alice", 8)

	hub.Add("alice", first)
	hub.Join("alice", "general")
	hub.Add("alice", second)

	if !isClosed(first) {
		t.Fatal("superseded client was not closed")
	}
	if first.closeCode != CloseSuperseded {
		t.Errorf("close code = %d, want %d", first.closeCode, CloseSuperseded)
	}
	if isClosed(second) {
		t.Error("new client must stay open")
	}

	// The old read loop ending must not remove the replacement.
	if hub.Unregister(first) {
		t.Error("Unregister(superseded) = true, want false")
	}
	if got, _ := hub.Get("alice"); got != second {
		t.Error("replacement was removed")
	}
	if members := hub.Members("general"); len(members) != 1 {
		t.Errorf("memberships should survive replacement, got %v", members)
	}

	if !hub.Unregister(second) {
		t.Error("Unregister(current) = false, want true")
	}
	if hub.GetClientCount() != 0 {
		t.Errorf("GetClientCount() = %d, want 0", hub.GetClientCount())
	}
}

func TestHub_JoinLeave(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	hub.Add("alice", createTestClient(hub, "alice", 8))
	hub.Add("bob", createTestClient(hub, "bob", 8))

	if hub.Join("carol", "general") {
		t.Error("Join for unregistered user should fail")
	}
	if !hub.Join("alice", "general") || !hub.Join("bob", "general") {
		t.Fatal("Join failed")
	}
	if hub.Join("alice", "general") {
		t.Error("second Join should report false")
	}

	members := hub.Members("general")
	if len(members) != 2 || members[0] != "alice" || members[1] != "bob" {
		t.Errorf("Members() = %v, want [alice bob]", members)
	}

	if !hub.Leave("alice", "general") {
		t.Error("Leave failed")
	}
	if hub.Leave("alice", "general") {
		t.Error("second Leave should report false")
	}
	if members := hub.Members("general"); len(members) != 1 || members[0] != "bob" {
		t.Errorf("Members() = %v, want [bob]", members)
	}
}

func TestHub_ForEachSnapshot(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("user-%d", i)
		hub.Add(id, createTestClient(hub, id, 8))
	}

	seen := 0
	hub.ForEach(func(userID string, _ *Client) {
		seen++
		// Mutating the registry from fn must not deadlock.
		hub.Remove(userID)
	})
	if seen != 5 {
		t.Errorf("ForEach visited %d clients, want 5", seen)
	}
	if hub.GetClientCount() != 0 {
		t.Errorf("GetClientCount() = %d, want 0", hub.GetClientCount())
	}
}

func TestHub_DispatchRoomFiltering(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	alice := createTestClient(hub, "alice", 8)
	bob := createTestClient(hub, "bob", 8)
	carol := createTestClient(hub, "carol", 8)
	hub.Add("alice", alice)
	hub.Add("bob", bob)
	hub.Add("carol", carol)
	hub.Join("alice", "general")
	hub.Join("bob", "general")
	hub.Join("carol", "random")
	runHub(t, hub)

	batch := testBatch("general", 3)
	hub.Deliver(batch)

	for _, c := range []*Client{alice, bob} {
		p := receiveBatch(t, c)
		if p.RoomID != "general" || len(p.Messages) != 3 {
			t.Errorf("client %s got room=%s messages=%d", c.UserID(), p.RoomID, len(p.Messages))
		}
		for i, m := range p.Messages {
			if m.Content != fmt.Sprintf("m%d", i) {
				t.Errorf("message %d out of order: %q", i, m.Content)
			}
		}
	}
	expectNothing(t, carol)
}

func TestHub_DispatchWithoutRoomFiltering(t *testing.T) {
	hub := NewHub(HubConfig{RoomFiltering: false})
	alice := createTestClient(hub, "alice", 8)
	carol := createTestClient(hub, "carol", 8)
	hub.Add("alice", alice)
	hub.Add("carol", carol)
	runHub(t, hub)

	hub.Deliver(testBatch("general", 1))

	receiveBatch(t, alice)
	receiveBatch(t, carol)
}

func TestHub_SlowClientDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	slow := createTestClient(hub, "slow", 1)
	fast := createTestClient(hub, "fast", 16)
	hub.Add("slow", slow)
	hub.Add("fast", fast)
	hub.Join("slow", "general")
	hub.Join("fast", "general")
	runHub(t, hub)

	before := testutil.ToFloat64(metrics.WSFramesDropped)
	for i := 0; i < 4; i++ {
		hub.Deliver(testBatch("general", 1))
	}

	for i := 0; i < 4; i++ {
		receiveBatch(t, fast)
	}
	deadline := time.Now().Add(time.Second)
	for testutil.ToFloat64(metrics.WSFramesDropped)-before < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := testutil.ToFloat64(metrics.WSFramesDropped) - before; got != 3 {
		t.Errorf("dropped frames = %v, want 3", got)
	}
	if len(slow.send) != 1 {
		t.Errorf("slow queue = %d, want 1", len(slow.send))
	}
	if isClosed(slow) {
		t.Error("slow client should not be disconnected")
	}
}

func TestHub_DeliverNeverBlocks(t *testing.T) {
	hub := NewHub(HubConfig{DispatchQueueSize: 1, RoomFiltering: true})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Deliver(testBatch("general", 1))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked on a full dispatch queue")
	}
	if len(hub.deliveries) != 1 {
		t.Errorf("queued = %d, want 1", len(hub.deliveries))
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	alice := createTestClient(hub, "alice", 8)
	bob := createTestClient(hub, "bob", 8)
	hub.Add("alice", alice)
	hub.Add("bob", bob)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- hub.RunWithContext(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("RunWithContext() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	for _, c := range []*Client{alice, bob} {
		if !isClosed(c) || c.closeCode != CloseGoingAway {
			t.Errorf("client %s not closed with %d", c.UserID(), CloseGoingAway)
		}
	}
	if hub.GetClientCount() != 0 {
		t.Errorf("GetClientCount() = %d, want 0", hub.GetClientCount())
	}
}

func TestGetShutdownReason(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := getShutdownReason(ctx); got != ShutdownReasonContextCanceled {
		t.Errorf("got %s, want %s", got, ShutdownReasonContextCanceled)
	}

	ctx, cancel = context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	if got := getShutdownReason(ctx); got != ShutdownReasonContextDeadline {
		t.Errorf("got %s, want %s", got, ShutdownReasonContextDeadline)
	}
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	runHub(t, hub)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("user-%d", i%5)
			c := createTestClient(hub, id, 4)
			hub.Add(id, c)
			hub.Join(id, "general")
			hub.Deliver(testBatch("general", 1))
			hub.ForEach(func(string, *Client) {})
			hub.Members("general")
			hub.Unregister(c)
		}(i)
	}
	wg.Wait()
}
