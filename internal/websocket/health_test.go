// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package websocket

import (
	"context"
	"testing"
	"time"
)

func TestHealthMonitor_EvictsUnresponsiveClient(t *testing.T) {
	s := newTestServer(t)
	// The test never reads from conn, so pings are never answered.
	conn := s.connect(t, "alice")
	m := NewHealthMonitor(s.hub, time.Hour)

	if n := m.Probe(); n != 0 {
		t.Fatalf("first probe evicted %d, want 0", n)
	}
	c, _ := s.hub.Get("alice")
	if c.Alive() {
		t.Error("client should be marked not alive after a probe")
	}

	if n := m.Probe(); n != 1 {
		t.Fatalf("second probe evicted %d, want 1", n)
	}
	if s.hub.GetClientCount() != 0 {
		t.Error("evicted client still registered")
	}
	if code := readCloseCode(t, conn); code != CloseEvicted {
		t.Errorf("close code = %d, want %d", code, CloseEvicted)
	}
}

func TestHealthMonitor_KeepsResponsiveClient(t *testing.T) {
	s := newTestServer(t)
	conn := s.connect(t, "alice")

	// Reading lets the client's default ping handler answer with a pong.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	m := NewHealthMonitor(s.hub, time.Hour)
	c, _ := s.hub.Get("alice")
	for round := 0; round < 3; round++ {
		if n := m.Probe(); n != 0 {
			t.Fatalf("round %d evicted %d", round, n)
		}
		deadline := time.Now().Add(2 * time.Second)
		for !c.Alive() {
			if time.Now().After(deadline) {
				t.Fatalf("round %d: pong not received", round)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	if s.hub.GetClientCount() != 1 {
		t.Error("responsive client was evicted")
	}
}

func TestHealthMonitor_ApplicationPingCountsAsAlive(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	c := createTestClient(hub, "alice", 8)
	hub.Add("alice", c)
	c.alive.Store(false)

	c.handleFrame([]byte(`{"type":"ping"}`))

	if !c.Alive() {
		t.Error("application ping should mark the client alive")
	}
	if time.Since(c.LastPongAt()) > time.Second {
		t.Errorf("LastPongAt() = %v, want recent", c.LastPongAt())
	}
}

// TestHealthMonitor_ServeEvictsWithinTwoIntervals runs the monitor on its own
// ticker: a silent client is gone within two probe intervals while a client
// that answers pings stays registered.
func TestHealthMonitor_ServeEvictsWithinTwoIntervals(t *testing.T) {
	const interval = 50 * time.Millisecond

	s := newTestServer(t)
	silent := s.connect(t, "alice")
	responsive := s.connect(t, "bob")
	go func() {
		for {
			if _, _, err := responsive.ReadMessage(); err != nil {
				return
			}
		}
	}()

	m := NewHealthMonitor(s.hub, interval)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	started := time.Now()
	go func() { errCh <- m.Serve(ctx) }()
	defer func() {
		cancel()
		<-errCh
	}()

	for {
		if _, ok := s.hub.Get("alice"); !ok {
			break
		}
		if time.Since(started) > 2*interval+100*time.Millisecond {
			t.Fatalf("silent client still registered after %v", time.Since(started))
		}
		time.Sleep(5 * time.Millisecond)
	}

	if code := readCloseCode(t, silent); code != CloseEvicted {
		t.Errorf("close code = %d, want %d", code, CloseEvicted)
	}

	time.Sleep(3 * interval)
	if _, ok := s.hub.Get("bob"); !ok {
		t.Error("responsive client was evicted")
	}
}

func TestHealthMonitor_ServeStopsOnCancel(t *testing.T) {
	m := NewHealthMonitor(NewHub(DefaultHubConfig()), 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not stop")
	}
}
