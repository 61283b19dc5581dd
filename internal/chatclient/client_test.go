// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package chatclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/tomtom215/buddichat/internal/auth"
	"github.com/tomtom215/buddichat/internal/batch"
	"github.com/tomtom215/buddichat/internal/chat"
	"github.com/tomtom215/buddichat/internal/logging"
	"github.com/tomtom215/buddichat/internal/ratelimit"
	chatws "github.com/tomtom215/buddichat/internal/websocket"
)

const testSecret = "chatclient-test-secret-of-sufficient-length"

func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

type chatServer struct {
	url      string
	hub      *chatws.Hub
	verifier *auth.JWTVerifier
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()

	hub := chatws.NewHub(chatws.DefaultHubConfig())
	verifier, err := auth.NewJWTVerifier(testSecret)
	if err != nil {
		t.Fatal(err)
	}

	b, err := batch.New(batch.SinkFunc(func(_ context.Context, bt chat.Batch) error {
		hub.Deliver(bt)
		return nil
	}), batch.Config{MaxBatchSize: 50, FlushInterval: 10 * time.Millisecond, QueueSize: 64, SinkTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = hub.Serve(ctx) }()
	go func() { defer wg.Done(); _ = b.Serve(ctx) }()

	handler := chatws.NewHandler(hub, auth.NewAuthenticator(verifier, "token"),
		ratelimit.New(time.Minute, 60), b, chatws.HandlerConfig{Client: chatws.DefaultClientConfig()})
	srv := httptest.NewServer(handler)

	t.Cleanup(func() {
		cancel()
		wg.Wait()
		srv.Close()
	})

	return &chatServer{
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		hub:      hub,
		verifier: verifier,
	}
}

func (s *chatServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := s.verifier.Issue(userID, "user", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

// transitions records state changes.
type transitions struct {
	mu  sync.Mutex
	log []State
}

func (tr *transitions) record(_, to State) {
	tr.mu.Lock()
	tr.log = append(tr.log, to)
	tr.mu.Unlock()
}

func (tr *transitions) count(s State) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n := 0
	for _, st := range tr.log {
		if st == s {
			n++
		}
	}
	return n
}

func testConfig(url, token string, tr *transitions) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Token = token
	cfg.BaseDelay = 10 * time.Millisecond
	cfg.MaxJitter = 5 * time.Millisecond
	cfg.MaxAttempts = 3
	if tr != nil {
		cfg.OnStateChange = tr.record
	}
	return cfg
}

func startClient(t *testing.T, cfg Config) (*Client, <-chan error, context.CancelFunc) {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	t.Cleanup(cancel)
	return c, errCh, cancel
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func nextFrame(t *testing.T, c *Client, frameType string) chatws.Envelope {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case env, ok := <-c.Frames():
			if !ok {
				t.Fatalf("frames closed waiting for %s", frameType)
			}
			if env.Type == frameType {
				return env
			}
		case <-timeout:
			t.Fatalf("no %s frame", frameType)
		}
	}
}

func isMember(hub *chatws.Hub, roomID, userID string) bool {
	for _, m := range hub.Members(roomID) {
		if m == userID {
			return true
		}
	}
	return false
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"http scheme", Config{URL: "http://localhost/ws"}},
		{"unparseable", Config{URL: "ws://[::1"}},
		{"negative attempts", Config{URL: "ws://localhost/ws", MaxAttempts: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestClient_SendAndReceive(t *testing.T) {
	srv := newChatServer(t)
	c, errCh, cancel := startClient(t, testConfig(srv.url, srv.token(t, "alice"), nil))

	if err := c.Join("lobby"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	waitUntil(t, "connected", func() bool { return c.State() == StateConnected })
	waitUntil(t, "membership", func() bool { return isMember(srv.hub, "lobby", "alice") })

	if err := c.Send("lobby", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	env := nextFrame(t, c, chatws.TypeMessageBatch)
	var batch chatws.BatchPayload
	if err := chatws.DecodePayload(env, &batch); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if batch.RoomID != "lobby" || len(batch.Messages) != 1 || batch.Messages[0].Content != "hello" {
		t.Errorf("unexpected batch %+v", batch)
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %v after Run", c.State())
	}
}

func TestClient_SendWhileDisconnected(t *testing.T) {
	c, err := New(Config{URL: "ws://127.0.0.1:1/ws"})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Send("lobby", "hi"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send = %v, want ErrNotConnected", err)
	}
	if got := c.Rooms(); len(got) != 1 || got[0] != "lobby" {
		t.Errorf("Rooms = %v, want [lobby]", got)
	}
}

func TestClient_ReconnectsAndRejoins(t *testing.T) {
	srv := newChatServer(t)
	tr := &transitions{}
	c, _, _ := startClient(t, testConfig(srv.url, srv.token(t, "bob"), tr))

	_ = c.Join("general")
	_ = c.Join("random")
	waitUntil(t, "initial join", func() bool { return isMember(srv.hub, "random", "bob") })

	evicted := srv.hub.Remove("bob")
	if evicted == nil {
		t.Fatal("bob not registered")
	}
	evicted.Close(chatws.CloseEvicted, "liveness timeout")

	waitUntil(t, "second connect", func() bool { return tr.count(StateConnected) >= 2 })
	waitUntil(t, "rejoin", func() bool {
		return isMember(srv.hub, "general", "bob") && isMember(srv.hub, "random", "bob")
	})

	if err := c.Leave("random"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	waitUntil(t, "leave", func() bool { return !isMember(srv.hub, "random", "bob") })
	if got := c.Rooms(); len(got) != 1 || got[0] != "general" {
		t.Errorf("Rooms = %v, want [general]", got)
	}
}

func TestClient_TerminalCloseStopsRetrying(t *testing.T) {
	srv := newChatServer(t)
	tr := &transitions{}
	_, errCh, _ := startClient(t, testConfig(srv.url, "not-a-valid-token", tr))

	var err error
	select {
	case err = <-errCh:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}

	var closeErr *CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("Run = %v, want *CloseError", err)
	}
	if closeErr.Code != auth.CloseInvalidCredential {
		t.Errorf("close code = %d, want %d", closeErr.Code, auth.CloseInvalidCredential)
	}
	if n := tr.count(StateConnecting); n != 1 {
		t.Errorf("connect attempts = %d, want 1", n)
	}
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	tr := &transitions{}
	_, errCh, _ := startClient(t, testConfig("ws://"+addr+"/ws", "x", tr))

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrMaxAttempts) {
			t.Fatalf("Run = %v, want ErrMaxAttempts", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not give up")
	}
	if n := tr.count(StateConnecting); n != 4 {
		t.Errorf("connect attempts = %d, want 4 (initial + 3 retries)", n)
	}
}

func TestClient_PongTimeoutDropsConnection(t *testing.T) {
	upgrader := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cfg := testConfig("ws"+strings.TrimPrefix(srv.URL, "http"), "x", nil)
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.PongTimeout = 30 * time.Millisecond
	cfg.MaxAttempts = 0

	_, errCh, _ := startClient(t, cfg)
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrMaxAttempts) {
			t.Errorf("Run = %v, want ErrMaxAttempts", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("silent server was not detected")
	}
}

func TestClient_HeartbeatKeepsConnection(t *testing.T) {
	srv := newChatServer(t)
	tr := &transitions{}
	cfg := testConfig(srv.url, srv.token(t, "carol"), tr)
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.PongTimeout = 500 * time.Millisecond
	c, _, _ := startClient(t, cfg)

	waitUntil(t, "connected", func() bool { return c.State() == StateConnected })
	nextFrame(t, c, chatws.TypePong)
	nextFrame(t, c, chatws.TypePong)

	if n := tr.count(StateConnected); n != 1 {
		t.Errorf("connected %d times, want 1", n)
	}
}

func TestCloseError_Terminal(t *testing.T) {
	tests := []struct {
		code     int
		terminal bool
	}{
		{chatws.CloseNormal, true},
		{chatws.CloseGoingAway, false},
		{chatws.CloseMissingCredential, true},
		{chatws.CloseInvalidCredential, true},
		{chatws.CloseEvicted, false},
		{chatws.CloseSuperseded, true},
		{chatws.CloseSessionExpired, true},
		{ws.CloseAbnormalClosure, false},
	}
	for _, tt := range tests {
		if got := (&CloseError{Code: tt.code}).Terminal(); got != tt.terminal {
			t.Errorf("code %d: Terminal() = %v, want %v", tt.code, got, tt.terminal)
		}
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		State(9):          "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d) = %q, want %q", s, got, want)
		}
	}
}
