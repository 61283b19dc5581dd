// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger()
	prevLevel := zerolog.GlobalLevel()
	SetLogger(NewTestLogger(&buf))
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() {
		SetLogger(prev)
		zerolog.SetGlobalLevel(prevLevel)
	})
	return &buf
}

func decodeLine(t *testing.T, line string) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(line), &out); err != nil {
		t.Fatalf("invalid log line %q: %v", line, err)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCtx_AddsConnectionFields(t *testing.T) {
	buf := captureLogs(t)

	ctx := ContextWithConnection(context.Background(), "conn-1", "alice")
	ctx = ContextWithRequestID(ctx, "req-9")
	Ctx(ctx).Info().Msg("hello")

	entry := decodeLine(t, strings.TrimSpace(buf.String()))
	if entry["connection_id"] != "conn-1" {
		t.Errorf("connection_id = %v, want conn-1", entry["connection_id"])
	}
	if entry["user_id"] != "alice" {
		t.Errorf("user_id = %v, want alice", entry["user_id"])
	}
	if entry["request_id"] != "req-9" {
		t.Errorf("request_id = %v, want req-9", entry["request_id"])
	}
}

func TestCtx_EmptyContext(t *testing.T) {
	buf := captureLogs(t)

	Ctx(context.Background()).Info().Msg("plain")

	entry := decodeLine(t, strings.TrimSpace(buf.String()))
	if _, ok := entry["connection_id"]; ok {
		t.Error("connection_id should be absent")
	}
}

func TestSlogHandler_RoutesToZerolog(t *testing.T) {
	buf := captureLogs(t)

	logger := slog.New(NewSlogHandler()).With("service", "batcher").WithGroup("suture")
	logger.Warn("service restarted", "attempt", 3)

	entry := decodeLine(t, strings.TrimSpace(buf.String()))
	if entry["level"] != "warn" {
		t.Errorf("level = %v, want warn", entry["level"])
	}
	if entry["message"] != "service restarted" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["service"] != "batcher" {
		t.Errorf("service = %v, want batcher", entry["service"])
	}
	if entry["suture.attempt"] != float64(3) {
		t.Errorf("suture.attempt = %v, want 3", entry["suture.attempt"])
	}
}

func TestSlogHandler_Enabled(t *testing.T) {
	captureLogs(t)
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	h := NewSlogHandler()
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}
