// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"short", "***"},
		{"eyJhbGciOiJIUzI1NiJ9.payload.sig", "eyJh....sig"},
	}
	for _, tt := range tests {
		if got := SanitizeToken(tt.in); got != tt.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeUserID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"u-1", "u-1"},
		{"user-12345678", "user...5678"},
		{"u\n-1", "u-1"},
	}
	for _, tt := range tests {
		if got := SanitizeUserID(tt.in); got != tt.want {
			t.Errorf("SanitizeUserID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeError(t *testing.T) {
	got := SanitizeError("upstream said: Bearer abc.def.ghi")
	if strings.Contains(got, "abc.def") {
		t.Errorf("token leaked: %q", got)
	}
	long := SanitizeError(strings.Repeat("x", 500))
	if len(long) != 203 {
		t.Errorf("len = %d, want 203", len(long))
	}
}

func TestSanitizeValue(t *testing.T) {
	if got := SanitizeValue("token", "eyJhbGciOiJIUzI1NiJ9.payload.sig"); got != "eyJh....sig" {
		t.Errorf("token not masked: %q", got)
	}
	if got := SanitizeValue("origin", "https://evil\r\n{\"level\":\"error\"}"); strings.ContainsAny(got, "\r\n") {
		t.Errorf("control characters kept: %q", got)
	}
	if got := SanitizeValue("origin", "https://chat.example.com"); got != "https://chat.example.com" {
		t.Errorf("SanitizeValue changed a clean value: %q", got)
	}
}

func TestSecurityLogger_LogHandshakeRejected(t *testing.T) {
	captureLogs(t)
	var buf bytes.Buffer
	l := NewSecurityLoggerWithLogger(NewTestLogger(&buf))

	l.LogHandshakeRejected("invalid", "10.0.0.1:5555", "https://chat.example.com", 4002, errors.New("token is expired"))

	out := decodeLine(t, strings.TrimSpace(buf.String()))
	checks := map[string]interface{}{
		"component":  "auth",
		"event":      "handshake_rejected",
		"status":     "failed",
		"reason":     "invalid",
		"close_code": float64(4002),
		"error":      "token is expired",
		"level":      "warn",
	}
	for k, want := range checks {
		if out[k] != want {
			t.Errorf("%s = %v, want %v", k, out[k], want)
		}
	}
}

func TestSecurityLogger_LogSessionExpired(t *testing.T) {
	captureLogs(t)
	var buf bytes.Buffer
	l := NewSecurityLoggerWithLogger(NewTestLogger(&buf))

	l.LogSessionExpired("user-12345678", "conn-1", 4010)

	out := decodeLine(t, strings.TrimSpace(buf.String()))
	if out["user_id"] != "user...5678" {
		t.Errorf("user_id = %v, want masked", out["user_id"])
	}
	if out["status"] != "success" || out["level"] != "info" {
		t.Errorf("unexpected status/level: %v/%v", out["status"], out["level"])
	}
}
