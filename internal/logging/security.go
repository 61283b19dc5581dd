// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package logging

import (
	"strings"
	"unicode"

	"github.com/rs/zerolog"
)

// SecurityEvent is an authentication-relevant event on the WebSocket
// endpoint.
type SecurityEvent struct {
	// Event is the event name, e.g. "handshake_rejected", "session_expired".
	Event        string
	UserID       string
	ConnectionID string
	RemoteAddr   string
	Origin       string
	Success      bool
	// Reason is a short machine-readable cause, e.g. "missing", "invalid".
	Reason    string
	CloseCode int
	Error     string
}

// SecurityLogger writes security events with sensitive values masked.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger creates a security logger on the global logger.
func NewSecurityLogger() *SecurityLogger {
	return &SecurityLogger{
		logger: with().Str("component", "auth").Logger(),
	}
}

// NewSecurityLoggerWithLogger creates a security logger on logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// LogEvent logs event after sanitizing every free-form field.
func (l *SecurityLogger) LogEvent(event *SecurityEvent) {
	e := l.logger.Info()
	if !event.Success {
		e = l.logger.Warn()
	}
	e = e.Str("event", event.Event)

	if event.Success {
		e = e.Str("status", "success")
	} else {
		e = e.Str("status", "failed")
	}
	if event.UserID != "" {
		e = e.Str("user_id", SanitizeUserID(event.UserID))
	}
	if event.ConnectionID != "" {
		e = e.Str("connection_id", SanitizeValue("connection_id", event.ConnectionID))
	}
	if event.RemoteAddr != "" {
		e = e.Str("remote_addr", SanitizeValue("remote_addr", event.RemoteAddr))
	}
	if event.Origin != "" {
		e = e.Str("origin", SanitizeValue("origin", event.Origin))
	}
	if event.Reason != "" {
		e = e.Str("reason", event.Reason)
	}
	if event.CloseCode != 0 {
		e = e.Int("close_code", event.CloseCode)
	}
	if event.Error != "" && !event.Success {
		e = e.Str("error", SanitizeError(event.Error))
	}

	e.Msg("")
}

// LogHandshakeRejected logs a WebSocket upgrade closed for a bad credential.
func (l *SecurityLogger) LogHandshakeRejected(reason, remoteAddr, origin string, closeCode int, err error) {
	event := &SecurityEvent{
		Event:      "handshake_rejected",
		RemoteAddr: remoteAddr,
		Origin:     origin,
		Reason:     reason,
		CloseCode:  closeCode,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.LogEvent(event)
}

// LogHandshakeAccepted logs an authenticated WebSocket connection.
func (l *SecurityLogger) LogHandshakeAccepted(userID, connectionID, remoteAddr string) {
	l.LogEvent(&SecurityEvent{
		Event:        "handshake_accepted",
		UserID:       userID,
		ConnectionID: connectionID,
		RemoteAddr:   remoteAddr,
		Success:      true,
	})
}

// LogSessionExpired logs a connection closed because its credential lapsed.
func (l *SecurityLogger) LogSessionExpired(userID, connectionID string, closeCode int) {
	l.LogEvent(&SecurityEvent{
		Event:        "session_expired",
		UserID:       userID,
		ConnectionID: connectionID,
		CloseCode:    closeCode,
		Success:      true,
	})
}

// SanitizeToken masks a token, keeping the first and last 4 characters.
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeUserID masks a user ID for privacy.
// Example: "user-12345678" -> "user...5678"
func SanitizeUserID(userID string) string {
	if userID == "" {
		return ""
	}
	userID = stripControl(userID)
	if len(userID) <= 8 {
		return userID
	}
	return userID[:4] + "..." + userID[len(userID)-4:]
}

// SanitizeError strips control characters, masks bearer tokens and
// truncates the message.
func SanitizeError(err string) string {
	err = stripControl(err)
	if idx := strings.Index(strings.ToLower(err), "bearer "); idx >= 0 {
		err = err[:idx] + "Bearer ***"
	}
	return truncateString(err, 200)
}

// SanitizeValue sanitizes a value based on its key name. Credential-like
// keys are masked; every value has control characters removed so client
// supplied headers cannot forge log lines.
func SanitizeValue(key, value string) string {
	switch strings.ToLower(key) {
	case "token", "access_token", "secret", "authorization", "cookie", "jwt_secret":
		return SanitizeToken(value)
	}
	return truncateString(stripControl(value), 256)
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
