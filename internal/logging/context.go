// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey    contextKey = "request_id"
	connectionIDKey contextKey = "connection_id"
	userIDKey       contextKey = "user_id"
)

// GenerateRequestID returns a new random request ID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID returns a context carrying the HTTP request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithConnection returns a context carrying the identity of a
// WebSocket connection so every log line emitted on its behalf is tagged.
func ContextWithConnection(ctx context.Context, connectionID, userID string) context.Context {
	ctx = context.WithValue(ctx, connectionIDKey, connectionID)
	return context.WithValue(ctx, userIDKey, userID)
}

// ConnectionFromContext returns the connection and user IDs stored by
// ContextWithConnection.
func ConnectionFromContext(ctx context.Context) (connectionID, userID string) {
	connectionID, _ = ctx.Value(connectionIDKey).(string)
	userID, _ = ctx.Value(userIDKey).(string)
	return connectionID, userID
}

// Ctx returns a logger with request_id, connection_id and user_id added when
// the context carries them.
//
//	logging.Ctx(ctx).Warn().Msg("rate limit exceeded")
func Ctx(ctx context.Context) *zerolog.Logger {
	logCtx := Logger().With()

	if id := RequestIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("request_id", id)
	}
	if connID, userID := ConnectionFromContext(ctx); connID != "" {
		logCtx = logCtx.Str("connection_id", connID).Str("user_id", userID)
	}

	l := logCtx.Logger()
	return &l
}

// WithComponent creates a child logger with a component field.
//
//	batchLog := logging.WithComponent("batcher")
func WithComponent(component string) zerolog.Logger {
	return with().Str("component", component).Logger()
}
