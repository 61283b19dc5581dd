// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/buddichat/internal/auth"
	"github.com/tomtom215/buddichat/internal/chat"
	"github.com/tomtom215/buddichat/internal/logging"
	"github.com/tomtom215/buddichat/internal/validation"
)

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status        string  `json:"status"`
	InstanceID    string  `json:"instance_id"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Connections   int     `json:"connections"`
	Backbone      struct {
		Subscribed bool   `json:"subscribed"`
		Breaker    string `json:"breaker"`
	} `json:"backbone"`
}

// RecentMessagesResponse is the data of GET /api/rooms/{roomID}/recent.
type RecentMessagesResponse struct {
	RoomID   string         `json:"roomId"`
	Messages []chat.Message `json:"messages"`
}

// handleHealth always answers 200 while the process serves HTTP. A lost
// backbone subscription or an open breaker reports "degraded" because
// delivery continues locally.
func (rt *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var resp HealthResponse
	resp.Status = "ok"
	resp.InstanceID = rt.deps.InstanceID
	resp.UptimeSeconds = time.Since(rt.deps.StartedAt).Seconds()

	if rt.deps.Connections != nil {
		resp.Connections = rt.deps.Connections.GetClientCount()
	}

	if rt.deps.Backbone != nil {
		resp.Backbone.Subscribed = rt.deps.Backbone.Subscribed()
		resp.Backbone.Breaker = rt.deps.Backbone.BreakerState()
		if !resp.Backbone.Subscribed || resp.Backbone.Breaker == "open" {
			resp.Status = "degraded"
		}
	} else {
		resp.Backbone.Breaker = "disabled"
	}

	writeJSON(w, http.StatusOK, resp)
}

type identityKey struct{}

// identityFrom returns the identity stored by requireAuth.
func identityFrom(ctx context.Context) auth.Identity {
	id, _ := ctx.Value(identityKey{}).(auth.Identity)
	return id
}

// requireAuth verifies the request credential with the handshake authenticator.
func (rt *Router) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt.deps.Authenticator == nil {
			NewResponseWriter(w, r).ServiceUnavailable("authentication not configured")
			return
		}

		identity, err := rt.deps.Authenticator.Authenticate(r)
		if err != nil {
			msg := "invalid credential"
			if errors.Is(err, auth.ErrMissingCredential) {
				msg = "missing credential"
			}
			NewResponseWriter(w, r).Unauthorized(msg)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, identity)))
	})
}

func (rt *Router) handleRecent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	roomID := chi.URLParam(r, "roomID")

	if err := validation.GetValidator().Var(roomID, "required,roomid"); err != nil {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, "roomId must be 1-128 characters without spaces")
		return
	}

	if rt.deps.Authorizer != nil && !rt.deps.Authorizer.Authorize(identityFrom(r.Context()).Role, roomID, "join") {
		rw.Forbidden("not allowed to read this room")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), rt.deps.CacheTimeout)
	defer cancel()

	messages, err := rt.deps.Recent.Recent(ctx, roomID)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("room_id", roomID).Msg("Failed to read recent messages")
		rw.ServiceUnavailable("recent messages unavailable")
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}

	rw.Success(RecentMessagesResponse{RoomID: roomID, Messages: messages})
}
