// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package websocket

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/buddichat/internal/auth"
	"github.com/tomtom215/buddichat/internal/logging"
	"github.com/tomtom215/buddichat/internal/metrics"
)

// HandlerConfig configures the upgrade endpoint.
type HandlerConfig struct {
	Client ClientConfig

	// AllowedOrigins restricts upgrades by Origin header. Empty or "*"
	// allows every origin.
	AllowedOrigins []string

	// Authorizer gates join and send per room. Nil allows every room.
	Authorizer RoomAuthorizer
}

// Handler upgrades, authenticates and registers WebSocket connections.
type Handler struct {
	hub      *Hub
	authn    *auth.Authenticator
	session  *session
	config   HandlerConfig
	upgrader websocket.Upgrader
	security *logging.SecurityLogger
}

// NewHandler creates the /ws handler.
func NewHandler(hub *Hub, authn *auth.Authenticator, limiter RateLimiter, ingest Ingestor, cfg HandlerConfig) *Handler {
	if cfg.Client.WriteWait <= 0 {
		cfg.Client.WriteWait = DefaultClientConfig().WriteWait
	}
	h := &Handler{
		hub:   hub,
		authn: authn,
		session: &session{
			hub:     hub,
			limiter: limiter,
			ingest:  ingest,
			authz:   cfg.Authorizer,
			now:     time.Now,
		},
		config:   cfg,
		security: logging.NewSecurityLogger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

// ServeHTTP upgrades the request. A connection whose credential is missing
// or invalid is closed with CloseMissingCredential or CloseInvalidCredential
// before it is registered.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	identity, err := h.authn.Authenticate(r)
	if err != nil {
		h.reject(conn, r, err)
		return
	}

	connectionID := r.URL.Query().Get("connectionId")
	if _, perr := uuid.Parse(connectionID); perr != nil {
		connectionID = uuid.NewString()
	}

	client := newClient(conn, h.session, h.config.Client, connectionID, identity.UserID, identity.Role, identity.ExpiresAt)
	h.security.LogHandshakeAccepted(identity.UserID, connectionID, r.RemoteAddr)
	h.hub.Add(identity.UserID, client)
	client.start()
}

func (h *Handler) reject(conn *websocket.Conn, r *http.Request, err error) {
	code := auth.CloseCode(err)
	reason := "invalid"
	text := "Invalid or expired token"
	if errors.Is(err, auth.ErrMissingCredential) {
		reason = "missing"
		text = "Authentication token missing"
	}
	metrics.WSHandshakeRejections.WithLabelValues(reason).Inc()
	h.security.LogHandshakeRejected(reason, r.RemoteAddr, r.Header.Get("Origin"), code, err)

	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.config.Client.WriteWait))
	_ = conn.Close()
}

// checkOrigin validates the Origin header against the allow list.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || (origin != "" && allowed == origin) {
			return true
		}
	}
	logging.Warn().Str("origin", logging.SanitizeValue("origin", origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
