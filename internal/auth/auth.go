// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrMissingCredential is returned when the handshake carries no token.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidCredential is returned for malformed, tampered or expired tokens.
	ErrInvalidCredential = errors.New("invalid credential")
)

// WebSocket close codes for rejected handshakes.
const (
	CloseMissingCredential = 4001
	CloseInvalidCredential = 4002
)

// Identity is the authenticated principal bound to a connection.
type Identity struct {
	UserID string
	Role   string

	// ExpiresAt is the token expiry. Zero when the token has no exp claim.
	ExpiresAt time.Time
}

// TokenVerifier verifies a raw token string and returns its identity.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

// Authenticator extracts credentials from a handshake request.
type Authenticator struct {
	verifier    TokenVerifier
	tokenCookie string
}

// NewAuthenticator creates an Authenticator. tokenCookie defaults to "token".
func NewAuthenticator(verifier TokenVerifier, tokenCookie string) *Authenticator {
	if tokenCookie == "" {
		tokenCookie = "token"
	}
	return &Authenticator{verifier: verifier, tokenCookie: tokenCookie}
}

// Authenticate extracts and verifies the token presented with r.
// The returned error wraps ErrMissingCredential or ErrInvalidCredential.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	token := a.extractToken(r)
	if token == "" {
		return Identity{}, ErrMissingCredential
	}
	return a.verifier.Verify(token)
}

// extractToken reads the token from the query string, then the cookie.
func (a *Authenticator) extractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}

	cookie, err := r.Cookie(a.tokenCookie)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return ""
}

// CloseCode maps an authentication error to its WebSocket close code.
func CloseCode(err error) int {
	if errors.Is(err, ErrMissingCredential) {
		return CloseMissingCredential
	}
	return CloseInvalidCredential
}
