// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

/*
Package auth authenticates WebSocket handshakes.

Credentials are HS256 JSON Web Tokens issued by an external service and
presented either as the token query parameter or the token cookie:

	GET /ws?token=<jwt>

The user identifier is read from the userId claim, falling back to id and
then sub. Tokens signed with any other algorithm are rejected.

Authentication failures map to two sentinel errors:

  - ErrMissingCredential: no token was presented
  - ErrInvalidCredential: the token is malformed, tampered, expired, or
    carries no user identifier

Callers close the socket with a distinct close code for each (see
CloseCode) before the connection is registered anywhere.
*/
package auth
