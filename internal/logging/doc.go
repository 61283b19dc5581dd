// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

// Package logging provides centralized zerolog-based logging for Buddichat.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("room_id", roomID).Int("messages", n).Msg("batch flushed")
//	logging.Ctx(ctx).Warn().Msg("rate limit exceeded")
//
// Connection-scoped code stores the connection and user IDs in the context
// with ContextWithConnection so that Ctx tags every line automatically.
//
// # Configuration
//
// Environment Variables (via internal/config):
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false (default: false)
//
// The SlogHandler adapter routes slog records (suture supervisor events via
// sutureslog) into the same zerolog stream.
package logging
