// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

// Package services adapts components that do not already implement
// suture.Service: the HTTP listener and plain periodic housekeeping
// functions.
package services
