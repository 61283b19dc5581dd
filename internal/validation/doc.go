// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

// Package validation validates inbound frame payloads with
// go-playground/validator v10.
//
// A single validator instance is shared by every connection. It caches
// struct metadata, so payload types are parsed once per process.
//
// # Custom tags
//
//   - roomid: 1 to 128 characters, no whitespace or control characters
//
// # Usage
//
//	if verr := validation.ValidateStruct(&payload); verr != nil {
//	    frameErr := verr.ToFrameError()
//	    client.SendError(frameErr.Code, frameErr.Message)
//	}
package validation
