// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

// Package authz decides which rooms a connection may join or post to,
// using Casbin with the role claim carried by the connection's credential.
//
// # Model
//
//	[request_definition]
//	r = sub, obj, act
//
//	[policy_definition]
//	p = sub, obj, act, eft
//
//	[role_definition]
//	g = _, _
//
//	[policy_effect]
//	e = some(where (p.eft == allow)) && !some(where (p.eft == deny))
//
//	[matchers]
//	m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && (r.act == p.act || p.act == "*")
//
// The subject is the role, the object is the room ID and the action is
// ActionJoin or ActionSend. A credential without a role claim is treated
// as DefaultRole.
//
// # Policy
//
// The embedded policy lets the user role join and post anywhere except
// rooms matching announce:*, lets observers join only, and lets
// moderators do everything. SECURITY_POLICY_PATH points at a CSV file in
// the same format to replace it; the file is reloaded on ReloadInterval
// while the enforcer runs under the supervisor.
package authz
