// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

// Package auth authenticates API requests.
//
// Two modes are supported:
//
//	jwt:  Authorization: Bearer <HS256 token> carrying sub, tenant_id and
//	      role claims. WebSocket clients that cannot set headers may pass
//	      the token as ?access_token=.
//	none: every request runs as a fixed development principal.
//
// The authenticated Principal is stored in the request context; handlers
// read it with PrincipalFrom.
package auth
