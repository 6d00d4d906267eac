// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

/*
Package audit records who changed what on the sync server.

The API logs an Event for every tour create, update and delete, for
writes rejected with a version conflict, for completed and aborted
uploads, and for requests refused by the RBAC policy. Sync events tell
other devices that something changed; the audit trail answers who did it,
from which device and IP, and keeps the answer after the tour itself is
gone.

Logger.Log never blocks a request. Events go through a bounded buffer to
Logger.Serve, which runs in the supervisor's data layer, writes each one
to the Store (the DuckDB audit_events table in production) and purges
records older than the retention period:

	logger := audit.NewLogger(db, cfg.Audit)
	tree.AddDataService(logger)
	handler.WithAudit(logger)

Admins read the trail with GET /api/v1/audit.
*/
package audit
