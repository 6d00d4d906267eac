// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

/*
Package api serves the sync HTTP surface under /api/v1 with a chi router.

Every JSON response uses one envelope:

	{
	  "status": "success",
	  "data": {...},
	  "metadata": {"timestamp": "...", "request_id": "..."}
	}

	{
	  "status": "error",
	  "error": {"code": "VERSION_CONFLICT", "message": "...", "details": {...}},
	  "metadata": {"timestamp": "...", "request_id": "..."}
	}

Routes:

	GET    /api/v1/tours                      list tours
	POST   /api/v1/tours                      create a tour
	GET    /api/v1/tours/changes?since=       delta feed, tombstones included
	GET    /api/v1/tours/{id}                 one tour
	PUT    /api/v1/tours/{id}                 update with expected_version
	DELETE /api/v1/tours/{id}                 tombstone with ?expected_version=
	POST   /api/v1/sync/jobs                  create a sync job
	GET    /api/v1/sync/jobs                  list sync jobs
	GET    /api/v1/sync/jobs/{id}             one sync job
	PATCH  /api/v1/sync/jobs/{id}             progress or finish
	POST   /api/v1/uploads                    open an upload session
	PUT    /api/v1/uploads/{id}/chunks/{i}    raw chunk, X-Chunk-Checksum header
	GET    /api/v1/uploads/{id}               session with received and missing chunks
	POST   /api/v1/uploads/{id}/complete      queue reassembly
	DELETE /api/v1/uploads/{id}               abort
	GET    /api/v1/uploads/{id}/content       stream the stored file
	GET    /api/v1/backups                    backup upload sessions
	POST   /api/v1/events                     relay a client event
	GET    /api/v1/ws                         WebSocket event stream
	GET    /api/v1/health/live                liveness
	GET    /api/v1/health/ready               readiness (database ping)
	GET    /metrics                           Prometheus

Writes carry the caller's sync origin in X-Client-ID; the events they
publish use it so the writer can ignore its own echo.
*/
package api
