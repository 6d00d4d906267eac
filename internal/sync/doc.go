// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

/*
Package sync reconciles the local-first tour store with the sync server.

A sync pass (Engine.Run) is tracked as a server-side sync job and has two
phases:

 1. Pull: read the server change feed from the stored cursor. Clean local
    records are fast-forwarded; dirty ones are checked for conflicts.
 2. Push: send every dirty record with the server version it derives
    from. A 409 answer means someone else wrote first; the conflict is
    detected and either resolved by the configured policy or parked for
    a manual decision.

Remote calls go through a Guard that applies a token-bucket rate limit, a
circuit breaker, and bounded retries with exponential backoff for
transient failures. HTTPRemote talks to the server's /api/v1 surface.

Watch keeps the store in sync continuously: it runs a pass on a fixed
interval and whenever a change made by another client arrives on the
SyncEvents bus.
*/
package sync
