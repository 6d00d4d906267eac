// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

/*
Package events implements SyncEvents, the change-notification bus shared by
every participant that holds a copy of a tour.

Two transports are available:

  - memory: a Watermill GoChannel. Fan-out stays inside one process, which
    is what the local-first store and a single server instance need.
  - nats: Watermill's NATS publisher and subscriber on core NATS subjects.
    Every server instance subscribed to the subject receives every event.
    An embedded NATS server can be started in-process for single-node
    deployments.

Events carry the Origin of the client that caused them so that a client can
ignore its own echoes:

	sub, _ := bus.Subscribe(ctx, events.Filter{
		TenantID:      "acme",
		ExcludeOrigin: clientID,
	})
	for ev := range sub {
		...
	}

Publishing is guarded by a gobreaker circuit breaker. When the breaker is
open, Publish fails fast with gobreaker.ErrOpenState; callers treat events
as best-effort and never fail a write because a notification was lost.
*/
package events
