// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

/*
Package websocket relays SyncEvents between the server and connected clients.

Server side:

  - Hub: tracks clients per tenant and broadcasts each event to the clients
    of its tenant, skipping the client that caused it.
  - Client: one connection with a read pump (subscribe, ping) and a write
    pump (events, pongs, keepalive pings).
  - Bridge: a supervised service that subscribes to the server bus and
    feeds the hub.

Client side:

  - Watcher: dials the server's /ws endpoint and republishes remote events
    on the local bus, dropping events that carry its own origin. It
    reconnects with exponential backoff until its context is done.

Wire format, one JSON object per frame:

	{"type":"event","data":{"id":"01J...","type":"tour.saved",...}}
	{"type":"subscribe","data":{"types":["tour.saved","tour.deleted"]}}
	{"type":"ping"} / {"type":"pong"}

Architecture:

	bus ──► Bridge ──► Hub
	                  │
	   ┌──────────────┼──────────────┐
	   │ tenant acme  │              │ tenant globex
	Client1        Client2        Client3
*/
package websocket
