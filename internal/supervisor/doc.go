// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

/*
Package supervisor runs long-lived components under a suture supervision
tree.

Both binaries use the same three-layer Tree. The server puts the upload
manager in the data layer, the WebSocket hub, event bridge and event bus
(with its embedded NATS server, if any) in the messaging layer, and the
HTTP server in the api layer.
tourctl sync --watch puts local store GC in the data layer and the remote
event watcher plus the sync loop in the messaging layer.

Adapters that give each component a stable name for suture's logs live in
the services subpackage:

	tree := supervisor.NewTree("planpoint", logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewAPIServerService(srv, srv.Addr, 10*time.Second))
	err := tree.Serve(ctx)

Supervisor lifecycle events (restarts, backoff, stop timeouts) are logged
through sutureslog into the process's zerolog logger.
*/
package supervisor
