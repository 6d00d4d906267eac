// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

/*
Package upload implements the resumable chunked upload protocol used for
backups and tour photos.

The server side is Manager. A client opens a session with Init, declaring
the total size, the chunk size and the SHA-256 of the whole file. Chunks
are PUT by index in any order; each carries its own SHA-256 and is staged
on local disk until Complete queues the session for reassembly:

	open ──PutChunk*──> open ──Complete──> assembling ──> completed
	  │                                        │
	  └──Abort──> aborted                      └──> failed
	  └──ExpireStale──> expired

Reassembly runs on a small worker pool started by Serve. It streams the
staged chunks in index order into the blob store, verifies the whole-file
checksum and publishes upload.completed.

Client drives the protocol from tourctl: it asks the server which chunks it
already holds, sends the missing ones with retries, completes, and polls
until the session settles.
*/
package upload
