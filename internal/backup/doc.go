// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

// Package backup archives a device's local tour store and restores it.
//
// An archive is a single gzip-compressed JSON document:
//
//	{
//	  "manifest": {format_version, created_at, tenant_id, client_id,
//	               tour_count, checksum},
//	  "tours":    [{record: LocalTour, base: Tour}, ...]
//	}
//
// The manifest checksum is the SHA-256 of the "tours" array exactly as it
// was written, so Read detects any change to the records.
//
// Restore has two modes:
//
//	merge:   add missing records and replace synced ones; records with
//	         unpushed local work (dirty, conflict, pending_delete) are kept
//	replace: wipe the tenant's records, then load the archive
//
// Uploader ships an archive to the server over the chunked upload
// protocol, tracked by a backup_upload sync job. An interrupted upload is
// resumed on the next call from the archive file and session id it left
// behind.
package backup
