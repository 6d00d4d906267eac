// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

// Package models defines the data shared by the sync server, the local-first
// store and the tourctl client: tours and their floor plans, hotspots and
// photos, the sync metadata attached to local copies, server-tracked sync
// jobs, and chunked upload sessions.
package models
