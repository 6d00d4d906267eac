// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package models

import "time"

// SyncState tags a locally cached tour.
type SyncState string

const (
	// SyncStateSynced: local copy equals the base snapshot.
	SyncStateSynced SyncState = "synced"
	// SyncStateDirty: edited locally, not yet acknowledged by the server.
	SyncStateDirty SyncState = "dirty"
	// SyncStateConflict: edited on both sides; waiting for resolution.
	SyncStateConflict SyncState = "conflict"
	// SyncStatePendingDelete: deleted locally, delete not yet pushed.
	SyncStatePendingDelete SyncState = "pending_delete"
)

// Valid reports whether s is a known state.
func (s SyncState) Valid() bool {
	switch s {
	case SyncStateSynced, SyncStateDirty, SyncStateConflict, SyncStatePendingDelete:
		return true
	}
	return false
}

// NeedsPush reports whether the record has local changes for the server.
func (s SyncState) NeedsPush() bool {
	return s == SyncStateDirty || s == SyncStatePendingDelete
}

// SyncMetadata is stored next to every local copy.
type SyncMetadata struct {
	TourID         string     `json:"tour_id"`
	State          SyncState  `json:"state"`
	BaseVersion    int64      `json:"base_version"` // server version the local copy derives from
	LocalUpdatedAt time.Time  `json:"local_updated_at"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	ContentHash    string     `json:"content_hash"`
	Attempts       int        `json:"attempts"` // failed push attempts since last success
	LastError      string     `json:"last_error,omitempty"`
	Conflict       *Conflict  `json:"conflict,omitempty"`
}

// LocalTour is a tour as held by the local-first store.
type LocalTour struct {
	Tour Tour         `json:"tour"`
	Meta SyncMetadata `json:"meta"`
}

type ConflictKind string

const (
	// ConflictUpdateUpdate: both sides edited the tour.
	ConflictUpdateUpdate ConflictKind = "update_update"
	// ConflictUpdateDelete: edited locally, deleted remotely.
	ConflictUpdateDelete ConflictKind = "update_delete"
	// ConflictDeleteUpdate: deleted locally, edited remotely.
	ConflictDeleteUpdate ConflictKind = "delete_update"
)

// Conflict records both sides of a concurrent edit.
type Conflict struct {
	TourID     string       `json:"tour_id"`
	Kind       ConflictKind `json:"kind"`
	Local      *Tour        `json:"local,omitempty"`
	Remote     *Tour        `json:"remote,omitempty"`
	Base       *Tour        `json:"base,omitempty"`
	Fields     []string     `json:"fields,omitempty"` // differing top level fields
	DetectedAt time.Time    `json:"detected_at"`
}

// ResolutionStrategy picks the winning content of a conflict.
type ResolutionStrategy string

const (
	KeepLocal  ResolutionStrategy = "keep_local"
	KeepRemote ResolutionStrategy = "keep_remote"
	Merge      ResolutionStrategy = "merge"
)

// Valid reports whether s is a known strategy.
func (s ResolutionStrategy) Valid() bool {
	return s == KeepLocal || s == KeepRemote || s == Merge
}

// ConflictPolicy decides what the sync engine does on its own.
type ConflictPolicy string

const (
	PolicyManual     ConflictPolicy = "manual"
	PolicyLocalWins  ConflictPolicy = "local_wins"
	PolicyRemoteWins ConflictPolicy = "remote_wins"
	PolicyMerge      ConflictPolicy = "merge" // falls back to manual when unresolvable
)

// TourChanges is one page of the server change feed.
type TourChanges struct {
	Tours   []Tour    `json:"tours"` // tombstones included, DeletedAt set
	Cursor  time.Time `json:"cursor"`
	HasMore bool      `json:"has_more"`
}
