// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

// Package conflict detects and resolves concurrent edits of a tour made
// locally (offline) and on the server.
//
// Detection compares the local record's sync state and base version with
// the server copy. Resolution keeps one side or runs a three-way merge
// against the base snapshot the local edit started from.
package conflict

import (
	"time"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

// Detect returns the conflict between a local record and the server copy,
// or nil when the two can be reconciled by a plain pull or push. base is
// the local base snapshot and may be nil. remote is nil when the server
// has never seen the tour; a remote tombstone has DeletedAt set.
func Detect(local *models.LocalTour, base, remote *models.Tour) *models.Conflict {
	if local == nil || remote == nil {
		return nil
	}

	switch local.Meta.State {
	case models.SyncStateSynced:
		return nil

	case models.SyncStateDirty, models.SyncStateConflict:
		if remote.IsDeleted() {
			return newConflict(models.ConflictUpdateDelete, local, base, remote)
		}
		if remote.Version <= local.Meta.BaseVersion {
			return nil
		}
		if remote.ContentHash() == local.Meta.ContentHash {
			// both sides made the same edit
			return nil
		}
		return newConflict(models.ConflictUpdateUpdate, local, base, remote)

	case models.SyncStatePendingDelete:
		if remote.IsDeleted() || remote.Version <= local.Meta.BaseVersion {
			return nil
		}
		return newConflict(models.ConflictDeleteUpdate, local, base, remote)
	}
	return nil
}

func newConflict(kind models.ConflictKind, local *models.LocalTour, base, remote *models.Tour) *models.Conflict {
	l := local.Tour.Clone()
	return &models.Conflict{
		TourID:     l.ID,
		Kind:       kind,
		Local:      l,
		Remote:     remote.Clone(),
		Base:       base.Clone(),
		Fields:     DiffFields(l, remote),
		DetectedAt: time.Now().UTC(),
	}
}

// DiffFields names the editable top-level fields that differ between a
// and b, plus "deleted" when exactly one of them is a tombstone.
func DiffFields(a, b *models.Tour) []string {
	if a == nil || b == nil {
		return nil
	}
	var out []string
	if a.IsDeleted() != b.IsDeleted() {
		out = append(out, "deleted")
	}
	if a.Title != b.Title {
		out = append(out, "title")
	}
	if a.Description != b.Description {
		out = append(out, "description")
	}
	if a.Status != b.Status {
		out = append(out, "status")
	}
	if a.CoverPhotoID != b.CoverPhotoID {
		out = append(out, "cover_photo_id")
	}
	if !floorPlansEqual(a.FloorPlans, b.FloorPlans) {
		out = append(out, "floor_plans")
	}
	return out
}
