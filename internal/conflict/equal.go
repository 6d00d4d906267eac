// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package conflict

import "github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"

// Equality treats nil and empty slices alike; copies that went through a
// JSON round trip differ only in that respect.

func floorPlansEqual(a, b []models.FloorPlan) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !floorPlanEqual(&a[i], &b[i]) {
			return false
		}
	}
	return true
}

func floorPlanEqual(a, b *models.FloorPlan) bool {
	if a.ID != b.ID || a.Name != b.Name || a.ImageURL != b.ImageURL ||
		a.Width != b.Width || a.Height != b.Height || a.Order != b.Order {
		return false
	}
	if len(a.Hotspots) != len(b.Hotspots) {
		return false
	}
	for i := range a.Hotspots {
		if !hotspotEqual(&a.Hotspots[i], &b.Hotspots[i]) {
			return false
		}
	}
	return true
}

func hotspotEqual(a, b *models.Hotspot) bool {
	if a.ID != b.ID || a.Title != b.Title || a.X != b.X || a.Y != b.Y || a.Kind != b.Kind {
		return false
	}
	if len(a.Photos) != len(b.Photos) {
		return false
	}
	for i := range a.Photos {
		if !photoEqual(&a.Photos[i], &b.Photos[i]) {
			return false
		}
	}
	return true
}

func photoEqual(a, b *models.Photo) bool {
	if a.ID != b.ID || a.StoragePath != b.StoragePath || a.Kind != b.Kind ||
		a.Width != b.Width || a.Height != b.Height || a.Checksum != b.Checksum {
		return false
	}
	switch {
	case a.CapturedAt == nil && b.CapturedAt == nil:
		return true
	case a.CapturedAt == nil || b.CapturedAt == nil:
		return false
	default:
		return a.CapturedAt.Equal(*b.CapturedAt)
	}
}
