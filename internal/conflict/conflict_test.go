// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package conflict

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

func baseTour() *models.Tour {
	return &models.Tour{
		ID:       "7b0c2d6e-5d7f-4e0b-9a51-3c1f6f1d2a10",
		TenantID: "acme",
		Title:    "Harbor view",
		Status:   models.TourDraft,
		Version:  4,
		FloorPlans: []models.FloorPlan{
			{ID: "fp-1", Name: "Ground", Order: 0, Hotspots: []models.Hotspot{
				{ID: "h-1", Title: "Entrance", X: 0.1, Y: 0.2, Kind: models.HotspotPanorama},
				{ID: "h-2", Title: "Kitchen", X: 0.5, Y: 0.5, Kind: models.HotspotPanorama},
			}},
			{ID: "fp-2", Name: "Upstairs", Order: 1},
		},
	}
}

func local(t *models.Tour, state models.SyncState, baseVersion int64) *models.LocalTour {
	return &models.LocalTour{Tour: *t, Meta: models.SyncMetadata{
		TourID: t.ID, State: state, BaseVersion: baseVersion, ContentHash: t.ContentHash(),
	}}
}

func deleted(t *models.Tour) *models.Tour {
	c := t.Clone()
	now := time.Now()
	c.DeletedAt = &now
	return c
}

func TestDetect(t *testing.T) {
	t.Parallel()

	base := baseTour()
	edited := base.Clone()
	edited.Title = "Harbor view (local)"
	remoteNewer := base.Clone()
	remoteNewer.Description = "web edit"
	remoteNewer.Version = 5
	remoteSame := edited.Clone()
	remoteSame.Version = 5
	remoteTomb := deleted(base)
	remoteTomb.Version = 5

	tests := []struct {
		name   string
		local  *models.LocalTour
		remote *models.Tour
		want   models.ConflictKind
	}{
		{"synced fast-forwards", local(base, models.SyncStateSynced, 4), remoteNewer, ""},
		{"dirty on unchanged remote pushes", local(edited, models.SyncStateDirty, 4), base, ""},
		{"dirty converged", local(edited, models.SyncStateDirty, 4), remoteSame, ""},
		{"dirty vs newer remote", local(edited, models.SyncStateDirty, 4), remoteNewer, models.ConflictUpdateUpdate},
		{"dirty vs tombstone", local(edited, models.SyncStateDirty, 4), remoteTomb, models.ConflictUpdateDelete},
		{"pending delete on unchanged remote", local(deleted(base), models.SyncStatePendingDelete, 4), base, ""},
		{"pending delete vs tombstone", local(deleted(base), models.SyncStatePendingDelete, 4), remoteTomb, ""},
		{"pending delete vs newer remote", local(deleted(base), models.SyncStatePendingDelete, 4), remoteNewer, models.ConflictDeleteUpdate},
		{"already in conflict re-detects", local(edited, models.SyncStateConflict, 4), remoteNewer, models.ConflictUpdateUpdate},
		{"never pushed, server lacks it", local(edited, models.SyncStateDirty, 0), nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Detect(tt.local, base, tt.remote)
			if tt.want == "" {
				if c != nil {
					t.Errorf("Detect() = %s, want none", c.Kind)
				}
				return
			}
			if c == nil {
				t.Fatalf("Detect() = nil, want %s", tt.want)
			}
			if c.Kind != tt.want || c.TourID != base.ID || c.Base == nil || c.DetectedAt.IsZero() {
				t.Errorf("conflict = %+v", c)
			}
		})
	}
}

func TestDiffFields(t *testing.T) {
	t.Parallel()

	a := baseTour()
	b := a.Clone()
	b.Title = "x"
	b.FloorPlans[0].Hotspots[0].X = 0.9
	got := DiffFields(a, b)
	if !slices.Equal(got, []string{"title", "floor_plans"}) {
		t.Errorf("DiffFields() = %v", got)
	}

	// nil and empty hotspot lists are the same content
	c := a.Clone()
	c.FloorPlans[1].Hotspots = []models.Hotspot{}
	if got := DiffFields(a, c); len(got) != 0 {
		t.Errorf("DiffFields() = %v, want none", got)
	}

	if got := DiffFields(a, deleted(a)); !slices.Equal(got, []string{"deleted"}) {
		t.Errorf("DiffFields() with tombstone = %v", got)
	}
}

func TestMergeDisjointEdits(t *testing.T) {
	t.Parallel()

	base := baseTour()

	mine := base.Clone()
	mine.Title = "Harbor view at dusk"
	mine.FloorPlans[0].Hotspots[0].Title = "Front door"
	mine.FloorPlans = append(mine.FloorPlans, models.FloorPlan{ID: "fp-3", Name: "Roof", Order: 2})
	mine.FloorPlans[1].Name = "First floor"

	theirs := base.Clone()
	theirs.Version = 6
	theirs.Description = "Now with garden"
	theirs.Status = models.TourPublished
	// remove the kitchen hotspot and add a garden one
	theirs.FloorPlans[0].Hotspots = []models.Hotspot{
		theirs.FloorPlans[0].Hotspots[0],
		{ID: "h-3", Title: "Garden", X: 0.9, Y: 0.9, Kind: models.HotspotGroup},
	}
	theirs.FloorPlans[1].ImageURL = "https://cdn.example.com/up.png"

	got, err := Merge(base, mine, theirs)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if got.Title != "Harbor view at dusk" || got.Description != "Now with garden" || got.Status != models.TourPublished {
		t.Errorf("scalars = %q %q %q", got.Title, got.Description, got.Status)
	}
	if got.Version != 6 {
		t.Errorf("version = %d, want remote's 6", got.Version)
	}
	if len(got.FloorPlans) != 3 || got.FloorPlans[2].ID != "fp-3" {
		t.Fatalf("floor plans = %+v", got.FloorPlans)
	}
	up := got.FloorPlans[1]
	if up.Name != "First floor" || up.ImageURL != "https://cdn.example.com/up.png" {
		t.Errorf("fp-2 merged to %+v", up)
	}
	hs := got.FloorPlans[0].Hotspots
	ids := []string{}
	for _, h := range hs {
		ids = append(ids, h.ID)
	}
	if !slices.Equal(ids, []string{"h-1", "h-3"}) {
		t.Errorf("hotspots = %v, want [h-1 h-3]", ids)
	}
	if hs[0].Title != "Front door" {
		t.Errorf("h-1 title = %q", hs[0].Title)
	}
}

func TestMergeContested(t *testing.T) {
	t.Parallel()

	base := baseTour()

	tests := []struct {
		name   string
		mine   func(*models.Tour)
		theirs func(*models.Tour)
		want   []string
	}{
		{
			name:   "same scalar",
			mine:   func(t *models.Tour) { t.Title = "A" },
			theirs: func(t *models.Tour) { t.Title = "B" },
			want:   []string{"title"},
		},
		{
			name:   "same hotspot",
			mine:   func(t *models.Tour) { t.FloorPlans[0].Hotspots[1].X = 0.7 },
			theirs: func(t *models.Tour) { t.FloorPlans[0].Hotspots[1].Title = "Galley" },
			want:   []string{"floor_plans[fp-1].hotspots[h-2]"},
		},
		{
			name:   "modified here, deleted there",
			mine:   func(t *models.Tour) { t.FloorPlans[1].Name = "Loft" },
			theirs: func(t *models.Tour) { t.FloorPlans = t.FloorPlans[:1] },
			want:   []string{"floor_plans[fp-2]"},
		},
		{
			name:   "same floor plan field",
			mine:   func(t *models.Tour) { t.FloorPlans[1].Width = 100 },
			theirs: func(t *models.Tour) { t.FloorPlans[1].Width = 200 },
			want:   []string{"floor_plans[fp-2].width"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mine, theirs := base.Clone(), base.Clone()
			tt.mine(mine)
			tt.theirs(theirs)
			_, err := Merge(base, mine, theirs)
			var ue *UnresolvableError
			if !errors.As(err, &ue) || !errors.Is(err, ErrUnresolvable) {
				t.Fatalf("Merge() error = %v, want UnresolvableError", err)
			}
			if !slices.Equal(ue.Fields, tt.want) {
				t.Errorf("contested = %v, want %v", ue.Fields, tt.want)
			}
		})
	}
}

func TestMergeSameEditBothSides(t *testing.T) {
	t.Parallel()

	base := baseTour()
	mine, theirs := base.Clone(), base.Clone()
	mine.Title, theirs.Title = "Same", "Same"
	mine.FloorPlans[0].Hotspots[1].X, theirs.FloorPlans[0].Hotspots[1].X = 0.3, 0.3

	got, err := Merge(base, mine, theirs)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Same" || got.FloorPlans[0].Hotspots[1].X != 0.3 {
		t.Errorf("merged = %+v", got)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	base := baseTour()
	mine := base.Clone()
	mine.Title = "Mine"
	theirs := base.Clone()
	theirs.Description = "Theirs"
	theirs.Version = 9
	c := &models.Conflict{TourID: base.ID, Kind: models.ConflictUpdateUpdate, Local: mine, Remote: theirs, Base: base}

	got, err := Resolve(c, models.KeepLocal)
	if err != nil || got.Title != "Mine" || got.Description != "" || got.Version != 9 {
		t.Errorf("keep_local = %+v, %v", got, err)
	}
	got, err = Resolve(c, models.KeepRemote)
	if err != nil || got.Title != "Harbor view" || got.Description != "Theirs" {
		t.Errorf("keep_remote = %+v, %v", got, err)
	}
	got, err = Resolve(c, models.Merge)
	if err != nil || got.Title != "Mine" || got.Description != "Theirs" || got.Version != 9 {
		t.Errorf("merge = %+v, %v", got, err)
	}
	if _, err := Resolve(c, "coin_flip"); err == nil {
		t.Error("Resolve() accepted unknown strategy")
	}

	del := &models.Conflict{TourID: base.ID, Kind: models.ConflictDeleteUpdate, Local: deleted(base), Remote: theirs, Base: base}
	if _, err := Resolve(del, models.Merge); !errors.Is(err, ErrUnresolvable) {
		t.Errorf("merge of delete conflict error = %v", err)
	}
	got, err = Resolve(del, models.KeepLocal)
	if err != nil || !got.IsDeleted() || got.Version != 9 {
		t.Errorf("keep_local delete = %+v, %v", got, err)
	}
}

func TestAutoResolve(t *testing.T) {
	t.Parallel()

	base := baseTour()
	mine, theirs := base.Clone(), base.Clone()
	mine.Title, theirs.Title = "A", "B"
	theirs.Version = 5
	contested := &models.Conflict{Kind: models.ConflictUpdateUpdate, Local: mine, Remote: theirs, Base: base}

	tests := []struct {
		policy       models.ConflictPolicy
		wantResolved bool
		wantTitle    string
	}{
		{models.PolicyManual, false, ""},
		{models.PolicyLocalWins, true, "A"},
		{models.PolicyRemoteWins, true, "B"},
		{models.PolicyMerge, false, ""},
	}
	for _, tt := range tests {
		got, _, err := AutoResolve(contested, tt.policy)
		if err != nil {
			t.Errorf("%s: error = %v", tt.policy, err)
			continue
		}
		if (got != nil) != tt.wantResolved {
			t.Errorf("%s: resolved = %v, want %v", tt.policy, got != nil, tt.wantResolved)
			continue
		}
		if got != nil && got.Title != tt.wantTitle {
			t.Errorf("%s: title = %q", tt.policy, got.Title)
		}
	}
}
