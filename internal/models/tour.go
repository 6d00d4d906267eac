// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type TourStatus string

const (
	TourDraft     TourStatus = "draft"
	TourPublished TourStatus = "published"
	TourArchived  TourStatus = "archived"
)

type HotspotKind string

const (
	HotspotPanorama HotspotKind = "panorama"
	HotspotGroup    HotspotKind = "group" // several standard photos
)

type PhotoKind string

const (
	PhotoPanorama PhotoKind = "panorama"
	PhotoStandard PhotoKind = "standard"
)

// Tour is a virtual walkthrough owned by a tenant. Version is assigned by
// the server and increases by one on every accepted write, deletes
// included. A zero Version means the tour has never reached the server.
type Tour struct {
	ID           string      `json:"id" validate:"required,uuid"`
	TenantID     string      `json:"tenant_id" validate:"required"`
	OwnerID      string      `json:"owner_id,omitempty"`
	Title        string      `json:"title" validate:"required,max=200"`
	Description  string      `json:"description,omitempty" validate:"max=4000"`
	Status       TourStatus  `json:"status" validate:"oneof=draft published archived"`
	CoverPhotoID string      `json:"cover_photo_id,omitempty"`
	FloorPlans   []FloorPlan `json:"floor_plans" validate:"dive"`
	Version      int64       `json:"version"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	DeletedAt    *time.Time  `json:"deleted_at,omitempty"`
}

type FloorPlan struct {
	ID       string    `json:"id" validate:"required"`
	Name     string    `json:"name" validate:"required,max=200"`
	ImageURL string    `json:"image_url,omitempty"`
	Width    int       `json:"width" validate:"min=0"`
	Height   int       `json:"height" validate:"min=0"`
	Order    int       `json:"order"`
	Hotspots []Hotspot `json:"hotspots" validate:"dive"`
}

// Hotspot coordinates are normalized to the floor plan image, 0..1.
type Hotspot struct {
	ID     string      `json:"id" validate:"required"`
	Title  string      `json:"title" validate:"max=200"`
	X      float64     `json:"x" validate:"gte=0,lte=1"`
	Y      float64     `json:"y" validate:"gte=0,lte=1"`
	Kind   HotspotKind `json:"kind" validate:"oneof=panorama group"`
	Photos []Photo     `json:"photos" validate:"dive"`
}

type Photo struct {
	ID          string     `json:"id" validate:"required"`
	StoragePath string     `json:"storage_path"` // blob key once uploaded
	Kind        PhotoKind  `json:"kind" validate:"oneof=panorama standard"`
	Width       int        `json:"width,omitempty"`
	Height      int        `json:"height,omitempty"`
	Checksum    string     `json:"checksum,omitempty"` // sha256 hex
	CapturedAt  *time.Time `json:"captured_at,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the tour and everything nested in it.
func (t *Tour) Validate() error {
	return validate.Struct(t)
}

// NewTour returns a draft tour with a fresh id.
func NewTour(tenantID, ownerID, title string) *Tour {
	now := time.Now().UTC()
	return &Tour{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		OwnerID:    ownerID,
		Title:      title,
		Status:     TourDraft,
		FloorPlans: []FloorPlan{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsDeleted reports whether the tour is a tombstone.
func (t *Tour) IsDeleted() bool {
	return t.DeletedAt != nil
}

// editable is the part of a tour users change. ContentHash covers exactly
// these fields so server bookkeeping (version, timestamps) never makes two
// identical edits look different.
type editable struct {
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Status       TourStatus  `json:"status"`
	CoverPhotoID string      `json:"cover_photo_id"`
	FloorPlans   []FloorPlan `json:"floor_plans"`
}

// ContentHash returns the sha256 hex digest of the editable content. Nil
// and empty slices hash alike at every level, and capture times are
// compared in UTC, so a tour keeps its hash through Clone, JSON and the
// database.
func (t *Tour) ContentHash() string {
	b, err := json.Marshal(editable{
		Title:        t.Title,
		Description:  t.Description,
		Status:       t.Status,
		CoverPhotoID: t.CoverPhotoID,
		FloorPlans:   canonicalPlans(t.FloorPlans),
	})
	if err != nil {
		// the struct holds only plain values; Marshal cannot fail
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func canonicalPlans(in []FloorPlan) []FloorPlan {
	out := make([]FloorPlan, len(in))
	for i, fp := range in {
		fp.Hotspots = make([]Hotspot, len(in[i].Hotspots))
		for j, h := range in[i].Hotspots {
			h.Photos = make([]Photo, len(in[i].Hotspots[j].Photos))
			for k, p := range in[i].Hotspots[j].Photos {
				if p.CapturedAt != nil {
					at := p.CapturedAt.UTC()
					p.CapturedAt = &at
				}
				h.Photos[k] = p
			}
			fp.Hotspots[j] = h
		}
		out[i] = fp
	}
	return out
}

// Clone returns a deep copy.
func (t *Tour) Clone() *Tour {
	if t == nil {
		return nil
	}
	c := *t
	if t.DeletedAt != nil {
		d := *t.DeletedAt
		c.DeletedAt = &d
	}
	c.FloorPlans = make([]FloorPlan, len(t.FloorPlans))
	for i, fp := range t.FloorPlans {
		c.FloorPlans[i] = fp.Clone()
	}
	return &c
}

func (fp FloorPlan) Clone() FloorPlan {
	c := fp
	c.Hotspots = make([]Hotspot, len(fp.Hotspots))
	for i, h := range fp.Hotspots {
		c.Hotspots[i] = h.Clone()
	}
	return c
}

func (h Hotspot) Clone() Hotspot {
	c := h
	c.Photos = make([]Photo, len(h.Photos))
	copy(c.Photos, h.Photos)
	return c
}

// PhotoCount returns the number of photos across every hotspot.
func (t *Tour) PhotoCount() int {
	n := 0
	for _, fp := range t.FloorPlans {
		for _, h := range fp.Hotspots {
			n += len(h.Photos)
		}
	}
	return n
}
