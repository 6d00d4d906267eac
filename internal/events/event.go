// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package events

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"
)

// Type names an event kind.
type Type string

const (
	TourSaved        Type = "tour.saved"
	TourDeleted      Type = "tour.deleted"
	SyncStarted      Type = "sync.started"
	SyncProgress     Type = "sync.progress"
	SyncCompleted    Type = "sync.completed"
	SyncFailed       Type = "sync.failed"
	ConflictDetected Type = "conflict.detected"
	ConflictResolved Type = "conflict.resolved"
	UploadProgress   Type = "upload.progress"
	UploadCompleted  Type = "upload.completed"
	JobUpdated       Type = "job.updated"
)

var knownTypes = []Type{
	TourSaved, TourDeleted,
	SyncStarted, SyncProgress, SyncCompleted, SyncFailed,
	ConflictDetected, ConflictResolved,
	UploadProgress, UploadCompleted,
	JobUpdated,
}

// Valid reports whether t is a known event type.
func (t Type) Valid() bool {
	return slices.Contains(knownTypes, t)
}

// Event is one SyncEvents notification. TourID is empty for events that
// are not about a single tour (sync runs, uploads, jobs).
type Event struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	TenantID   string          `json:"tenant_id"`
	TourID     string          `json:"tour_id,omitempty"`
	Origin     string          `json:"origin,omitempty"`
	Version    int64           `json:"version,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// New builds an event with a fresh id and timestamp. payload may be nil.
func New(typ Type, tenantID, tourID, origin string, version int64, payload any) (Event, error) {
	ev := Event{
		ID:         ulid.Make().String(),
		Type:       typ,
		TenantID:   tenantID,
		TourID:     tourID,
		Origin:     origin,
		Version:    version,
		OccurredAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		ev.Payload = raw
	}
	return ev, nil
}

// Validate checks the fields every transport relies on.
func (e *Event) Validate() error {
	var errs []error
	if e.ID == "" {
		errs = append(errs, errors.New("event id is required"))
	}
	if !e.Type.Valid() {
		errs = append(errs, fmt.Errorf("unknown event type %q", e.Type))
	}
	if e.TenantID == "" {
		errs = append(errs, errors.New("tenant_id is required"))
	}
	return errors.Join(errs...)
}

// DecodePayload unmarshals the payload into v.
func (e *Event) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return errors.New("event has no payload")
	}
	return json.Unmarshal(e.Payload, v)
}

// Filter selects events for a subscriber. Zero values match everything.
type Filter struct {
	TenantID      string
	Types         []Type
	ExcludeOrigin string
}

// Match reports whether ev passes the filter.
func (f *Filter) Match(ev *Event) bool {
	if f.TenantID != "" && ev.TenantID != f.TenantID {
		return false
	}
	if f.ExcludeOrigin != "" && ev.Origin == f.ExcludeOrigin {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, ev.Type) {
		return false
	}
	return true
}

// ProgressPayload is carried by sync.progress and upload.progress.
type ProgressPayload struct {
	Done  int64  `json:"done"`
	Total int64  `json:"total"`
	Stage string `json:"stage,omitempty"`
	// RefID is the upload session or sync job the progress belongs to.
	RefID string `json:"ref_id,omitempty"`
}
