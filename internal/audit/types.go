// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// EventType names what happened.
type EventType string

const (
	EventTourCreated EventType = "tour.created"
	EventTourUpdated EventType = "tour.updated"
	EventTourDeleted EventType = "tour.deleted"
	// EventTourConflict is a write rejected for a stale expected_version.
	EventTourConflict EventType = "tour.conflict"

	EventUploadCompleted EventType = "upload.completed"
	EventUploadAborted   EventType = "upload.aborted"

	EventAuthzDenied EventType = "authz.denied"
)

// Outcome of the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one audit record. Records are scoped to a tenant and are
// never updated.
type Event struct {
	ID        string    `json:"id"` // ULID
	Timestamp time.Time `json:"timestamp"`
	TenantID  string    `json:"tenant_id"`
	Type      EventType `json:"type"`
	Outcome   Outcome   `json:"outcome"`

	ActorID   string `json:"actor_id"`
	ActorRole string `json:"actor_role,omitempty"`
	ClientID  string `json:"client_id,omitempty"`

	TargetType string `json:"target_type,omitempty"` // tour, upload, route
	TargetID   string `json:"target_id,omitempty"`

	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`

	SourceIP  string `json:"source_ip,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// QueryFilter selects events of one tenant. Zero fields do not filter.
type QueryFilter struct {
	TenantID string
	Types    []EventType
	ActorID  string
	TargetID string
	Since    time.Time
	Until    time.Time
	Limit    int
}

// Store persists audit events. *database.DB implements it.
type Store interface {
	SaveAuditEvent(ctx context.Context, e *Event) error
	QueryAuditEvents(ctx context.Context, f QueryFilter) ([]Event, error)
	PurgeAuditEvents(ctx context.Context, olderThan time.Time) (int64, error)
}

// Meta marshals v for Event.Metadata, returning nil on failure.
func Meta(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
