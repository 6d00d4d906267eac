// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/auth"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/validation"
)

// maxJSONBody bounds request bodies other than upload chunks.
const maxJSONBody = 4 << 20

// ClientIDHeader names the caller's sync origin.
const ClientIDHeader = "X-Client-ID"

// ChunkChecksumHeader carries the SHA-256 of an upload chunk.
const ChunkChecksumHeader = "X-Chunk-Checksum"

// decodeJSON reads a single JSON value into v and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := decodeBody(w, r, v); err != nil {
		return err
	}
	return validation.ValidateStruct(v)
}

// decodeBody reads a single JSON value into v. Unknown fields are
// rejected.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return fmt.Errorf("request body exceeds %d bytes: %w", mbe.Limit, errBadRequest)
		}
		return fmt.Errorf("invalid JSON body: %v: %w", err, errBadRequest)
	}
	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON value: %w", errBadRequest)
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return fmt.Errorf("read request body: %v: %w", err, errBadRequest)
	}
	return nil
}

func intQuery(r *http.Request, name string, def, minVal, maxVal int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < minVal || n > maxVal {
		return 0, fmt.Errorf("%s must be an integer in [%d, %d]: %w", name, minVal, maxVal, errBadRequest)
	}
	return n, nil
}

func int64Query(r *http.Request, name string) (int64, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, false, fmt.Errorf("%s must be a non-negative integer: %w", name, errBadRequest)
	}
	return n, true, nil
}

func timeQuery(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp: %w", name, errBadRequest)
	}
	return t.UTC(), nil
}

// principal returns the authenticated caller. The auth middleware runs
// before every handler that calls it.
func principal(r *http.Request) *auth.Principal {
	if p := auth.PrincipalFrom(r.Context()); p != nil {
		return p
	}
	return &auth.Principal{}
}

func clientID(r *http.Request) string {
	return r.Header.Get(ClientIDHeader)
}

// Request bodies.

// TourWriteRequest is the body of PUT /tours/{id}.
type TourWriteRequest struct {
	ExpectedVersion int64        `json:"expected_version" validate:"gte=0"`
	Tour            *models.Tour `json:"tour" validate:"required"`
}

// SyncJobRequest is the body of POST /sync/jobs.
type SyncJobRequest struct {
	Kind       models.SyncJobKind `json:"kind" validate:"required,oneof=tour_sync photo_upload backup_upload"`
	TotalItems int                `json:"total_items" validate:"gte=0"`
}

// SyncJobPatch is the body of PATCH /sync/jobs/{id}.
type SyncJobPatch struct {
	Status         *models.SyncJobStatus `json:"status,omitempty" validate:"omitempty,oneof=pending running completed failed canceled"`
	TotalItems     *int                  `json:"total_items,omitempty" validate:"omitempty,gte=0"`
	ProcessedItems *int                  `json:"processed_items,omitempty" validate:"omitempty,gte=0"`
	FailedItems    *int                  `json:"failed_items,omitempty" validate:"omitempty,gte=0"`
	Error          *string               `json:"error,omitempty" validate:"omitempty,max=2000"`
}

func (p *SyncJobPatch) update() models.SyncJobUpdate {
	return models.SyncJobUpdate{
		Status:         p.Status,
		TotalItems:     p.TotalItems,
		ProcessedItems: p.ProcessedItems,
		FailedItems:    p.FailedItems,
		Error:          p.Error,
	}
}
