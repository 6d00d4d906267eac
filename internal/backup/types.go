// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package backup

import (
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

// FormatVersion is bumped on incompatible archive changes.
const FormatVersion = 1

var (
	ErrChecksum       = errors.New("backup checksum mismatch")
	ErrFormatVersion  = errors.New("unsupported backup format version")
	ErrCorrupt        = errors.New("backup archive is corrupt")
	ErrUnknownMode    = errors.New("unknown restore mode")
	ErrTenantMismatch = errors.New("backup belongs to another tenant")
)

// Manifest describes an archive.
type Manifest struct {
	FormatVersion int       `json:"format_version"`
	CreatedAt     time.Time `json:"created_at"`
	TenantID      string    `json:"tenant_id"`
	ClientID      string    `json:"client_id"`
	TourCount     int       `json:"tour_count"`
	Checksum      string    `json:"checksum"` // sha256 hex of the tours array
}

// Entry is one local record and the server snapshot it was based on.
type Entry struct {
	Record models.LocalTour `json:"record"`
	Base   *models.Tour     `json:"base,omitempty"`
}

// Archive is a decoded, verified backup.
type Archive struct {
	Manifest Manifest
	Entries  []Entry
}

// wire layout; Tours stays raw so the checksum covers the exact bytes
type document struct {
	Manifest Manifest        `json:"manifest"`
	Tours    json.RawMessage `json:"tours"`
}

type RestoreMode string

const (
	RestoreMerge   RestoreMode = "merge"
	RestoreReplace RestoreMode = "replace"
)

// RestoreResult counts what a restore did.
type RestoreResult struct {
	Added    int `json:"added"`
	Replaced int `json:"replaced"`
	Skipped  int `json:"skipped"` // kept because of unpushed local work
	Removed  int `json:"removed"` // wiped by replace mode
}
