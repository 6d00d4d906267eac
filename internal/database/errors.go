// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package database

import (
	"errors"
	"fmt"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrVersionConflict   = errors.New("version conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// VersionConflictError carries the server's current copy so the caller
// can run conflict detection without another round trip.
type VersionConflictError struct {
	Expected int64
	Current  *models.Tour
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: expected %d, current %d", e.Expected, e.Current.Version)
}

func (e *VersionConflictError) Unwrap() error { return ErrVersionConflict }
