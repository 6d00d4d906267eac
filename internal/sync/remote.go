// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/upload"
)

// Remote is the server as seen by the sync engine.
type Remote interface {
	upload.API

	// Changes returns tours written after since, oldest first, tombstones
	// included.
	Changes(ctx context.Context, since time.Time, limit int) (*models.TourChanges, error)
	GetTour(ctx context.Context, id string) (*models.Tour, error)
	CreateTour(ctx context.Context, t *models.Tour) (*models.Tour, error)
	UpdateTour(ctx context.Context, t *models.Tour, expectedVersion int64) (*models.Tour, error)
	DeleteTour(ctx context.Context, id string, expectedVersion int64) (*models.Tour, error)

	CreateSyncJob(ctx context.Context, job *models.SyncJob) (*models.SyncJob, error)
	GetSyncJob(ctx context.Context, id string) (*models.SyncJob, error)
	ListSyncJobs(ctx context.Context, f JobFilter) ([]models.SyncJob, error)
	UpdateSyncJob(ctx context.Context, id string, u models.SyncJobUpdate) (*models.SyncJob, error)
}

// JobFilter narrows ListSyncJobs. Zero values match everything.
type JobFilter struct {
	Kind   models.SyncJobKind
	Status models.SyncJobStatus
	Limit  int
}

var (
	ErrNotFound     = errors.New("not found on server")
	ErrConflict     = errors.New("server has a newer version")
	ErrUnauthorized = errors.New("not authenticated")
	ErrForbidden    = errors.New("not allowed")
	ErrBadRequest   = errors.New("request rejected by server")
	ErrRateLimited  = errors.New("rate limited by server")
	ErrUnavailable  = errors.New("server unavailable")
)

// RemoteError is an error envelope returned by the server.
type RemoteError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	// Current is the server copy sent with a VERSION_CONFLICT answer.
	Current *models.Tour
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the answer onto the package sentinels and, for upload
// protocol errors, onto the upload package's.
func (e *RemoteError) Unwrap() []error {
	var errs []error
	switch e.Code {
	case "NOT_FOUND":
		errs = append(errs, ErrNotFound)
	case "VERSION_CONFLICT", "ALREADY_EXISTS":
		errs = append(errs, ErrConflict)
	case "CHUNK_INDEX_OUT_OF_RANGE":
		errs = append(errs, ErrBadRequest, upload.ErrChunkIndex)
	case "CHUNK_SIZE_MISMATCH":
		errs = append(errs, ErrBadRequest, upload.ErrChunkSize)
	case "CHUNK_CHECKSUM_MISMATCH":
		errs = append(errs, ErrBadRequest, upload.ErrChunkChecksum)
	case "UPLOAD_INCOMPLETE":
		errs = append(errs, ErrConflict, upload.ErrIncomplete)
	case "UPLOAD_NOT_OPEN":
		errs = append(errs, ErrConflict, upload.ErrNotOpen)
	case "UPLOAD_NOT_COMPLETED":
		errs = append(errs, ErrConflict, upload.ErrNotCompleted)
	case "PAYLOAD_TOO_LARGE":
		errs = append(errs, ErrBadRequest, upload.ErrTooLarge)
	}
	switch {
	case e.Status == http.StatusUnauthorized:
		errs = append(errs, ErrUnauthorized)
	case e.Status == http.StatusForbidden:
		errs = append(errs, ErrForbidden)
	case e.Status == http.StatusTooManyRequests:
		errs = append(errs, ErrRateLimited)
	case e.Status >= 500:
		errs = append(errs, ErrUnavailable)
	case e.Status >= 400 && len(errs) == 0:
		errs = append(errs, ErrBadRequest)
	}
	return errs
}

// Transient reports whether repeating the call may succeed.
func (e *RemoteError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// currentCopy returns the server copy carried by a conflict answer.
func currentCopy(err error) *models.Tour {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Current
	}
	return nil
}
