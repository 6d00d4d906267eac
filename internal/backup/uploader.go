// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/localstore"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/upload"
)

// Store is what the uploader needs from the local store: the tours to
// archive and a place to remember an unfinished upload.
type Store interface {
	Source
	SaveUpload(ctx context.Context, key, sessionID string) error
	UploadSession(ctx context.Context, key string) (string, error)
	ClearUpload(ctx context.Context, key string) error
}

// JobTracker records the upload as a server-side sync job.
type JobTracker interface {
	CreateSyncJob(ctx context.Context, job *models.SyncJob) (*models.SyncJob, error)
	UpdateSyncJob(ctx context.Context, id string, u models.SyncJobUpdate) (*models.SyncJob, error)
}

// Sender uploads a payload; *upload.Client implements it.
type Sender interface {
	Upload(ctx context.Context, src upload.Source, progress upload.ProgressFunc) (*models.UploadSession, error)
}

// Uploader builds backups and ships them to the server.
type Uploader struct {
	store  Store
	jobs   JobTracker
	sender Sender
	dir    string
	logger zerolog.Logger
}

// UploadResult describes a finished upload.
type UploadResult struct {
	Manifest *Manifest
	Session  *models.UploadSession
	Job      *models.SyncJob
	Resumed  bool
}

// NewUploader keeps pending archives in dir.
func NewUploader(store Store, jobs JobTracker, sender Sender, dir string) *Uploader {
	return &Uploader{
		store:  store,
		jobs:   jobs,
		sender: sender,
		dir:    dir,
		logger: logging.WithComponent("backup"),
	}
}

func pendingKey(tenantID string) string {
	return "backup/" + tenantID
}

func (u *Uploader) pendingPath(tenantID string) string {
	return filepath.Join(u.dir, "pending-"+tenantID+".json.gz")
}

// Upload archives tenantID's tours and uploads the archive. When an
// earlier upload was interrupted its archive is sent again, skipping the
// chunks the server already holds.
func (u *Uploader) Upload(ctx context.Context, tenantID string, progress upload.ProgressFunc) (*UploadResult, error) {
	if err := os.MkdirAll(u.dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup dir: %w", err)
	}
	key := pendingKey(tenantID)
	path := u.pendingPath(tenantID)

	manifest, resumeID, err := u.prepare(ctx, tenantID, key, path)
	if err != nil {
		return nil, err
	}

	job, err := u.jobs.CreateSyncJob(ctx, &models.SyncJob{
		Kind:       models.JobBackupUpload,
		ClientID:   u.store.ClientID(),
		TotalItems: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sync job: %w", err)
	}
	running := models.JobRunning
	if _, err := u.jobs.UpdateSyncJob(ctx, job.ID, models.SyncJobUpdate{Status: &running}); err != nil {
		return nil, fmt.Errorf("failed to start sync job: %w", err)
	}

	session, err := u.send(ctx, path, manifest, job.ID, key, resumeID, progress)
	job, jerr := u.finishJob(ctx, job.ID, err)
	if err != nil {
		return nil, err
	}
	if jerr != nil {
		u.logger.Warn().Err(jerr).Str("job_id", job.ID).Msg("Failed to finish backup job")
	}

	if err := u.store.ClearUpload(ctx, key); err != nil {
		u.logger.Warn().Err(err).Msg("Failed to clear pending upload")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		u.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove uploaded archive")
	}
	u.logger.Info().
		Str("upload_id", session.ID).
		Str("blob_key", session.BlobKey).
		Int("tours", manifest.TourCount).
		Msg("Backup uploaded")
	return &UploadResult{Manifest: manifest, Session: session, Job: job, Resumed: resumeID != ""}, nil
}

// prepare returns the archive to send: the pending one if an upload was
// interrupted, otherwise a fresh one.
func (u *Uploader) prepare(ctx context.Context, tenantID, key, path string) (*Manifest, string, error) {
	resumeID, err := u.store.UploadSession(ctx, key)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return nil, "", err
	}
	if resumeID != "" {
		a, err := ReadFile(path)
		if err == nil {
			u.logger.Info().Str("upload_id", resumeID).Msg("Resuming interrupted backup upload")
			return &a.Manifest, resumeID, nil
		}
		u.logger.Warn().Err(err).Msg("Pending archive unusable; creating a new backup")
		if err := u.store.ClearUpload(ctx, key); err != nil {
			return nil, "", err
		}
	}
	m, err := CreateFile(ctx, u.store, tenantID, path)
	if err != nil {
		return nil, "", err
	}
	return m, "", nil
}

func (u *Uploader) send(ctx context.Context, path string, m *Manifest, jobID, key, resumeID string, progress upload.ProgressFunc) (*models.UploadSession, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is built from the backup dir
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return u.sender.Upload(ctx, upload.Source{
		Kind:        models.UploadBackup,
		Filename:    fmt.Sprintf("backup-%s-%s.json.gz", m.TenantID, m.CreatedAt.Format("20060102T150405Z")),
		ContentType: "application/gzip",
		JobID:       jobID,
		Data:        f,
		Size:        info.Size(),
		ResumeID:    resumeID,
		OnSession: func(s *models.UploadSession) error {
			return u.store.SaveUpload(ctx, key, s.ID)
		},
	}, progress)
}

func (u *Uploader) finishJob(ctx context.Context, id string, cause error) (*models.SyncJob, error) {
	one := 1
	upd := models.SyncJobUpdate{}
	status := models.JobCompleted
	if cause != nil {
		status = models.JobFailed
		msg := cause.Error()
		upd.FailedItems = &one
		upd.Error = &msg
	} else {
		upd.ProcessedItems = &one
	}
	upd.Status = &status

	// the caller's ctx may be the reason the upload stopped
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	job, err := u.jobs.UpdateSyncJob(ctx, id, upd)
	if err != nil {
		return &models.SyncJob{ID: id, Status: status}, err
	}
	return job, nil
}
