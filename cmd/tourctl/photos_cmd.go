// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/localstore"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
	tsync "github.com/rrlrodriguez78/plan-and-point-sub002/internal/sync"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/upload"
)

func newPhotosCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "photos",
		Short: "Upload tour photos",
	}
	cmd.AddCommand(newPhotosPushCmd(a))
	return cmd
}

func newPhotosPushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push FILE...",
		Short: "Upload photos in resumable chunks as one photo_upload job",
		Long: `Upload each file in chunks, tracked together as one photo_upload sync
job. A file whose earlier upload was interrupted resumes where it stopped.
One failed file does not stop the others; the command fails if any did.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.pushPhotos(cmd, args)
		},
	}
}

func (a *app) pushPhotos(cmd *cobra.Command, paths []string) error {
	ctx := cmd.Context()
	jobs := tsync.NewGuardedRemote(a.remote, a.guard)

	job, err := jobs.CreateSyncJob(ctx, &models.SyncJob{
		Kind:       models.JobPhotoUpload,
		ClientID:   a.store.ClientID(),
		TotalItems: len(paths),
	})
	if err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}
	running := models.JobRunning
	if _, err := jobs.UpdateSyncJob(ctx, job.ID, models.SyncJobUpdate{Status: &running}); err != nil {
		return fmt.Errorf("failed to start sync job: %w", err)
	}

	var (
		done, failed int
		errs         []error
	)
	for _, p := range paths {
		s, err := a.pushPhoto(cmd, job.ID, p)
		if err != nil {
			failed++
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", p, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		done++
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", p, s.BlobKey)

		if _, err := jobs.UpdateSyncJob(ctx, job.ID, models.SyncJobUpdate{ProcessedItems: &done}); err != nil {
			logging.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to report photo progress")
		}
	}

	status := models.JobCompleted
	upd := models.SyncJobUpdate{Status: &status, ProcessedItems: &done, FailedItems: &failed}
	if failed > 0 && done == 0 {
		status = models.JobFailed
	}
	if failed > 0 {
		msg := errors.Join(errs...).Error()
		upd.Error = &msg
	}
	uctx := ctx
	if ctx.Err() != nil {
		uctx = context.WithoutCancel(ctx)
	}
	if _, err := jobs.UpdateSyncJob(uctx, job.ID, upd); err != nil {
		logging.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to finish photo job")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Job %s: %d uploaded, %d failed\n", job.ID, done, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d photo(s) failed", failed, len(paths))
	}
	return nil
}

func (a *app) pushPhoto(cmd *cobra.Command, jobID, path string) (*models.UploadSession, error) {
	ctx := cmd.Context()
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs) //nolint:gosec // G304: user-supplied upload path
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("is a directory")
	}

	key := photoKey(abs, info)
	resumeID, err := a.store.UploadSession(ctx, key)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return nil, err
	}

	ctype := mime.TypeByExtension(filepath.Ext(abs))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	s, err := a.uploader().Upload(ctx, upload.Source{
		Kind:        models.UploadPhoto,
		Filename:    filepath.Base(abs),
		ContentType: ctype,
		JobID:       jobID,
		Data:        f,
		Size:        info.Size(),
		ResumeID:    resumeID,
		OnSession: func(s *models.UploadSession) error {
			return a.store.SaveUpload(ctx, key, s.ID)
		},
	}, progressBar(cmd.ErrOrStderr(), filepath.Base(abs)))
	if err != nil {
		return nil, err
	}
	if err := a.store.ClearUpload(ctx, key); err != nil && !errors.Is(err, localstore.ErrNotFound) {
		logging.Warn().Err(err).Str("path", abs).Msg("Failed to clear pending upload")
	}
	return s, nil
}

// photoKey changes when the file does, so an edited photo starts a new
// session instead of resuming the old one.
func photoKey(abs string, info os.FileInfo) string {
	return fmt.Sprintf("photo:%s:%d:%d", abs, info.Size(), info.ModTime().UnixNano())
}
