// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package database

import (
	"context"
	"errors"
	"testing"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestSyncJobLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job, err := db.CreateSyncJob(ctx, &models.SyncJob{
		TenantID:   "acme",
		UserID:     "alice",
		Kind:       models.JobPhotoUpload,
		TotalItems: 3,
	})
	if err != nil {
		t.Fatalf("CreateSyncJob() error = %v", err)
	}
	if job.ID == "" || job.Status != models.JobPending {
		t.Fatalf("created job = %+v", job)
	}

	running, err := db.UpdateSyncJob(ctx, "acme", job.ID, models.SyncJobUpdate{
		Status:         ptr(models.JobRunning),
		ProcessedItems: ptr(2),
	})
	if err != nil {
		t.Fatalf("UpdateSyncJob() error = %v", err)
	}
	if running.ProcessedItems != 2 || running.CompletedAt != nil {
		t.Errorf("running job = %+v", running)
	}

	if _, err := db.UpdateSyncJob(ctx, "acme", job.ID, models.SyncJobUpdate{Status: ptr(models.JobPending)}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("running -> pending error = %v", err)
	}
	if _, err := db.UpdateSyncJob(ctx, "acme", job.ID, models.SyncJobUpdate{FailedItems: ptr(-1)}); err == nil {
		t.Error("negative counter accepted")
	}

	done, err := db.UpdateSyncJob(ctx, "acme", job.ID, models.SyncJobUpdate{
		Status:         ptr(models.JobCompleted),
		ProcessedItems: ptr(3),
	})
	if err != nil {
		t.Fatal(err)
	}
	if done.CompletedAt == nil || done.Progress() != 1 {
		t.Errorf("completed job = %+v", done)
	}

	if _, err := db.UpdateSyncJob(ctx, "acme", job.ID, models.SyncJobUpdate{ProcessedItems: ptr(1)}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("update after completion error = %v", err)
	}

	got, err := db.GetSyncJob(ctx, "acme", job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.JobCompleted || got.CompletedAt == nil {
		t.Errorf("stored job = %+v", got)
	}
	if _, err := db.GetSyncJob(ctx, "other", job.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant get error = %v", err)
	}
}

func TestListSyncJobs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, k := range []models.SyncJobKind{models.JobTourSync, models.JobBackupUpload, models.JobTourSync} {
		if _, err := db.CreateSyncJob(ctx, &models.SyncJob{TenantID: "acme", Kind: k}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := db.ListSyncJobs(ctx, "acme", SyncJobFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}
	syncs, err := db.ListSyncJobs(ctx, "acme", SyncJobFilter{Kind: models.JobTourSync})
	if err != nil {
		t.Fatal(err)
	}
	if len(syncs) != 2 {
		t.Errorf("len(tour_sync) = %d, want 2", len(syncs))
	}
}
