// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

// SyncJobFilter narrows ListSyncJobs.
type SyncJobFilter struct {
	Kind   models.SyncJobKind
	Status models.SyncJobStatus
	Limit  int
}

const syncJobColumns = `id, tenant_id, user_id, client_id, kind, status, total_items,
	processed_items, failed_items, error, created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncJob(s rowScanner) (*models.SyncJob, error) {
	var (
		j           models.SyncJob
		kind        string
		status      string
		completedAt sql.NullTime
	)
	if err := s.Scan(&j.ID, &j.TenantID, &j.UserID, &j.ClientID, &kind, &status, &j.TotalItems,
		&j.ProcessedItems, &j.FailedItems, &j.Error, &j.CreatedAt, &j.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}
	j.Kind = models.SyncJobKind(kind)
	j.Status = models.SyncJobStatus(status)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	j.CompletedAt = timePtr(completedAt)
	return &j, nil
}

// CreateSyncJob inserts a job in pending state and assigns its ULID.
func (db *DB) CreateSyncJob(ctx context.Context, in *models.SyncJob) (out *models.SyncJob, err error) {
	defer observe("insert", "sync_jobs", time.Now(), &err)

	if in.TotalItems < 0 {
		return nil, fmt.Errorf("total_items must not be negative")
	}
	j := *in
	j.ID = ulid.Make().String()
	j.Status = models.JobPending
	j.ProcessedItems, j.FailedItems, j.Error = 0, 0, ""
	j.CreatedAt = timestamp(db.now())
	j.UpdatedAt = j.CreatedAt
	j.CompletedAt = nil

	_, err = db.conn.ExecContext(ctx, `INSERT INTO sync_jobs (`+syncJobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		j.ID, j.TenantID, j.UserID, j.ClientID, string(j.Kind), string(j.Status), j.TotalItems,
		j.ProcessedItems, j.FailedItems, j.Error, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert sync job: %w", err)
	}
	return &j, nil
}

// GetSyncJob returns a tenant's job.
func (db *DB) GetSyncJob(ctx context.Context, tenantID, id string) (j *models.SyncJob, err error) {
	defer observe("select", "sync_jobs", time.Now(), &err)

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+syncJobColumns+` FROM sync_jobs WHERE tenant_id = ? AND id = ?`, tenantID, id)
	j, err = scanSyncJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sync job: %w", err)
	}
	return j, nil
}

// ListSyncJobs returns a tenant's jobs, newest first.
func (db *DB) ListSyncJobs(ctx context.Context, tenantID string, f SyncJobFilter) (jobs []models.SyncJob, err error) {
	defer observe("select", "sync_jobs", time.Now(), &err)

	where := []string{"tenant_id = ?"}
	args := []any{tenantID}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	//nolint:gosec // where is built from constant fragments only
	rows, err := db.conn.QueryContext(ctx, `SELECT `+syncJobColumns+` FROM sync_jobs WHERE `+
		strings.Join(where, " AND ")+` ORDER BY id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync jobs: %w", err)
	}
	defer rows.Close()

	jobs = []models.SyncJob{}
	for rows.Next() {
		j, err := scanSyncJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// UpdateSyncJob applies a partial update. Terminal jobs reject updates,
// and a started job cannot go back to pending.
func (db *DB) UpdateSyncJob(ctx context.Context, tenantID, id string, u models.SyncJobUpdate) (out *models.SyncJob, err error) {
	defer observe("update", "sync_jobs", time.Now(), &err)

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	j, err := db.GetSyncJob(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if j.Status.Terminal() {
		return nil, fmt.Errorf("job %s is %s: %w", id, j.Status, ErrInvalidTransition)
	}

	if u.Status != nil {
		if *u.Status == models.JobPending && j.Status != models.JobPending {
			return nil, fmt.Errorf("job %s cannot return to pending: %w", id, ErrInvalidTransition)
		}
		j.Status = *u.Status
	}
	for _, p := range []struct {
		src *int
		dst *int
	}{{u.TotalItems, &j.TotalItems}, {u.ProcessedItems, &j.ProcessedItems}, {u.FailedItems, &j.FailedItems}} {
		if p.src == nil {
			continue
		}
		if *p.src < 0 {
			return nil, fmt.Errorf("job counters must not be negative")
		}
		*p.dst = *p.src
	}
	if u.Error != nil {
		j.Error = *u.Error
	}
	j.UpdatedAt = timestamp(db.now())
	if j.Status.Terminal() {
		done := j.UpdatedAt
		j.CompletedAt = &done
	}

	_, err = db.conn.ExecContext(ctx, `UPDATE sync_jobs SET status = ?, total_items = ?, processed_items = ?,
		failed_items = ?, error = ?, updated_at = ?, completed_at = ? WHERE tenant_id = ? AND id = ?`,
		string(j.Status), j.TotalItems, j.ProcessedItems, j.FailedItems, j.Error, j.UpdatedAt,
		nullTime(j.CompletedAt), tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update sync job: %w", err)
	}
	return j, nil
}
