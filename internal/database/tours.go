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

	"github.com/goccy/go-json"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

// TourListOptions filters ListTours.
type TourListOptions struct {
	Status         models.TourStatus
	IncludeDeleted bool
	Limit          int
	Offset         int
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func decodeTour(body string) (*models.Tour, error) {
	var t models.Tour
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, fmt.Errorf("failed to decode tour body: %w", err)
	}
	return &t, nil
}

func getTour(ctx context.Context, q queryRower, tenantID, id string) (*models.Tour, error) {
	var body string
	err := q.QueryRowContext(ctx,
		`SELECT body FROM tours WHERE tenant_id = ? AND id = ?`, tenantID, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tour: %w", err)
	}
	return decodeTour(body)
}

// nextUpdatedAt returns a timestamp strictly after every updated_at of
// the tenant. The change feed relies on updated_at being unique per
// tenant so a cursor never skips a row. Caller holds writeMu.
func (db *DB) nextUpdatedAt(ctx context.Context, q queryRower, tenantID string) (time.Time, error) {
	var last sql.NullTime
	if err := q.QueryRowContext(ctx,
		`SELECT max(updated_at) FROM tours WHERE tenant_id = ?`, tenantID).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("failed to read last update time: %w", err)
	}
	now := timestamp(db.now())
	if last.Valid && !now.After(last.Time.UTC()) {
		now = last.Time.UTC().Add(time.Microsecond)
	}
	return now, nil
}

// GetTour returns a tour, tombstones included.
func (db *DB) GetTour(ctx context.Context, tenantID, id string) (t *models.Tour, err error) {
	defer observe("select", "tours", time.Now(), &err)
	return getTour(ctx, db.conn, tenantID, id)
}

// CreateTour stores a new tour at version 1. Re-creating an existing tour
// with identical content returns the stored copy, so a client may retry a
// create whose response it never saw.
func (db *DB) CreateTour(ctx context.Context, in *models.Tour) (out *models.Tour, err error) {
	defer observe("insert", "tours", time.Now(), &err)

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ownerTenant, body string
	err = tx.QueryRowContext(ctx, `SELECT tenant_id, body FROM tours WHERE id = ?`, in.ID).Scan(&ownerTenant, &body)
	switch {
	case err == nil:
		if ownerTenant == in.TenantID {
			existing, derr := decodeTour(body)
			if derr != nil {
				return nil, derr
			}
			if !existing.IsDeleted() && existing.ContentHash() == in.ContentHash() {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("tour %s: %w", in.ID, ErrAlreadyExists)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to check tour: %w", err)
	}

	t := in.Clone()
	t.Version = 1
	t.DeletedAt = nil
	if t.CreatedAt.IsZero() {
		t.CreatedAt = db.now()
	}
	t.CreatedAt = timestamp(t.CreatedAt)
	if t.UpdatedAt, err = db.nextUpdatedAt(ctx, tx, t.TenantID); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tour: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tours
		(id, tenant_id, owner_id, title, status, version, content_hash, body, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		t.ID, t.TenantID, t.OwnerID, t.Title, string(t.Status), t.Version, t.ContentHash(), string(encoded),
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert tour: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit tour: %w", err)
	}
	return t, nil
}

// UpdateTour replaces a tour's content if its version still equals
// expectedVersion. On mismatch it returns a *VersionConflictError holding
// the current copy. Updating a tombstone at its current version restores
// the tour. An update with unchanged content is a no-op and keeps the
// version.
func (db *DB) UpdateTour(ctx context.Context, in *models.Tour, expectedVersion int64) (out *models.Tour, err error) {
	defer observe("update", "tours", time.Now(), &err)

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getTour(ctx, tx, in.TenantID, in.ID)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, &VersionConflictError{Expected: expectedVersion, Current: current}
	}
	if !current.IsDeleted() && current.ContentHash() == in.ContentHash() {
		return current, nil
	}

	t := in.Clone()
	t.TenantID = current.TenantID
	t.CreatedAt = current.CreatedAt
	if t.OwnerID == "" {
		t.OwnerID = current.OwnerID
	}
	t.Version = current.Version + 1
	t.DeletedAt = nil
	if t.UpdatedAt, err = db.nextUpdatedAt(ctx, tx, t.TenantID); err != nil {
		return nil, err
	}
	if err = writeTour(ctx, tx, t, expectedVersion); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit tour: %w", err)
	}
	return t, nil
}

// DeleteTour turns a tour into a tombstone. Tombstones stay in the change
// feed so offline clients learn about the delete. Deleting a tombstone
// returns it unchanged.
func (db *DB) DeleteTour(ctx context.Context, tenantID, id string, expectedVersion int64) (out *models.Tour, err error) {
	defer observe("delete", "tours", time.Now(), &err)

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getTour(ctx, tx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if current.IsDeleted() {
		return current, nil
	}
	if current.Version != expectedVersion {
		return nil, &VersionConflictError{Expected: expectedVersion, Current: current}
	}

	t := current.Clone()
	t.Version++
	if t.UpdatedAt, err = db.nextUpdatedAt(ctx, tx, tenantID); err != nil {
		return nil, err
	}
	deletedAt := t.UpdatedAt
	t.DeletedAt = &deletedAt
	if err = writeTour(ctx, tx, t, expectedVersion); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit tour delete: %w", err)
	}
	return t, nil
}

func writeTour(ctx context.Context, tx *sql.Tx, t *models.Tour, expectedVersion int64) error {
	encoded, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode tour: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE tours SET
		owner_id = ?, title = ?, status = ?, version = ?, content_hash = ?, body = ?,
		updated_at = ?, deleted_at = ?
		WHERE tenant_id = ? AND id = ? AND version = ?`,
		t.OwnerID, t.Title, string(t.Status), t.Version, t.ContentHash(), string(encoded),
		t.UpdatedAt, nullTime(t.DeletedAt),
		t.TenantID, t.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update tour: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return fmt.Errorf("tour %s: %w", t.ID, ErrVersionConflict)
	}
	return nil
}

// ListTours returns a page of tours and the total number matching.
func (db *DB) ListTours(ctx context.Context, tenantID string, opts TourListOptions) (tours []models.Tour, total int, err error) {
	defer observe("select", "tours", time.Now(), &err)

	where := []string{"tenant_id = ?"}
	args := []any{tenantID}
	if !opts.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}
	clause := strings.Join(where, " AND ")

	if err = db.conn.QueryRowContext(ctx, "SELECT count(*) FROM tours WHERE "+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tours: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	//nolint:gosec // clause is built from constant fragments only
	rows, err := db.conn.QueryContext(ctx,
		"SELECT body FROM tours WHERE "+clause+" ORDER BY updated_at DESC, id LIMIT ? OFFSET ?",
		append(args, limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tours: %w", err)
	}
	defer rows.Close()

	tours, err = scanTourBodies(rows)
	return tours, total, err
}

// TourChanges returns tours of a tenant updated after since, oldest first,
// tombstones included. Cursor is the updated_at of the last returned tour,
// or since when nothing changed.
func (db *DB) TourChanges(ctx context.Context, tenantID string, since time.Time, limit int) (out *models.TourChanges, err error) {
	defer observe("select", "tours", time.Now(), &err)

	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT body FROM tours WHERE tenant_id = ? AND updated_at > ? ORDER BY updated_at LIMIT ?`,
		tenantID, timestamp(since), limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to query tour changes: %w", err)
	}
	defer rows.Close()

	tours, err := scanTourBodies(rows)
	if err != nil {
		return nil, err
	}

	out = &models.TourChanges{Tours: tours, Cursor: since.UTC()}
	if len(tours) > limit {
		out.Tours = tours[:limit]
		out.HasMore = true
	}
	if n := len(out.Tours); n > 0 {
		out.Cursor = out.Tours[n-1].UpdatedAt
	}
	return out, nil
}

func scanTourBodies(rows *sql.Rows) ([]models.Tour, error) {
	tours := []models.Tour{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan tour: %w", err)
		}
		t, err := decodeTour(body)
		if err != nil {
			return nil, err
		}
		tours = append(tours, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tours: %w", err)
	}
	return tours, nil
}
