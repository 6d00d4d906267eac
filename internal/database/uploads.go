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
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

const uploadColumns = `id, tenant_id, user_id, kind, filename, content_type, total_size, chunk_size,
	total_chunks, checksum, status, blob_key, error, job_id, created_at, updated_at, expires_at`

func scanUpload(s rowScanner) (*models.UploadSession, error) {
	var (
		u      models.UploadSession
		kind   string
		status string
	)
	if err := s.Scan(&u.ID, &u.TenantID, &u.UserID, &kind, &u.Filename, &u.ContentType, &u.TotalSize,
		&u.ChunkSize, &u.TotalChunks, &u.Checksum, &status, &u.BlobKey, &u.Error, &u.JobID,
		&u.CreatedAt, &u.UpdatedAt, &u.ExpiresAt); err != nil {
		return nil, err
	}
	u.Kind = models.UploadKind(kind)
	u.Status = models.UploadStatus(status)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	u.ExpiresAt = u.ExpiresAt.UTC()
	return &u, nil
}

// CreateUploadSession inserts an open session, assigning its ULID.
func (db *DB) CreateUploadSession(ctx context.Context, in *models.UploadSession, ttl time.Duration) (out *models.UploadSession, err error) {
	defer observe("insert", "upload_sessions", time.Now(), &err)

	s := *in
	s.ID = ulid.Make().String()
	s.Status = models.UploadOpen
	s.CreatedAt = timestamp(db.now())
	s.UpdatedAt = s.CreatedAt
	s.ExpiresAt = s.CreatedAt.Add(ttl)

	_, err = db.conn.ExecContext(ctx, `INSERT INTO upload_sessions (`+uploadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.TenantID, s.UserID, string(s.Kind), s.Filename, s.ContentType, s.TotalSize, s.ChunkSize,
		s.TotalChunks, s.Checksum, string(s.Status), s.BlobKey, s.Error, s.JobID,
		s.CreatedAt, s.UpdatedAt, s.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert upload session: %w", err)
	}
	return &s, nil
}

// GetUploadSession returns a tenant's session.
func (db *DB) GetUploadSession(ctx context.Context, tenantID, id string) (s *models.UploadSession, err error) {
	defer observe("select", "upload_sessions", time.Now(), &err)

	s, err = scanUpload(db.conn.QueryRowContext(ctx,
		`SELECT `+uploadColumns+` FROM upload_sessions WHERE tenant_id = ? AND id = ?`, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query upload session: %w", err)
	}
	return s, nil
}

// ListUploadSessions returns a tenant's sessions of a kind, newest first.
// An empty status matches every status.
func (db *DB) ListUploadSessions(ctx context.Context, tenantID string, kind models.UploadKind, status models.UploadStatus, limit int) (out []models.UploadSession, err error) {
	defer observe("select", "upload_sessions", time.Now(), &err)

	where := []string{"tenant_id = ?", "kind = ?"}
	args := []any{tenantID, string(kind)}
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, string(status))
	}
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	//nolint:gosec // where is built from constant fragments only
	rows, err := db.conn.QueryContext(ctx, `SELECT `+uploadColumns+` FROM upload_sessions WHERE `+
		strings.Join(where, " AND ")+` ORDER BY id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload sessions: %w", err)
	}
	defer rows.Close()
	return collectUploads(rows)
}

// ListExpiredUploadSessions returns non-terminal sessions of every tenant
// whose expiry is before now.
func (db *DB) ListExpiredUploadSessions(ctx context.Context, now time.Time) (out []models.UploadSession, err error) {
	defer observe("select", "upload_sessions", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `SELECT `+uploadColumns+` FROM upload_sessions
		WHERE expires_at < ? AND status IN ('open', 'assembling')`, timestamp(now))
	if err != nil {
		return nil, fmt.Errorf("failed to list expired upload sessions: %w", err)
	}
	defer rows.Close()
	return collectUploads(rows)
}

// ListUploadSessionsByStatus returns every tenant's sessions in status,
// oldest first.
func (db *DB) ListUploadSessionsByStatus(ctx context.Context, status models.UploadStatus) (out []models.UploadSession, err error) {
	defer observe("select", "upload_sessions", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `SELECT `+uploadColumns+` FROM upload_sessions
		WHERE status = ? ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s upload sessions: %w", status, err)
	}
	defer rows.Close()
	return collectUploads(rows)
}

func collectUploads(rows *sql.Rows) ([]models.UploadSession, error) {
	out := []models.UploadSession{}
	for rows.Next() {
		s, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// TransitionUpload moves a session to status `to` if its current status is
// one of `from`. blobKey and errMsg are stored when non-empty.
func (db *DB) TransitionUpload(ctx context.Context, id string, from []models.UploadStatus, to models.UploadStatus, blobKey, errMsg string) (out *models.UploadSession, err error) {
	defer observe("update", "upload_sessions", time.Now(), &err)

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	s, err := scanUpload(db.conn.QueryRowContext(ctx,
		`SELECT `+uploadColumns+` FROM upload_sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query upload session: %w", err)
	}
	if !slices.Contains(from, s.Status) {
		return s, fmt.Errorf("upload %s is %s, cannot become %s: %w", id, s.Status, to, ErrInvalidTransition)
	}

	s.Status = to
	if blobKey != "" {
		s.BlobKey = blobKey
	}
	if errMsg != "" {
		s.Error = errMsg
	}
	s.UpdatedAt = timestamp(db.now())

	_, err = db.conn.ExecContext(ctx, `UPDATE upload_sessions SET status = ?, blob_key = ?, error = ?, updated_at = ?
		WHERE id = ?`, string(s.Status), s.BlobKey, s.Error, s.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update upload session: %w", err)
	}
	return s, nil
}

// TouchUpload pushes a session's expiry forward.
func (db *DB) TouchUpload(ctx context.Context, id string, expiresAt time.Time) (err error) {
	defer observe("update", "upload_sessions", time.Now(), &err)

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	_, err = db.conn.ExecContext(ctx, `UPDATE upload_sessions SET expires_at = ?, updated_at = ? WHERE id = ?`,
		timestamp(expiresAt), timestamp(db.now()), id)
	if err != nil {
		return fmt.Errorf("failed to touch upload session: %w", err)
	}
	return nil
}

// RecordChunk stores or replaces the receipt of one chunk.
func (db *DB) RecordChunk(ctx context.Context, sessionID string, r models.ChunkReceipt) (err error) {
	defer observe("upsert", "upload_chunks", time.Now(), &err)

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	_, err = db.conn.ExecContext(ctx, `INSERT OR REPLACE INTO upload_chunks
		(session_id, chunk_index, size, checksum, received_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, r.Index, r.Size, r.Checksum, timestamp(r.ReceivedAt))
	if err != nil {
		return fmt.Errorf("failed to record chunk %d: %w", r.Index, err)
	}
	return nil
}

// ListChunks returns the receipts of a session ordered by index.
func (db *DB) ListChunks(ctx context.Context, sessionID string) (out []models.ChunkReceipt, err error) {
	defer observe("select", "upload_chunks", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `SELECT chunk_index, size, checksum, received_at
		FROM upload_chunks WHERE session_id = ? ORDER BY chunk_index`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	out = []models.ChunkReceipt{}
	for rows.Next() {
		var r models.ChunkReceipt
		if err := rows.Scan(&r.Index, &r.Size, &r.Checksum, &r.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		r.ReceivedAt = r.ReceivedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteChunks drops every receipt of a session.
func (db *DB) DeleteChunks(ctx context.Context, sessionID string) (err error) {
	defer observe("delete", "upload_chunks", time.Now(), &err)

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	if _, err = db.conn.ExecContext(ctx, `DELETE FROM upload_chunks WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}
