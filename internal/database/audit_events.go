// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/audit"
)

const auditColumns = `id, ts, tenant_id, type, outcome, actor_id, actor_role, client_id,
	target_type, target_id, description, metadata, source_ip, request_id`

// SaveAuditEvent appends one audit record.
func (db *DB) SaveAuditEvent(ctx context.Context, e *audit.Event) (err error) {
	defer observe("insert", "audit_events", time.Now(), &err)

	var meta sql.NullString
	if len(e.Metadata) > 0 {
		meta = sql.NullString{String: string(e.Metadata), Valid: true}
	}
	_, err = db.conn.ExecContext(ctx, `INSERT INTO audit_events (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, timestamp(e.Timestamp), e.TenantID, string(e.Type), string(e.Outcome),
		e.ActorID, e.ActorRole, e.ClientID, e.TargetType, e.TargetID, e.Description,
		meta, e.SourceIP, e.RequestID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// QueryAuditEvents returns matching records, newest first.
func (db *DB) QueryAuditEvents(ctx context.Context, f audit.QueryFilter) (out []audit.Event, err error) {
	defer observe("select", "audit_events", time.Now(), &err)

	where := []string{"1 = 1"}
	var args []any
	if f.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if len(f.Types) > 0 {
		marks := make([]string, len(f.Types))
		for i, t := range f.Types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(marks, ", ")+")")
	}
	if f.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, f.ActorID)
	}
	if f.TargetID != "" {
		where = append(where, "target_id = ?")
		args = append(args, f.TargetID)
	}
	if !f.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, timestamp(f.Since))
	}
	if !f.Until.IsZero() {
		where = append(where, "ts < ?")
		args = append(args, timestamp(f.Until))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	//nolint:gosec // where is built from constant fragments only
	rows, err := db.conn.QueryContext(ctx, `SELECT `+auditColumns+` FROM audit_events WHERE `+
		strings.Join(where, " AND ")+` ORDER BY ts DESC, id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	out = []audit.Event{}
	for rows.Next() {
		var (
			e            audit.Event
			typ, outcome string
			meta         sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.TenantID, &typ, &outcome, &e.ActorID, &e.ActorRole,
			&e.ClientID, &e.TargetType, &e.TargetID, &e.Description, &meta, &e.SourceIP, &e.RequestID); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Type = audit.EventType(typ)
		e.Outcome = audit.Outcome(outcome)
		e.Timestamp = e.Timestamp.UTC()
		if meta.Valid {
			e.Metadata = []byte(meta.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeAuditEvents deletes records older than the cutoff.
func (db *DB) PurgeAuditEvents(ctx context.Context, olderThan time.Time) (n int64, err error) {
	defer observe("delete", "audit_events", time.Now(), &err)

	res, err := db.conn.ExecContext(ctx, `DELETE FROM audit_events WHERE ts < ?`, timestamp(olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit events: %w", err)
	}
	return res.RowsAffected()
}
