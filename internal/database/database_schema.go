// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package database

import (
	"context"
	"fmt"
)

// Only primary keys are indexed: DuckDB rewrites updates of indexed
// columns as delete+insert, which the versioned tour updates would hit.
var schema = []struct {
	name string
	ddl  string
}{
	{"tours", `CREATE TABLE IF NOT EXISTS tours (
		id VARCHAR PRIMARY KEY,
		tenant_id VARCHAR NOT NULL,
		owner_id VARCHAR NOT NULL DEFAULT '',
		title VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		version BIGINT NOT NULL,
		content_hash VARCHAR NOT NULL,
		body VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		deleted_at TIMESTAMP
	)`},
	{"sync_jobs", `CREATE TABLE IF NOT EXISTS sync_jobs (
		id VARCHAR PRIMARY KEY,
		tenant_id VARCHAR NOT NULL,
		user_id VARCHAR NOT NULL DEFAULT '',
		client_id VARCHAR NOT NULL DEFAULT '',
		kind VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		total_items INTEGER NOT NULL DEFAULT 0,
		processed_items INTEGER NOT NULL DEFAULT 0,
		failed_items INTEGER NOT NULL DEFAULT 0,
		error VARCHAR NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	)`},
	{"upload_sessions", `CREATE TABLE IF NOT EXISTS upload_sessions (
		id VARCHAR PRIMARY KEY,
		tenant_id VARCHAR NOT NULL,
		user_id VARCHAR NOT NULL DEFAULT '',
		kind VARCHAR NOT NULL,
		filename VARCHAR NOT NULL,
		content_type VARCHAR NOT NULL DEFAULT '',
		total_size BIGINT NOT NULL,
		chunk_size BIGINT NOT NULL,
		total_chunks INTEGER NOT NULL,
		checksum VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		blob_key VARCHAR NOT NULL DEFAULT '',
		error VARCHAR NOT NULL DEFAULT '',
		job_id VARCHAR NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	)`},
	{"upload_chunks", `CREATE TABLE IF NOT EXISTS upload_chunks (
		session_id VARCHAR NOT NULL,
		chunk_index INTEGER NOT NULL,
		size BIGINT NOT NULL,
		checksum VARCHAR NOT NULL,
		received_at TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, chunk_index)
	)`},
	{"audit_events", `CREATE TABLE IF NOT EXISTS audit_events (
		id VARCHAR PRIMARY KEY,
		ts TIMESTAMP NOT NULL,
		tenant_id VARCHAR NOT NULL,
		type VARCHAR NOT NULL,
		outcome VARCHAR NOT NULL,
		actor_id VARCHAR NOT NULL DEFAULT '',
		actor_role VARCHAR NOT NULL DEFAULT '',
		client_id VARCHAR NOT NULL DEFAULT '',
		target_type VARCHAR NOT NULL DEFAULT '',
		target_id VARCHAR NOT NULL DEFAULT '',
		description VARCHAR NOT NULL DEFAULT '',
		metadata VARCHAR,
		source_ip VARCHAR NOT NULL DEFAULT '',
		request_id VARCHAR NOT NULL DEFAULT ''
	)`},
}

func (db *DB) createTables(ctx context.Context) error {
	for _, t := range schema {
		if _, err := db.conn.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}
	}
	return nil
}
