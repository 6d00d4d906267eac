// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package models

import "time"

type SyncJobKind string

const (
	JobTourSync     SyncJobKind = "tour_sync"
	JobPhotoUpload  SyncJobKind = "photo_upload"
	JobBackupUpload SyncJobKind = "backup_upload"
)

type SyncJobStatus string

const (
	JobPending   SyncJobStatus = "pending"
	JobRunning   SyncJobStatus = "running"
	JobCompleted SyncJobStatus = "completed"
	JobFailed    SyncJobStatus = "failed"
	JobCanceled  SyncJobStatus = "canceled"
)

// Terminal reports whether no further updates are accepted.
func (s SyncJobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCanceled
}

// SyncJob is a server-tracked record of a batch synchronization.
type SyncJob struct {
	ID             string        `json:"id"` // ULID
	TenantID       string        `json:"tenant_id"`
	UserID         string        `json:"user_id"`
	ClientID       string        `json:"client_id,omitempty"`
	Kind           SyncJobKind   `json:"kind"`
	Status         SyncJobStatus `json:"status"`
	TotalItems     int           `json:"total_items"`
	ProcessedItems int           `json:"processed_items"`
	FailedItems    int           `json:"failed_items"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

// Progress returns processed+failed over total, 0..1. Zero-item jobs
// report 1 once terminal.
func (j *SyncJob) Progress() float64 {
	if j.TotalItems <= 0 {
		if j.Status.Terminal() {
			return 1
		}
		return 0
	}
	p := float64(j.ProcessedItems+j.FailedItems) / float64(j.TotalItems)
	if p > 1 {
		p = 1
	}
	return p
}

// SyncJobUpdate is a partial update. Nil fields are left alone.
type SyncJobUpdate struct {
	Status         *SyncJobStatus `json:"status,omitempty"`
	TotalItems     *int           `json:"total_items,omitempty"`
	ProcessedItems *int           `json:"processed_items,omitempty"`
	FailedItems    *int           `json:"failed_items,omitempty"`
	Error          *string        `json:"error,omitempty"`
}
