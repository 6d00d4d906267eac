// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package models

import "time"

type UploadKind string

const (
	UploadBackup UploadKind = "backup"
	UploadPhoto  UploadKind = "photo"
)

type UploadStatus string

const (
	UploadOpen       UploadStatus = "open"
	UploadAssembling UploadStatus = "assembling"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
	UploadAborted    UploadStatus = "aborted"
	UploadExpired    UploadStatus = "expired"
)

// Terminal reports whether the session can no longer change.
func (s UploadStatus) Terminal() bool {
	switch s {
	case UploadCompleted, UploadFailed, UploadAborted, UploadExpired:
		return true
	}
	return false
}

// UploadSession is the server-side state of one chunked upload.
type UploadSession struct {
	ID          string       `json:"id"` // ULID
	TenantID    string       `json:"tenant_id"`
	UserID      string       `json:"user_id"`
	Kind        UploadKind   `json:"kind"`
	Filename    string       `json:"filename"`
	ContentType string       `json:"content_type,omitempty"`
	TotalSize   int64        `json:"total_size"`
	ChunkSize   int64        `json:"chunk_size"`
	TotalChunks int          `json:"total_chunks"`
	Checksum    string       `json:"checksum"` // sha256 hex of the whole file
	Status      UploadStatus `json:"status"`
	BlobKey     string       `json:"blob_key,omitempty"`
	Error       string       `json:"error,omitempty"`
	JobID       string       `json:"job_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// ExpectedChunkSize returns the size chunk index must have. Every chunk is
// ChunkSize bytes except the last, which holds the remainder.
func (s *UploadSession) ExpectedChunkSize(index int) int64 {
	if index == s.TotalChunks-1 {
		return s.TotalSize - int64(s.TotalChunks-1)*s.ChunkSize
	}
	return s.ChunkSize
}

// ChunkCount returns ceil(total/chunk).
func ChunkCount(total, chunk int64) int {
	if chunk <= 0 || total <= 0 {
		return 0
	}
	return int((total + chunk - 1) / chunk)
}

// ChunkReceipt records one stored chunk.
type ChunkReceipt struct {
	Index      int       `json:"index"`
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum"`
	ReceivedAt time.Time `json:"received_at"`
}

// UploadStatusReport is what the status RPC returns to polling clients.
type UploadStatusReport struct {
	Session  UploadSession `json:"session"`
	Received []int         `json:"received"`
	Missing  []int         `json:"missing"`
	Bytes    int64         `json:"bytes_received"`
}

// Complete reports whether every chunk has been received.
func (r *UploadStatusReport) Complete() bool {
	return len(r.Missing) == 0
}
