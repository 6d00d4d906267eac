// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package upload

import "errors"

var (
	ErrNotFound       = errors.New("upload session not found")
	ErrInvalidRequest = errors.New("invalid upload request")
	ErrTooLarge       = errors.New("upload exceeds maximum size")
	ErrChunkIndex     = errors.New("chunk index out of range")
	ErrChunkSize      = errors.New("chunk has wrong size")
	ErrChunkChecksum  = errors.New("chunk checksum mismatch")
	ErrFileChecksum   = errors.New("assembled file checksum mismatch")
	ErrIncomplete     = errors.New("upload is missing chunks")
	ErrNotOpen        = errors.New("upload session is not open")
	ErrNotCompleted   = errors.New("upload is not completed")
	ErrUploadFailed   = errors.New("upload failed")
	ErrPollTimeout    = errors.New("timed out waiting for upload to settle")
)
