// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

// Package validation validates HTTP request bodies with
// go-playground/validator and turns failures into the VALIDATION_ERROR
// shape used by the API envelope.
//
// Field names in messages are the JSON names, so a client sees
// "expected_version is required" rather than the Go field name.
//
// Custom tags:
//   - sha256hex: 64 lowercase hex characters
//   - ulid: a 26 character ULID
//   - basename: a file name without path separators
package validation
