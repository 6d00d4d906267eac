// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/auth"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/authz"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/database"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/upload"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/validation"
)

// Error codes of the envelope. Clients map them back to sentinel errors.
const (
	CodeBadRequest        = "BAD_REQUEST"
	CodeValidation        = validation.Code
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeAlreadyExists     = "ALREADY_EXISTS"
	CodeVersionConflict   = "VERSION_CONFLICT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeTooLarge          = "PAYLOAD_TOO_LARGE"
	CodeChunkIndex        = "CHUNK_INDEX_OUT_OF_RANGE"
	CodeChunkSize         = "CHUNK_SIZE_MISMATCH"
	CodeChunkChecksum     = "CHUNK_CHECKSUM_MISMATCH"
	CodeIncomplete        = "UPLOAD_INCOMPLETE"
	CodeNotOpen           = "UPLOAD_NOT_OPEN"
	CodeNotCompleted      = "UPLOAD_NOT_COMPLETED"
	CodeRateLimited       = "TOO_MANY_REQUESTS"
	CodeUnavailable       = "SERVICE_UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
)

// errBadRequest marks malformed input that is not a validation failure
// (unparseable JSON, bad query parameters).
var errBadRequest = errors.New("bad request")

type errorMapping struct {
	status  int
	code    string
	message string
	details map[string]any
}

var sentinels = []struct {
	err    error
	status int
	code   string
}{
	{database.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{upload.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{database.ErrAlreadyExists, http.StatusConflict, CodeAlreadyExists},
	{database.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition},
	{upload.ErrTooLarge, http.StatusRequestEntityTooLarge, CodeTooLarge},
	{upload.ErrInvalidRequest, http.StatusBadRequest, CodeValidation},
	{upload.ErrChunkIndex, http.StatusBadRequest, CodeChunkIndex},
	{upload.ErrChunkSize, http.StatusBadRequest, CodeChunkSize},
	{upload.ErrChunkChecksum, http.StatusUnprocessableEntity, CodeChunkChecksum},
	{upload.ErrIncomplete, http.StatusConflict, CodeIncomplete},
	{upload.ErrNotOpen, http.StatusConflict, CodeNotOpen},
	{upload.ErrNotCompleted, http.StatusConflict, CodeNotCompleted},
	{auth.ErrNoCredentials, http.StatusUnauthorized, CodeUnauthorized},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, CodeUnauthorized},
	{auth.ErrExpiredCredentials, http.StatusUnauthorized, CodeUnauthorized},
	{authz.ErrForbidden, http.StatusForbidden, CodeForbidden},
	{authz.ErrNoPrincipal, http.StatusForbidden, CodeForbidden},
	{errBadRequest, http.StatusBadRequest, CodeBadRequest},
}

func classify(err error) errorMapping {
	var vce *database.VersionConflictError
	if errors.As(err, &vce) {
		return errorMapping{
			status:  http.StatusConflict,
			code:    CodeVersionConflict,
			message: vce.Error(),
			details: map[string]any{"expected_version": vce.Expected, "current": vce.Current},
		}
	}
	var verr *validation.Error
	if errors.As(err, &verr) {
		return errorMapping{
			status:  http.StatusBadRequest,
			code:    CodeValidation,
			message: verr.Error(),
			details: verr.Details(),
		}
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return errorMapping{status: s.status, code: s.code}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errorMapping{status: http.StatusServiceUnavailable, code: CodeUnavailable, message: "request timed out"}
	}
	return errorMapping{status: http.StatusInternalServerError, code: CodeInternal, message: "internal server error"}
}

// authError and denyError plug the envelope into the auth middlewares.
func authError(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="planpoint"`)
	respondErr(w, r, err)
}

func denyError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, authz.ErrEnforcerFailed) {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "authorization check failed", nil)
		return
	}
	respondErr(w, r, err)
}
