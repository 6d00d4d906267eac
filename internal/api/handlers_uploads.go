// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/audit"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/upload"
)

// InitUpload handles POST /uploads.
func (h *Handler) InitUpload(w http.ResponseWriter, r *http.Request) {
	var req upload.InitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	p := principal(r)
	s, err := h.uploads.Init(r.Context(), p.TenantID, p.UserID, req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusCreated, s)
}

// PutChunk handles PUT /uploads/{id}/chunks/{index}. The body is the raw
// chunk; X-Chunk-Checksum carries its SHA-256.
func (h *Handler) PutChunk(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		respondErr(w, r, fmt.Errorf("chunk index must be a non-negative integer: %w", errBadRequest))
		return
	}
	checksum := r.Header.Get(ChunkChecksumHeader)
	if checksum == "" {
		respondErr(w, r, fmt.Errorf("%s header is required: %w", ChunkChecksumHeader, errBadRequest))
		return
	}
	receipt, err := h.uploads.PutChunk(r.Context(), principal(r).TenantID, chi.URLParam(r, "id"), index, checksum, r.Body)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, receipt)
}

// UploadStatus handles GET /uploads/{id}.
func (h *Handler) UploadStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.uploads.Status(r.Context(), principal(r).TenantID, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, report)
}

// CompleteUpload handles POST /uploads/{id}/complete. Reassembly runs in
// the background; clients poll GET /uploads/{id}.
func (h *Handler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	s, err := h.uploads.Complete(r.Context(), principal(r).TenantID, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	h.record(r, audit.EventUploadCompleted, audit.OutcomeSuccess, "upload", s.ID, "Upload completed",
		map[string]any{"kind": s.Kind, "filename": s.Filename, "size": s.TotalSize, "status": s.Status})
	status := http.StatusAccepted
	if s.Status == models.UploadCompleted {
		status = http.StatusOK
	}
	respondSuccess(w, r, status, s)
}

// AbortUpload handles DELETE /uploads/{id}.
func (h *Handler) AbortUpload(w http.ResponseWriter, r *http.Request) {
	s, err := h.uploads.Abort(r.Context(), principal(r).TenantID, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	h.record(r, audit.EventUploadAborted, audit.OutcomeSuccess, "upload", s.ID, "Upload aborted",
		map[string]any{"kind": s.Kind, "filename": s.Filename})
	respondSuccess(w, r, http.StatusOK, s)
}

// UploadContent handles GET /uploads/{id}/content.
func (h *Handler) UploadContent(w http.ResponseWriter, r *http.Request) {
	rc, s, err := h.uploads.Open(r.Context(), principal(r).TenantID, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	defer rc.Close()

	ct := s.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.FormatInt(s.TotalSize, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": s.Filename}))
	w.Header().Set("X-Checksum-SHA256", s.Checksum)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("upload_id", s.ID).Msg("Upload content stream interrupted")
	}
}

// ListBackups handles GET /backups?status=&limit=.
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	status := models.UploadStatus(r.URL.Query().Get("status"))
	sessions, err := h.db.ListUploadSessions(r.Context(), principal(r).TenantID, models.UploadBackup, status, limit)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, sessions)
}
