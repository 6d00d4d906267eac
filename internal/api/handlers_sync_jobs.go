// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/database"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/metrics"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

// CreateSyncJob handles POST /sync/jobs.
func (h *Handler) CreateSyncJob(w http.ResponseWriter, r *http.Request) {
	var req SyncJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	p := principal(r)
	job, err := h.db.CreateSyncJob(r.Context(), &models.SyncJob{
		TenantID:   p.TenantID,
		UserID:     p.UserID,
		ClientID:   clientID(r),
		Kind:       req.Kind,
		TotalItems: req.TotalItems,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	h.publish(r, events.JobUpdated, "", 0, job)
	respondSuccess(w, r, http.StatusCreated, job)
}

// ListSyncJobs handles GET /sync/jobs?kind=&status=&limit=.
func (h *Handler) ListSyncJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	jobs, err := h.db.ListSyncJobs(r.Context(), principal(r).TenantID, database.SyncJobFilter{
		Kind:   models.SyncJobKind(r.URL.Query().Get("kind")),
		Status: models.SyncJobStatus(r.URL.Query().Get("status")),
		Limit:  limit,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, jobs)
}

// GetSyncJob handles GET /sync/jobs/{id}.
func (h *Handler) GetSyncJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.db.GetSyncJob(r.Context(), principal(r).TenantID, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, job)
}

// UpdateSyncJob handles PATCH /sync/jobs/{id}. Finished jobs answer 409.
func (h *Handler) UpdateSyncJob(w http.ResponseWriter, r *http.Request) {
	var req SyncJobPatch
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	job, err := h.db.UpdateSyncJob(r.Context(), principal(r).TenantID, chi.URLParam(r, "id"), req.update())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if job.Status.Terminal() {
		metrics.SyncJobsTotal.WithLabelValues(string(job.Kind), string(job.Status)).Inc()
	}
	h.publish(r, events.JobUpdated, "", 0, job)
	respondSuccess(w, r, http.StatusOK, job)
}
