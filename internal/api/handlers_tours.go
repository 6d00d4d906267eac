// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/audit"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/database"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/metrics"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/validation"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ListTours handles GET /tours?status=&include_deleted=&limit=&offset=.
func (h *Handler) ListTours(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	offset, err := intQuery(r, "offset", 0, 0, 1<<30)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	opts := database.TourListOptions{
		Status:         models.TourStatus(r.URL.Query().Get("status")),
		IncludeDeleted: r.URL.Query().Get("include_deleted") == "true",
		Limit:          limit,
		Offset:         offset,
	}
	switch opts.Status {
	case "", models.TourDraft, models.TourPublished, models.TourArchived:
	default:
		respondErr(w, r, fmt.Errorf("unknown status %q: %w", opts.Status, errBadRequest))
		return
	}

	tours, total, err := h.db.ListTours(r.Context(), principal(r).TenantID, opts)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondPage(w, r, tours, Pagination{
		Total:   total,
		Count:   len(tours),
		Offset:  offset,
		Limit:   limit,
		HasMore: offset+len(tours) < total,
	})
}

// TourChanges handles GET /tours/changes?since=&limit=.
func (h *Handler) TourChanges(w http.ResponseWriter, r *http.Request) {
	since, err := timeQuery(r, "since")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", 100, 1, maxPageSize)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	changes, err := h.db.TourChanges(r.Context(), principal(r).TenantID, since, limit)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, changes)
}

// GetTour handles GET /tours/{id}. Tombstones are returned with
// deleted_at set.
func (h *Handler) GetTour(w http.ResponseWriter, r *http.Request) {
	t, err := h.db.GetTour(r.Context(), principal(r).TenantID, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, t)
}

// CreateTour handles POST /tours. Clients create tours offline, so the
// body normally carries its own UUID; the server assigns one otherwise.
func (h *Handler) CreateTour(w http.ResponseWriter, r *http.Request) {
	var t models.Tour
	if err := decodeBody(w, r, &t); err != nil {
		respondErr(w, r, err)
		return
	}
	p := principal(r)
	t.TenantID = p.TenantID
	if t.OwnerID == "" {
		t.OwnerID = p.UserID
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.TourDraft
	}
	if err := validation.ValidateStruct(&t); err != nil {
		respondErr(w, r, err)
		return
	}

	out, err := h.db.CreateTour(r.Context(), &t)
	if err != nil {
		metrics.TourWrites.WithLabelValues("create", outcome(err)).Inc()
		h.recordConflict(r, "create", t.ID, err)
		respondErr(w, r, err)
		return
	}
	metrics.TourWrites.WithLabelValues("create", "ok").Inc()
	logging.Ctx(r.Context()).Info().Str("tour_id", out.ID).Int64("version", out.Version).Msg("Tour created")
	h.publish(r, events.TourSaved, out.ID, out.Version, nil)
	h.record(r, audit.EventTourCreated, audit.OutcomeSuccess, "tour", out.ID, "Tour created",
		map[string]any{"version": out.Version, "title": out.Title})
	respondSuccess(w, r, http.StatusCreated, out)
}

// UpdateTour handles PUT /tours/{id}. A stale expected_version answers
// 409 with the server's current copy in error.details.current.
func (h *Handler) UpdateTour(w http.ResponseWriter, r *http.Request) {
	var req TourWriteRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	if req.Tour == nil {
		respondErr(w, r, fmt.Errorf("tour is required: %w", errBadRequest))
		return
	}
	id := chi.URLParam(r, "id")
	if req.Tour.ID != "" && req.Tour.ID != id {
		respondErr(w, r, fmt.Errorf("tour id %q does not match path: %w", req.Tour.ID, errBadRequest))
		return
	}
	t := req.Tour
	t.ID = id
	t.TenantID = principal(r).TenantID
	if err := validation.ValidateStruct(&req); err != nil {
		respondErr(w, r, err)
		return
	}

	out, err := h.db.UpdateTour(r.Context(), t, req.ExpectedVersion)
	if err != nil {
		metrics.TourWrites.WithLabelValues("update", outcome(err)).Inc()
		h.recordConflict(r, "update", id, err)
		respondErr(w, r, err)
		return
	}
	metrics.TourWrites.WithLabelValues("update", "ok").Inc()
	if out.Version != req.ExpectedVersion {
		h.publish(r, events.TourSaved, out.ID, out.Version, nil)
		h.record(r, audit.EventTourUpdated, audit.OutcomeSuccess, "tour", out.ID, "Tour updated",
			map[string]int64{"version": out.Version, "expected_version": req.ExpectedVersion})
	}
	respondSuccess(w, r, http.StatusOK, out)
}

// DeleteTour handles DELETE /tours/{id}?expected_version=. The tour stays
// in the change feed as a tombstone.
func (h *Handler) DeleteTour(w http.ResponseWriter, r *http.Request) {
	expected, ok, err := int64Query(r, "expected_version")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if !ok {
		respondErr(w, r, fmt.Errorf("expected_version is required: %w", errBadRequest))
		return
	}
	id := chi.URLParam(r, "id")
	out, err := h.db.DeleteTour(r.Context(), principal(r).TenantID, id, expected)
	if err != nil {
		metrics.TourWrites.WithLabelValues("delete", outcome(err)).Inc()
		h.recordConflict(r, "delete", id, err)
		respondErr(w, r, err)
		return
	}
	metrics.TourWrites.WithLabelValues("delete", "ok").Inc()
	if out.Version == expected+1 {
		logging.Ctx(r.Context()).Info().Str("tour_id", out.ID).Msg("Tour deleted")
		h.publish(r, events.TourDeleted, out.ID, out.Version, nil)
		h.record(r, audit.EventTourDeleted, audit.OutcomeSuccess, "tour", out.ID, "Tour deleted",
			map[string]int64{"version": out.Version})
	}
	respondSuccess(w, r, http.StatusOK, out)
}

// recordConflict audits writes refused because the caller's copy was stale.
func (h *Handler) recordConflict(r *http.Request, op, id string, err error) {
	if outcome(err) != "conflict" {
		return
	}
	h.record(r, audit.EventTourConflict, audit.OutcomeFailure, "tour", id, "Tour "+op+" rejected: "+err.Error(),
		map[string]string{"op": op})
}

func outcome(err error) string {
	switch {
	case errors.Is(err, database.ErrVersionConflict), errors.Is(err, database.ErrAlreadyExists):
		return "conflict"
	case errors.Is(err, database.ErrNotFound):
		return "not_found"
	}
	return "error"
}
