// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
)

const readyTimeout = 2 * time.Second

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	Clients  int    `json:"websocket_clients,omitempty"`
}

// HealthLive answers as long as the process serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, HealthStatus{Status: "ok"})
}

// HealthReady checks the database.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	st := HealthStatus{Status: "ok", Database: "ok"}
	if h.hub != nil {
		st.Clients = h.hub.ClientCount()
	}
	if err := h.db.Ping(ctx); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Readiness check failed")
		st.Status, st.Database = "unavailable", err.Error()
		respondJSON(w, r, http.StatusServiceUnavailable, &Response{
			Status:   StatusError,
			Data:     st,
			Metadata: metadataFor(r),
			Error:    &APIError{Code: CodeUnavailable, Message: "database unavailable"},
		})
		return
	}
	respondSuccess(w, r, http.StatusOK, st)
}
