// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/websocket"
)

// RelayEvent handles POST /events. A client announces a local change so
// other clients of the tenant can pull early. The tenant always comes
// from the caller's credentials.
func (h *Handler) RelayEvent(w http.ResponseWriter, r *http.Request) {
	var ev events.Event
	if err := decodeBody(w, r, &ev); err != nil {
		respondErr(w, r, err)
		return
	}
	ev.TenantID = principal(r).TenantID
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	if ev.Origin == "" {
		ev.Origin = clientID(r)
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := ev.Validate(); err != nil {
		respondErr(w, r, fmt.Errorf("%v: %w", err, errBadRequest))
		return
	}
	if h.bus == nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "event bus unavailable", nil)
		return
	}
	if err := h.bus.Publish(r.Context(), ev); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("type", string(ev.Type)).Msg("Failed to relay event")
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "event bus unavailable", nil)
		return
	}
	respondSuccess(w, r, http.StatusAccepted, ev)
}

// ServeWS handles GET /ws. The connection receives the tenant's events
// except those originating from its own client id.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "websocket relay unavailable", nil)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	c := websocket.NewClient(h.hub, conn, principal(r).TenantID, wsClientID(r))
	select {
	case h.hub.Register <- c:
		c.Start()
	case <-r.Context().Done():
		_ = conn.Close()
	}
}
