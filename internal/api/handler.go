// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package api

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	gws "github.com/gorilla/websocket"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/audit"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/database"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/upload"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/websocket"
)

// Handler holds the services behind the HTTP routes.
type Handler struct {
	db       *database.DB
	uploads  *upload.Manager
	bus      events.Publisher
	hub      *websocket.Hub
	upgrader gws.Upgrader
	origins  []string
	auditLog *audit.Logger
}

// NewHandler returns a handler. hub may be nil, in which case /ws
// answers 503.
func NewHandler(db *database.DB, uploads *upload.Manager, bus events.Publisher, hub *websocket.Hub) *Handler {
	h := &Handler{db: db, uploads: uploads, bus: bus, hub: hub}
	h.upgrader = gws.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// WithAudit records writes and denials to l. Without it nothing is
// audited.
func (h *Handler) WithAudit(l *audit.Logger) *Handler {
	h.auditLog = l
	return h
}

func (h *Handler) allowOrigins(origins []string) {
	h.origins = origins
}

// checkOrigin accepts non-browser clients (no Origin header), same-host
// pages, and the configured CORS origins.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.origins, "*") || slices.Contains(h.origins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// publish sends a best-effort notification; a lost event never fails a
// request that already changed state.
func (h *Handler) publish(r *http.Request, typ events.Type, tourID string, version int64, payload any) {
	if h.bus == nil {
		return
	}
	ev, err := events.New(typ, principal(r).TenantID, tourID, clientID(r), version, payload)
	if err == nil {
		err = h.bus.Publish(r.Context(), ev)
	}
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("type", string(typ)).Msg("Failed to publish sync event")
	}
}
