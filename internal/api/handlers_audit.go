// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package api

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/audit"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/authz"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
)

// record queues an audit event attributed to the caller of r.
func (h *Handler) record(r *http.Request, typ audit.EventType, out audit.Outcome, targetType, targetID, desc string, meta any) {
	if h.auditLog == nil {
		return
	}
	p := principal(r)
	e := &audit.Event{
		TenantID:    p.TenantID,
		Type:        typ,
		Outcome:     out,
		ActorID:     p.UserID,
		ActorRole:   p.Role,
		ClientID:    clientID(r),
		TargetType:  targetType,
		TargetID:    targetID,
		Description: desc,
		SourceIP:    remoteIP(r),
		RequestID:   logging.RequestIDFromContext(r.Context()),
	}
	if meta != nil {
		e.Metadata = audit.Meta(meta)
	}
	h.auditLog.Log(e)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// deny answers a refused authorization check and audits policy denials.
func (h *Handler) deny(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, authz.ErrForbidden) {
		h.record(r, audit.EventAuthzDenied, audit.OutcomeFailure, "route", r.URL.Path,
			"Request denied by policy", map[string]string{"method": r.Method})
	}
	denyError(w, r, err)
}

// ListAudit handles GET /audit. Results are always scoped to the
// caller's tenant.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.auditLog == nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "audit trail is disabled", nil)
		return
	}
	limit, err := intQuery(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	since, err := timeQuery(r, "since")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	until, err := timeQuery(r, "until")
	if err != nil {
		respondErr(w, r, err)
		return
	}

	q := r.URL.Query()
	f := audit.QueryFilter{
		TenantID: principal(r).TenantID,
		ActorID:  q.Get("actor"),
		TargetID: q.Get("target"),
		Since:    since,
		Until:    until,
		Limit:    limit,
	}
	for _, t := range strings.Split(q.Get("type"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.Types = append(f.Types, audit.EventType(t))
		}
	}

	events, err := h.auditLog.Query(r.Context(), f)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, events)
}
