// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package api

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/audit"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/auth"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

// auditTrail polls GET /audit until at least n events match query.
func (ts *testServer) auditTrail(t *testing.T, tok, query string, n int) []audit.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, env := ts.do(t, call{method: http.MethodGet, path: "/api/v1/audit" + query, token: tok})
		expect(t, resp, env, http.StatusOK, "")
		got := decodeData[[]audit.Event](t, env)
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit%s returned %d events, want %d", query, len(got), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAuditTrail(t *testing.T) {
	ts := newTestServer(t, jwtSecurity())
	viewer := token(t, testTenant, "vic", auth.RoleViewer)
	editor := token(t, testTenant, "eve", auth.RoleEditor)
	admin := token(t, testTenant, "ada", auth.RoleAdmin)
	origin := map[string]string{ClientIDHeader: "tablet-7"}

	in := newTour("Gallery")
	resp, env := ts.do(t, call{method: http.MethodPost, path: "/api/v1/tours", body: in, token: editor, header: origin})
	expect(t, resp, env, http.StatusCreated, "")
	created := decodeData[models.Tour](t, env)

	stale := created.Clone()
	stale.Title = "Gallery (east)"
	resp, env = ts.do(t, call{method: http.MethodPut, path: "/api/v1/tours/" + in.ID,
		body: TourWriteRequest{ExpectedVersion: 7, Tour: stale}, token: editor})
	expect(t, resp, env, http.StatusConflict, CodeVersionConflict)

	for _, tok := range []string{viewer, editor} {
		resp, env = ts.do(t, call{method: http.MethodGet, path: "/api/v1/audit", token: tok})
		expect(t, resp, env, http.StatusForbidden, CodeForbidden)
	}

	resp, env = ts.do(t, call{method: http.MethodDelete,
		path: fmt.Sprintf("/api/v1/tours/%s?expected_version=%d", in.ID, created.Version), token: admin})
	expect(t, resp, env, http.StatusOK, "")

	tests := []struct {
		name  string
		query string
		want  int
		check func(t *testing.T, e audit.Event)
	}{
		{"created", "?type=tour.created", 1, func(t *testing.T, e audit.Event) {
			if e.ActorID != "eve" || e.ActorRole != auth.RoleEditor || e.ClientID != "tablet-7" || e.TargetID != in.ID {
				t.Errorf("created = %+v", e)
			}
			if e.SourceIP == "" || e.RequestID == "" {
				t.Errorf("missing source ip or request id: %+v", e)
			}
		}},
		{"conflict", "?type=tour.conflict", 1, func(t *testing.T, e audit.Event) {
			if e.Outcome != audit.OutcomeFailure || e.TargetID != in.ID {
				t.Errorf("conflict = %+v", e)
			}
		}},
		{"denied", "?type=authz.denied&actor=vic", 1, func(t *testing.T, e audit.Event) {
			if e.TargetType != "route" || e.TargetID != "/api/v1/audit" {
				t.Errorf("denied = %+v", e)
			}
		}},
		{"deleted by target", "?type=tour.deleted&target=" + in.ID, 1, func(t *testing.T, e audit.Event) {
			if e.ActorID != "ada" {
				t.Errorf("deleted = %+v", e)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ts.auditTrail(t, admin, tt.query, tt.want)
			if len(got) != tt.want {
				t.Fatalf("got %d events, want %d", len(got), tt.want)
			}
			tt.check(t, got[0])
		})
	}

	// other tenants see nothing
	other := token(t, "globex", "gus", auth.RoleAdmin)
	resp, env = ts.do(t, call{method: http.MethodGet, path: "/api/v1/audit", token: other})
	expect(t, resp, env, http.StatusOK, "")
	if got := decodeData[[]audit.Event](t, env); len(got) != 0 {
		t.Errorf("globex sees %d acme events", len(got))
	}

	resp, env = ts.do(t, call{method: http.MethodGet, path: "/api/v1/audit?limit=0", token: admin})
	expect(t, resp, env, http.StatusBadRequest, CodeBadRequest)
}
