// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gws "github.com/gorilla/websocket"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/websocket"
)

func TestSyncJobsAPI(t *testing.T) {
	ts := newTestServer(t, devSecurity())
	origin := map[string]string{ClientIDHeader: "laptop-7"}

	resp, env := ts.do(t, call{method: http.MethodPost, path: "/api/v1/sync/jobs",
		body: SyncJobRequest{Kind: models.JobTourSync, TotalItems: 3}, header: origin})
	expect(t, resp, env, http.StatusCreated, "")
	job := decodeData[models.SyncJob](t, env)
	if job.Status != models.JobPending || job.ClientID != "laptop-7" || job.UserID != "alice" {
		t.Fatalf("job = %+v", job)
	}

	running := models.JobRunning
	processed := 3
	completed := models.JobCompleted
	steps := []struct {
		patch  SyncJobPatch
		status int
		code   string
	}{
		{SyncJobPatch{Status: &running}, http.StatusOK, ""},
		{SyncJobPatch{ProcessedItems: &processed}, http.StatusOK, ""},
		{SyncJobPatch{Status: &completed}, http.StatusOK, ""},
		{SyncJobPatch{Status: &running}, http.StatusConflict, CodeInvalidTransition},
	}
	for i, s := range steps {
		resp, env = ts.do(t, call{method: http.MethodPatch, path: "/api/v1/sync/jobs/" + job.ID, body: s.patch})
		if resp.StatusCode != s.status {
			t.Fatalf("step %d: status %d, want %d", i, resp.StatusCode, s.status)
		}
		expect(t, resp, env, s.status, s.code)
	}

	resp, env = ts.do(t, call{method: http.MethodGet, path: "/api/v1/sync/jobs/" + job.ID})
	expect(t, resp, env, http.StatusOK, "")
	got := decodeData[models.SyncJob](t, env)
	if got.Status != models.JobCompleted || got.ProcessedItems != 3 || got.CompletedAt == nil {
		t.Fatalf("job = %+v", got)
	}

	resp, env = ts.do(t, call{method: http.MethodGet, path: "/api/v1/sync/jobs?kind=tour_sync&status=completed"})
	expect(t, resp, env, http.StatusOK, "")
	if jobs := decodeData[[]models.SyncJob](t, env); len(jobs) != 1 {
		t.Fatalf("listed %d jobs", len(jobs))
	}

	resp, env = ts.do(t, call{method: http.MethodGet, path: "/api/v1/sync/jobs/01ARZ3NDEKTSV4RRFFQ69G5FAV"})
	expect(t, resp, env, http.StatusNotFound, CodeNotFound)

	resp, env = ts.do(t, call{method: http.MethodPost, path: "/api/v1/sync/jobs", raw: []byte(`{"kind":"reindex"}`)})
	expect(t, resp, env, http.StatusBadRequest, CodeValidation)

	if n := len(ts.bus.ofType(events.JobUpdated)); n != 4 {
		t.Errorf("job.updated events = %d, want 4", n)
	}
}

func TestRelayEvent(t *testing.T) {
	ts := newTestServer(t, devSecurity())

	resp, env := ts.do(t, call{
		method: http.MethodPost,
		path:   "/api/v1/events",
		raw:    []byte(`{"type":"tour.saved","tenant_id":"someone-else","tour_id":"t-1","version":4}`),
		header: map[string]string{ClientIDHeader: "phone-2"},
	})
	expect(t, resp, env, http.StatusAccepted, "")

	relayed := ts.bus.ofType(events.TourSaved)
	if len(relayed) != 1 {
		t.Fatalf("relayed %d events", len(relayed))
	}
	ev := relayed[0]
	if ev.TenantID != testTenant || ev.Origin != "phone-2" || ev.ID == "" || ev.OccurredAt.IsZero() {
		t.Errorf("relayed event = %+v", ev)
	}

	resp, env = ts.do(t, call{method: http.MethodPost, path: "/api/v1/events", raw: []byte(`{"type":"tour.renamed"}`)})
	expect(t, resp, env, http.StatusBadRequest, CodeBadRequest)
}

func TestWebSocketStream(t *testing.T) {
	ts := newTestServer(t, devSecurity())

	header := http.Header{}
	header.Set(websocket.ClientIDHeader, "tablet-1")
	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/api/v1/ws"
	conn, resp, err := gws.DefaultDialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for ts.hub.TenantClientCount(testTenant) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	own, _ := events.New(events.TourSaved, testTenant, "t-own", "tablet-1", 1, nil)
	other, _ := events.New(events.TourSaved, testTenant, "t-other", "laptop-2", 2, nil)
	foreign, _ := events.New(events.TourSaved, "globex", "t-foreign", "laptop-3", 1, nil)
	ts.hub.Publish(own)
	ts.hub.Publish(foreign)
	ts.hub.Publish(other)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg websocket.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != websocket.MessageTypeEvent {
		t.Fatalf("message type = %q", msg.Type)
	}
	var got events.Event
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.TourID != "t-other" {
		t.Errorf("received event for %s, want t-other", got.TourID)
	}
}
