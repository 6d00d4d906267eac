// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package audit

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/config"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
	goleak.VerifyTestMain(m)
}

func testConfig() config.AuditConfig {
	return config.AuditConfig{Enabled: true, BufferSize: 16}
}

// serve runs l.Serve until the returned stop func is called.
func serve(t *testing.T, l *Logger) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() = %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return")
		}
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func count(t *testing.T, s Store, f QueryFilter) int {
	t.Helper()
	events, err := s.QueryAuditEvents(context.Background(), f)
	if err != nil {
		t.Fatal(err)
	}
	return len(events)
}

func TestLoggerWritesEvents(t *testing.T) {
	store := NewMemoryStore(0)
	l := NewLogger(store, testConfig())
	stop := serve(t, l)

	e := &Event{TenantID: "acme", Type: EventTourCreated, Outcome: OutcomeSuccess, ActorID: "alice", TargetID: "t-1"}
	l.Log(e)
	waitFor(t, func() bool { return count(t, store, QueryFilter{}) == 1 }, "event stored")
	stop()

	got, _ := store.QueryAuditEvents(context.Background(), QueryFilter{})
	if got[0].ID == "" || len(got[0].ID) != 26 {
		t.Errorf("ID = %q, want a ULID", got[0].ID)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestLoggerFlushesOnStop(t *testing.T) {
	store := NewMemoryStore(0)
	l := NewLogger(store, testConfig())

	for i := 0; i < 5; i++ {
		l.Log(&Event{TenantID: "acme", Type: EventTourUpdated})
	}
	serve(t, l)()

	if n := count(t, store, QueryFilter{}); n != 5 {
		t.Errorf("stored %d events after stop, want 5", n)
	}
}

func TestLoggerDropsWhenFull(t *testing.T) {
	store := NewMemoryStore(0)
	cfg := testConfig()
	cfg.BufferSize = 2
	l := NewLogger(store, cfg)

	for i := 0; i < 5; i++ {
		l.Log(&Event{TenantID: "acme", Type: EventTourUpdated})
	}
	serve(t, l)()

	if n := count(t, store, QueryFilter{}); n != 2 {
		t.Errorf("stored %d events, want the 2 that fit the buffer", n)
	}
}

func TestLoggerDisabled(t *testing.T) {
	store := NewMemoryStore(0)
	cfg := testConfig()
	cfg.Enabled = false
	l := NewLogger(store, cfg)
	l.Log(&Event{TenantID: "acme", Type: EventTourDeleted})
	serve(t, l)()
	if n := count(t, store, QueryFilter{}); n != 0 {
		t.Errorf("disabled logger stored %d events", n)
	}

	var nilLogger *Logger
	nilLogger.Log(&Event{Type: EventTourDeleted}) // must not panic
}

func TestLoggerPurgesExpired(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)
	_ = store.SaveAuditEvent(ctx, &Event{ID: "old", TenantID: "acme", Timestamp: old})
	_ = store.SaveAuditEvent(ctx, &Event{ID: "new", TenantID: "acme", Timestamp: time.Now().UTC()})

	cfg := testConfig()
	cfg.Retention = 24 * time.Hour
	cfg.CleanupInterval = 10 * time.Millisecond
	stop := serve(t, NewLogger(store, cfg))
	waitFor(t, func() bool { return count(t, store, QueryFilter{}) == 1 }, "purge")
	stop()

	got, _ := store.QueryAuditEvents(ctx, QueryFilter{})
	if got[0].ID != "new" {
		t.Errorf("kept %s, want new", got[0].ID)
	}
}

func TestMemoryStoreQuery(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, e := range []Event{
		{TenantID: "acme", Type: EventTourCreated, ActorID: "alice", TargetID: "t-1"},
		{TenantID: "acme", Type: EventTourDeleted, ActorID: "bob", TargetID: "t-1"},
		{TenantID: "acme", Type: EventAuthzDenied, ActorID: "bob", TargetID: "/api/v1/tours/t-2"},
		{TenantID: "globex", Type: EventTourCreated, ActorID: "carol", TargetID: "t-9"},
	} {
		e.ID = string(rune('a' + i))
		e.Timestamp = base.Add(time.Duration(i) * time.Minute)
		if err := store.SaveAuditEvent(ctx, &e); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter QueryFilter
		want   []string
	}{
		{"tenant newest first", QueryFilter{TenantID: "acme"}, []string{"c", "b", "a"}},
		{"types", QueryFilter{TenantID: "acme", Types: []EventType{EventTourCreated, EventTourDeleted}}, []string{"b", "a"}},
		{"actor", QueryFilter{TenantID: "acme", ActorID: "bob"}, []string{"c", "b"}},
		{"target", QueryFilter{TargetID: "t-1"}, []string{"b", "a"}},
		{"window", QueryFilter{Since: base.Add(time.Minute), Until: base.Add(3 * time.Minute)}, []string{"c", "b"}},
		{"limit", QueryFilter{Limit: 1}, []string{"d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.QueryAuditEvents(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			ids := make([]string, len(got))
			for i := range got {
				ids[i] = got[i].ID
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("got %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", ids, tt.want)
				}
			}
		})
	}
}

func TestMemoryStoreBounded(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		_ = store.SaveAuditEvent(ctx, &Event{TenantID: "acme"})
	}
	if n := count(t, store, QueryFilter{}); n > 10 {
		t.Errorf("store holds %d events, cap is 10", n)
	}
}
