// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package sync

import (
	"context"
	"testing"
	"time"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startWatch(t *testing.T, h *harness, interval time.Duration, sub events.Subscriber) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Watch(ctx, interval, sub) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Watch() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Watch did not stop")
		}
	})
}

func TestWatchRejectsBadInterval(t *testing.T) {
	h := newHarness(t, models.PolicyManual)
	if err := h.engine.Watch(context.Background(), 0, nil); err == nil {
		t.Error("expected an error for a zero interval")
	}
}

func TestWatchRunsOnInterval(t *testing.T) {
	h := newHarness(t, models.PolicyManual)
	startWatch(t, h, 20*time.Millisecond, nil)

	waitFor(t, "three passes", func() bool { return len(h.remote.jobList()) >= 3 })
}

func TestWatchRunsOnRemoteChange(t *testing.T) {
	h := newHarness(t, models.PolicyManual)
	bus := events.NewMemory(64)
	t.Cleanup(func() { _ = bus.Close() })

	startWatch(t, h, time.Hour, bus)
	waitFor(t, "startup pass", func() bool { return len(h.remote.jobList()) == 1 })

	s := h.remote.seed(newTour("Made on another tablet"))
	ev, err := events.New(events.TourSaved, testTenant, s.ID, "tab-2", s.Version, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "pass triggered by the event", func() bool {
		_, err := h.store.Get(context.Background(), s.ID)
		return err == nil
	})
	if n := len(h.remote.jobList()); n != 2 {
		t.Errorf("passes = %d, want 2", n)
	}
}
