// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
)

//nolint:gochecknoinits // quiet logs for tests
func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub, cancel
}

func fakeClient(hub *Hub, tenant, clientID string, buffer int) *Client {
	return &Client{
		id:       clientIDCounter.Add(1),
		hub:      hub,
		send:     make(chan Message, buffer),
		tenantID: tenant,
		clientID: clientID,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func recvEvent(t *testing.T, c *Client) events.Event {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("client channel closed")
		}
		if msg.Type != MessageTypeEvent {
			t.Fatalf("message type = %q", msg.Type)
		}
		var ev events.Event
		if err := jsonUnmarshal(msg.Data, &ev); err != nil {
			t.Fatal(err)
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return events.Event{}
}

func noMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func testEvent(typ events.Type, tenant, tour, origin string) events.Event {
	return events.Event{ID: tour + "-" + string(typ), Type: typ, TenantID: tenant, TourID: tour, Origin: origin, OccurredAt: time.Now()}
}

func TestHubRoutesByTenantAndSkipsOrigin(t *testing.T) {
	hub, _ := startHub(t)

	a1 := fakeClient(hub, "acme", "tab-1", 8)
	a2 := fakeClient(hub, "acme", "tab-2", 8)
	g1 := fakeClient(hub, "globex", "tab-9", 8)
	for _, c := range []*Client{a1, a2, g1} {
		hub.Register <- c
	}
	waitFor(t, func() bool { return hub.ClientCount() == 3 }, "registration")
	if n := hub.TenantClientCount("acme"); n != 2 {
		t.Errorf("TenantClientCount(acme) = %d", n)
	}

	hub.Publish(testEvent(events.TourSaved, "acme", "t1", "tab-1"))

	if ev := recvEvent(t, a2); ev.TourID != "t1" {
		t.Errorf("a2 got %+v", ev)
	}
	noMessage(t, a1)
	noMessage(t, g1)
}

func TestHubTypeSubscription(t *testing.T) {
	hub, _ := startHub(t)

	c := fakeClient(hub, "acme", "tab-1", 8)
	c.setTypes([]events.Type{events.TourDeleted})
	hub.Register <- c
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "registration")

	hub.Publish(testEvent(events.TourSaved, "acme", "t1", ""))
	hub.Publish(testEvent(events.TourDeleted, "acme", "t2", ""))

	if ev := recvEvent(t, c); ev.Type != events.TourDeleted {
		t.Errorf("got %s, want tour.deleted", ev.Type)
	}
	noMessage(t, c)
}

func TestHubDisconnectsSlowClient(t *testing.T) {
	hub, _ := startHub(t)

	slow := fakeClient(hub, "acme", "slow", 1)
	hub.Register <- slow
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "registration")

	hub.Publish(testEvent(events.TourSaved, "acme", "t1", ""))
	hub.Publish(testEvent(events.TourSaved, "acme", "t2", ""))

	waitFor(t, func() bool { return hub.ClientCount() == 0 }, "slow client removal")
	// the buffered message is still readable, then the channel is closed
	<-slow.send
	if _, ok := <-slow.send; ok {
		t.Error("send channel still open")
	}
}

func TestHubServeClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- hub.Serve(ctx) }()

	c := fakeClient(hub, "acme", "tab-1", 1)
	hub.Register <- c
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "registration")

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return")
	}
	if _, ok := <-c.send; ok {
		t.Error("client not closed on shutdown")
	}
	if hub.ClientCount() != 0 {
		t.Error("clients left after shutdown")
	}
}

func TestHubUnregisterTwice(t *testing.T) {
	hub, _ := startHub(t)

	c := fakeClient(hub, "acme", "tab-1", 1)
	hub.Register <- c
	hub.Unregister <- c
	hub.Unregister <- c
	waitFor(t, func() bool { return hub.ClientCount() == 0 }, "unregister")
}

func TestBridgeForwardsBusEvents(t *testing.T) {
	hub, _ := startHub(t)
	bus := events.NewMemory(8)
	defer bus.Close()

	c := fakeClient(hub, "acme", "", 8)
	hub.Register <- c
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "registration")

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- NewBridge(bus, hub).Serve(ctx) }()

	// the bridge subscribes asynchronously; publish until it is wired
	ev := testEvent(events.JobUpdated, "acme", "", "")
	deadline := time.After(5 * time.Second)
	for delivered := false; !delivered; {
		if err := bus.Publish(ctx, ev); err != nil {
			t.Fatal(err)
		}
		select {
		case msg := <-c.send:
			if msg.Type != MessageTypeEvent {
				t.Fatalf("type = %s", msg.Type)
			}
			delivered = true
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("event never reached the hub")
		}
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v", err)
	}
}
