// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
)

// serveHub upgrades every request into a hub client for tenant acme. When
// honorClientID is false the connection gets no origin, so the hub echoes
// a client's own events back to it.
func serveHub(t *testing.T, hub *Hub, honorClientID bool) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		clientID := ""
		if honorClientID {
			clientID = r.Header.Get(ClientIDHeader)
		}
		c := NewClient(hub, conn, "acme", clientID)
		hub.Register <- c
		c.Start()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, clientID string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set(ClientIDHeader, clientID)
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestClientProtocol(t *testing.T) {
	hub, _ := startHub(t)
	srv := serveHub(t, hub, true)
	conn := dial(t, srv, "tab-1")
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "registration")

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != MessageTypePong {
		t.Errorf("reply to ping = %q", msg.Type)
	}

	sub, _ := NewMessage(MessageTypeSubscribe, SubscribeData{Types: []events.Type{"tour.renamed"}})
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != MessageTypeError {
		t.Errorf("reply to bad subscribe = %q", msg.Type)
	}

	sub, _ = NewMessage(MessageTypeSubscribe, SubscribeData{Types: []events.Type{events.TourDeleted}})
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != MessageTypeSubscribed {
		t.Errorf("reply to subscribe = %q", msg.Type)
	}

	hub.Publish(testEvent(events.TourSaved, "acme", "t1", "tab-2"))
	hub.Publish(testEvent(events.TourDeleted, "acme", "t2", "tab-2"))

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeEvent {
		t.Fatalf("type = %q", msg.Type)
	}
	var ev events.Event
	if err := jsonUnmarshal(msg.Data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.TourID != "t2" {
		t.Errorf("got event for %s, want t2", ev.TourID)
	}

	_ = conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 }, "unregister on close")
}

func TestWSURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://127.0.0.1:8420", "ws://127.0.0.1:8420/api/v1/ws", false},
		{"https://sync.example.com/base/", "wss://sync.example.com/base/api/v1/ws", false},
		{"ftp://example.com", "", true},
	}
	for _, tt := range tests {
		got, err := wsURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("wsURL(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("wsURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWatcherRelaysRemoteEvents(t *testing.T) {
	hub, _ := startHub(t)
	mux := http.NewServeMux()
	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/api/v1/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// no origin, so the hub echoes the watcher's own events
		c := NewClient(hub, conn, "acme", "")
		hub.Register <- c
		c.Start()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	local := events.NewMemory(8)
	defer local.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received, err := local.Subscribe(ctx, events.Filter{})
	if err != nil {
		t.Fatal(err)
	}

	w := NewWatcher(WatcherConfig{ServerURL: srv.URL, Token: "tok", ClientID: "cli-1"}, local)
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "watcher connection")

	theirs := testEvent(events.TourSaved, "acme", "theirs", "web-7")
	hub.Publish(testEvent(events.TourSaved, "acme", "mine", "cli-1"))
	hub.Publish(theirs)
	hub.Publish(theirs) // redelivered

	select {
	case ev := <-received:
		if ev.TourID != "theirs" {
			t.Errorf("relayed %s, want theirs", ev.TourID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event relayed")
	}
	select {
	case ev := <-received:
		t.Errorf("unexpected relay of %s", ev.TourID)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case <-errc:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
