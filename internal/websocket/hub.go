// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/metrics"
)

// Message types.
const (
	MessageTypeEvent      = "event"
	MessageTypeSubscribe  = "subscribe"
	MessageTypeSubscribed = "subscribed"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
	MessageTypeError      = "error"
)

// Message is one frame on the wire.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SubscribeData is the payload of a subscribe message. An empty list
// restores the default of all types.
type SubscribeData struct {
	Types []events.Type `json:"types"`
}

// NewMessage marshals data into a frame.
func NewMessage(typ string, data any) (Message, error) {
	if data == nil {
		return Message{Type: typ}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Data: raw}, nil
}

// Hub maintains the set of active clients, grouped by tenant.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	broadcast  chan events.Event
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		broadcast:  make(chan events.Event, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Serve runs the hub until ctx is done, then closes every client.
// Lifecycle events are handled before broadcasts so a client registered
// before an event is published receives it.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			n := h.ClientCount()
			h.closeAllClients()
			logging.Info().Str("component", "websocket-hub").Int("clients_closed", n).Msg("websocket hub stopped")
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.Register:
			h.add(c)
			continue
		case c := <-h.Unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			continue
		case c := <-h.Register:
			h.add(c)
		case c := <-h.Unregister:
			h.remove(c)
		case ev := <-h.broadcast:
			h.broadcastEvent(&ev)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.tenantID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.tenantID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	metrics.WSConnections.Inc()
	logging.Debug().Str("tenant_id", c.tenantID).Str("client_id", c.clientID).Msg("websocket client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// dropLocked must be called with mu held.
func (h *Hub) dropLocked(c *Client) {
	set := h.clients[c.tenantID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.tenantID)
	}
	close(c.send)
	metrics.WSConnections.Dec()
	logging.Debug().Str("tenant_id", c.tenantID).Str("client_id", c.clientID).Msg("websocket client disconnected")
}

// broadcastEvent sends ev to the tenant's clients in id order. Clients
// whose send buffer is full are disconnected; they resync on reconnect.
func (h *Hub) broadcastEvent(ev *events.Event) {
	msg, err := NewMessage(MessageTypeEvent, ev)
	if err != nil {
		logging.Warn().Err(err).Str("event_id", ev.ID).Msg("failed to encode event for websocket")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients[ev.TenantID]))
	for c := range h.clients[ev.TenantID] {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, c := range clients {
		if ev.Origin != "" && c.clientID == ev.Origin {
			continue
		}
		if !c.wants(ev.Type) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			metrics.EventsDropped.WithLabelValues("websocket").Inc()
			logging.Warn().Str("client_id", c.clientID).Msg("websocket client too slow, disconnecting")
			h.dropLocked(c)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			h.dropLocked(c)
		}
	}
}

// Publish queues ev for broadcast. It never blocks; when the queue is
// full the event is dropped.
func (h *Hub) Publish(ev events.Event) {
	select {
	case h.broadcast <- ev:
	default:
		metrics.EventsDropped.WithLabelValues("websocket_hub").Inc()
		logging.Warn().Str("type", string(ev.Type)).Msg("websocket broadcast queue full, dropping event")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// TenantClientCount returns the number of clients connected for tenantID.
func (h *Hub) TenantClientCount(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tenantID])
}
