// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

var clientIDCounter atomic.Uint64

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	id       uint64
	hub      *Hub
	conn     *websocket.Conn
	send     chan Message
	tenantID string
	// clientID is the sync origin of this connection.
	clientID string

	mu    sync.RWMutex
	types map[events.Type]struct{}
}

// NewClient wraps conn for tenantID. clientID may be empty, in which case
// the client also receives its own events.
func NewClient(hub *Hub, conn *websocket.Conn, tenantID, clientID string) *Client {
	return &Client{
		id:       clientIDCounter.Add(1),
		hub:      hub,
		conn:     conn,
		send:     make(chan Message, sendBuffer),
		tenantID: tenantID,
		clientID: clientID,
	}
}

func (c *Client) ID() uint64 {
	return c.id
}

func (c *Client) wants(t events.Type) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.types) == 0 {
		return true
	}
	_, ok := c.types[t]
	return ok
}

func (c *Client) setTypes(types []events.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = make(map[events.Type]struct{}, len(types))
	for _, t := range types {
		c.types[t] = struct{}{}
	}
}

// reply queues a control frame without blocking the read pump.
func (c *Client) reply(msg Message) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("client_id", c.clientID).Msg("unexpected websocket close")
			}
			return
		}

		switch msg.Type {
		case MessageTypePing:
			c.reply(Message{Type: MessageTypePong})
		case MessageTypeSubscribe:
			c.handleSubscribe(msg)
		default:
			if m, err := NewMessage(MessageTypeError, map[string]string{"error": "unknown message type " + msg.Type}); err == nil {
				c.reply(m)
			}
		}
	}
}

func (c *Client) handleSubscribe(msg Message) {
	var data SubscribeData
	if len(msg.Data) > 0 {
		if err := jsonUnmarshal(msg.Data, &data); err != nil {
			if m, err := NewMessage(MessageTypeError, map[string]string{"error": "invalid subscribe payload"}); err == nil {
				c.reply(m)
			}
			return
		}
	}
	for _, t := range data.Types {
		if !t.Valid() {
			if m, err := NewMessage(MessageTypeError, map[string]string{"error": "unknown event type " + string(t)}); err == nil {
				c.reply(m)
			}
			return
		}
	}
	c.setTypes(data.Types)
	if m, err := NewMessage(MessageTypeSubscribed, data); err == nil {
		c.reply(m)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// the hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				logging.Debug().Err(err).Str("client_id", c.clientID).Msg("websocket write failed")
				return
			}
			metrics.WSMessagesSent.Inc()

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing. The client must already be registered.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
