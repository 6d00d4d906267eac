// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/cache"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
)

// ClientIDHeader carries the sync origin of a websocket connection.
const ClientIDHeader = "X-Client-ID"

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// ServerURL is the http(s) base URL of the sync server.
	ServerURL string
	Token     string
	ClientID  string
	Types     []events.Type

	MinBackoff time.Duration
	MaxBackoff time.Duration

	// DedupWindow is how long a relayed event id is remembered so a
	// redelivery after reconnect is dropped. Default 10m.
	DedupWindow time.Duration
}

// Watcher mirrors server events onto a local bus.
type Watcher struct {
	cfg    WatcherConfig
	bus    events.Publisher
	dialer *websocket.Dialer
	seen   *cache.LRU[string, struct{}]
}

func NewWatcher(cfg WatcherConfig, bus events.Publisher) *Watcher {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Watcher{
		cfg:  cfg,
		bus:  bus,
		seen: cache.NewLRU[string, struct{}](cache.DefaultCapacity, cfg.DedupWindow),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// wsURL turns http://host/base into ws://host/base/api/v1/ws.
func wsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/ws"
	return u.String(), nil
}

// Run connects and relays until ctx is done, reconnecting on failure.
func (w *Watcher) Run(ctx context.Context) error {
	target, err := wsURL(w.cfg.ServerURL)
	if err != nil {
		return err
	}

	backoff := w.cfg.MinBackoff
	for {
		connected, err := w.session(ctx, target)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = w.cfg.MinBackoff
		}
		logging.Warn().Err(err).Dur("retry_in", backoff).Msg("event watcher disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, w.cfg.MaxBackoff)
	}
}

// session runs one connection. connected reports whether the handshake
// succeeded.
func (w *Watcher) session(ctx context.Context, target string) (connected bool, err error) {
	header := http.Header{}
	if w.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+w.cfg.Token)
	}
	if w.cfg.ClientID != "" {
		header.Set(ClientIDHeader, w.cfg.ClientID)
	}

	conn, resp, err := w.dialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	if len(w.cfg.Types) > 0 {
		msg, err := NewMessage(MessageTypeSubscribe, SubscribeData{Types: w.cfg.Types})
		if err != nil {
			return true, err
		}
		if err := conn.WriteJSON(msg); err != nil {
			return true, fmt.Errorf("send subscribe: %w", err)
		}
	}
	logging.Info().Str("url", target).Msg("event watcher connected")

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return true, err
		}
		switch msg.Type {
		case MessageTypeEvent:
			w.relay(ctx, msg.Data)
		case MessageTypeError:
			logging.Warn().RawJSON("data", msg.Data).Msg("server rejected websocket message")
		}
	}
}

func (w *Watcher) relay(ctx context.Context, data []byte) {
	var ev events.Event
	if err := jsonUnmarshal(data, &ev); err != nil {
		logging.Warn().Err(err).Msg("malformed event from server")
		return
	}
	if w.cfg.ClientID != "" && ev.Origin == w.cfg.ClientID {
		return
	}
	if ev.ID != "" && w.seen.Seen(ev.ID) {
		logging.Debug().Str("event_id", ev.ID).Msg("dropping redelivered event")
		return
	}
	if err := w.bus.Publish(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		logging.Warn().Err(err).Str("event_id", ev.ID).Msg("failed to republish remote event")
	}
}
