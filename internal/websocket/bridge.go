// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package websocket

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
)

var jsonUnmarshal = json.Unmarshal

// Bridge forwards every event on the server bus to the hub.
type Bridge struct {
	bus events.Subscriber
	hub *Hub
}

func NewBridge(bus events.Subscriber, hub *Hub) *Bridge {
	return &Bridge{bus: bus, hub: hub}
}

// Serve implements suture.Service.
func (b *Bridge) Serve(ctx context.Context) error {
	ch, err := b.bus.Subscribe(ctx, events.Filter{})
	if err != nil {
		return fmt.Errorf("bridge subscribe: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("bridge subscription closed")
			}
			b.hub.Publish(ev)
		}
	}
}
