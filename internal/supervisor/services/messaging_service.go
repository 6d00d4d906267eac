// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package services

import (
	"context"
	"fmt"
)

// Server is anything with a context-bound run loop, such as *websocket.Hub,
// *websocket.Bridge and *upload.Manager.
type Server interface {
	Serve(ctx context.Context) error
}

// NamedService gives a run loop a stable name in suture's logs.
type NamedService struct {
	name string
	run  func(ctx context.Context) error
}

// NewNamedService wraps run as a suture.Service called name.
func NewNamedService(name string, run func(ctx context.Context) error) *NamedService {
	return &NamedService{name: name, run: run}
}

// Serve implements suture.Service.
func (s *NamedService) Serve(ctx context.Context) error {
	return s.run(ctx)
}

func (s *NamedService) String() string {
	return s.name
}

// NewWebSocketHubService supervises the hub that fans events out to
// connected WebSocket clients.
func NewWebSocketHubService(hub Server) *NamedService {
	return NewNamedService("websocket-hub", hub.Serve)
}

// NewEventBridgeService supervises the bus to hub relay.
func NewEventBridgeService(bridge Server) *NamedService {
	return NewNamedService("event-bridge", bridge.Serve)
}

// NewUploadManagerService supervises chunk assembly workers and the stale
// session sweeper.
func NewUploadManagerService(m Server) *NamedService {
	return NewNamedService("upload-manager", m.Serve)
}

// Bus matches *events.Bus.
type Bus interface {
	Transport() string
	Close() error
}

// EventBusService owns the shutdown of the event bus, and with it any
// embedded NATS server the bus started. The bus is opened before the tree
// so the API and the bridge can be wired to it.
type EventBusService struct {
	bus Bus
}

// NewEventBusService wraps bus.
func NewEventBusService(bus Bus) *EventBusService {
	return &EventBusService{bus: bus}
}

// Serve implements suture.Service. It blocks until ctx is done and then
// closes the bus, so it is not restarted after a clean stop.
func (s *EventBusService) Serve(ctx context.Context) error {
	<-ctx.Done()
	if err := s.bus.Close(); err != nil {
		return fmt.Errorf("close %s event bus: %w", s.bus.Transport(), err)
	}
	return ctx.Err()
}

func (s *EventBusService) String() string {
	return "event-bus-" + s.bus.Transport()
}
