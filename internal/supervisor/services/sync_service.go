// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
)

// SyncWatcher matches (*sync.Engine).Watch.
type SyncWatcher interface {
	Watch(ctx context.Context, interval time.Duration, sub events.Subscriber) error
}

// SyncService runs the sync loop of a device: a pass at startup, one per
// interval, and one whenever sub delivers a change made elsewhere.
type SyncService struct {
	engine   SyncWatcher
	interval time.Duration
	sub      events.Subscriber
}

// NewSyncService creates the sync loop service. sub may be nil, in which
// case only the interval drives passes.
func NewSyncService(engine SyncWatcher, interval time.Duration, sub events.Subscriber) *SyncService {
	return &SyncService{engine: engine, interval: interval, sub: sub}
}

// Serve implements suture.Service.
func (s *SyncService) Serve(ctx context.Context) error {
	if err := s.engine.Watch(ctx, s.interval, s.sub); err != nil {
		return fmt.Errorf("sync loop: %w", err)
	}
	return ctx.Err()
}

func (s *SyncService) String() string {
	return "sync-loop"
}

// Runner matches *websocket.Watcher.
type Runner interface {
	Run(ctx context.Context) error
}

// NewRemoteEventsService supervises the WebSocket watcher that relays
// server events onto the device's local bus.
func NewRemoteEventsService(w Runner) *NamedService {
	return NewNamedService("remote-events", w.Run)
}

// GarbageCollector matches (*localstore.Store).RunGC.
type GarbageCollector interface {
	RunGC(ctx context.Context, interval time.Duration) error
}

// NewStoreGCService runs value log GC on the local store every interval.
func NewStoreGCService(store GarbageCollector, interval time.Duration) *NamedService {
	return NewNamedService("store-gc", func(ctx context.Context) error {
		return store.RunGC(ctx, interval)
	})
}
