// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package audit

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/config"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/metrics"
)

const writeTimeout = 5 * time.Second

// Logger accepts audit events without blocking and writes them to a
// Store from Serve. Events logged while the buffer is full are dropped
// and counted.
type Logger struct {
	cfg    config.AuditConfig
	store  Store
	events chan *Event
	now    func() time.Time
}

func NewLogger(store Store, cfg config.AuditConfig) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	return &Logger{
		cfg:    cfg,
		store:  store,
		events: make(chan *Event, cfg.BufferSize),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Log queues e, filling in ID and Timestamp when empty. A nil Logger
// discards everything, so callers need no enabled checks.
func (l *Logger) Log(e *Event) {
	if l == nil || !l.cfg.Enabled {
		return
	}
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	select {
	case l.events <- e:
	default:
		metrics.AuditEvents.WithLabelValues(string(e.Type), "dropped").Inc()
		logging.Warn().Str("event_id", e.ID).Str("type", string(e.Type)).Msg("Audit buffer full, dropping event")
	}
}

// Serve writes queued events and purges expired ones until ctx is done,
// then flushes what is still queued. Implements suture.Service.
func (l *Logger) Serve(ctx context.Context) error {
	var purge <-chan time.Time
	if l.cfg.Retention > 0 && l.cfg.CleanupInterval > 0 {
		t := time.NewTicker(l.cfg.CleanupInterval)
		defer t.Stop()
		purge = t.C
	}

	for {
		select {
		case <-ctx.Done():
			l.flush()
			return ctx.Err()
		case e := <-l.events:
			l.write(ctx, e)
		case <-purge:
			l.purge(ctx)
		}
	}
}

// Query reads the trail from the underlying Store.
func (l *Logger) Query(ctx context.Context, f QueryFilter) ([]Event, error) {
	return l.store.QueryAuditEvents(ctx, f)
}

func (l *Logger) String() string { return "audit-log" }

func (l *Logger) flush() {
	ctx := context.Background()
	for {
		select {
		case e := <-l.events:
			l.write(ctx, e)
		default:
			return
		}
	}
}

func (l *Logger) write(ctx context.Context, e *Event) {
	if l.cfg.LogToStdout {
		logging.Info().
			Str("audit_type", string(e.Type)).
			Str("tenant_id", e.TenantID).
			Str("actor_id", e.ActorID).
			Str("target_id", e.TargetID).
			Str("outcome", string(e.Outcome)).
			Msg(e.Description)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := l.store.SaveAuditEvent(ctx, e); err != nil {
		metrics.AuditEvents.WithLabelValues(string(e.Type), "failed").Inc()
		logging.Err(err).Str("event_id", e.ID).Msg("Failed to save audit event")
		return
	}
	metrics.AuditEvents.WithLabelValues(string(e.Type), "stored").Inc()
}

func (l *Logger) purge(ctx context.Context) {
	n, err := l.store.PurgeAuditEvents(ctx, l.now().Add(-l.cfg.Retention))
	switch {
	case err != nil:
		logging.Err(err).Msg("Audit cleanup failed")
	case n > 0:
		logging.Info().Int64("count", n).Msg("Purged expired audit events")
	}
}
