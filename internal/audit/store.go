// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package audit

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps the most recent events in memory. It backs tests and
// servers running without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
	maxLen int
}

func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{maxLen: maxLen}
}

func (s *MemoryStore) SaveAuditEvent(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= s.maxLen {
		// drop the oldest tenth at once
		s.events = slices.Delete(s.events, 0, max(1, s.maxLen/10))
	}
	s.events = append(s.events, *e)
	return nil
}

// QueryAuditEvents returns matches newest first.
func (s *MemoryStore) QueryAuditEvents(_ context.Context, f QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Event{}
	for i := len(s.events) - 1; i >= 0; i-- {
		e := &s.events[i]
		if !matches(e, &f) {
			continue
		}
		out = append(out, *e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) PurgeAuditEvents(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.events)
	s.events = slices.DeleteFunc(s.events, func(e Event) bool { return e.Timestamp.Before(olderThan) })
	return int64(n - len(s.events)), nil
}

func matches(e *Event, f *QueryFilter) bool {
	switch {
	case f.TenantID != "" && e.TenantID != f.TenantID:
		return false
	case len(f.Types) > 0 && !slices.Contains(f.Types, e.Type):
		return false
	case f.ActorID != "" && e.ActorID != f.ActorID:
		return false
	case f.TargetID != "" && e.TargetID != f.TargetID:
		return false
	case !f.Since.IsZero() && e.Timestamp.Before(f.Since):
		return false
	case !f.Until.IsZero() && !e.Timestamp.Before(f.Until):
		return false
	}
	return true
}
