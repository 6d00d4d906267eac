// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

// Import writes a record and its base snapshot exactly as given. It is the
// restore path for backups and does not touch sync state.
func (s *Store) Import(ctx context.Context, lt *models.LocalTour, base *models.Tour) error {
	if lt == nil || lt.Tour.ID == "" {
		return errors.New("import: record has no tour id")
	}
	if !lt.Meta.State.Valid() {
		return fmt.Errorf("import %s: invalid sync state %q", lt.Tour.ID, lt.Meta.State)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *lt
	rec.Meta.TourID = rec.Tour.ID
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, prefixTour+rec.Tour.ID, &rec); err != nil {
			return err
		}
		if base == nil {
			return txn.Delete([]byte(prefixBase + rec.Tour.ID))
		}
		return setJSON(txn, prefixBase+rec.Tour.ID, base)
	})
	if err != nil {
		return fmt.Errorf("import %s: %w", rec.Tour.ID, err)
	}
	s.publish(ctx, events.TourSaved, rec.Tour.TenantID, rec.Tour.ID, rec.Tour.Version,
		TourEvent{State: rec.Meta.State, Source: SourceLocal, Hash: rec.Meta.ContentHash})
	return nil
}

// Wipe removes every record of tenantID, or of every tenant when tenantID
// is empty, and returns how many were removed.
func (s *Store) Wipe(_ context.Context, tenantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.scan(ListFilter{TenantID: tenantID, IncludeDeleted: true})
	if err != nil {
		return 0, err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i := range all {
		id := all[i].Tour.ID
		if err := wb.Delete([]byte(prefixTour + id)); err != nil {
			return 0, err
		}
		if err := wb.Delete([]byte(prefixBase + id)); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("wipe: %w", err)
	}
	return len(all), nil
}
