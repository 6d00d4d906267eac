// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package localstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/conflict"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

// Event sources carried in TourEvent.Source.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// TourEvent is the payload of tour.* events published by the store.
type TourEvent struct {
	State  models.SyncState `json:"state,omitempty"`
	Source string           `json:"source"`
	Hash   string           `json:"hash,omitempty"`
}

// ListFilter selects records for List. Zero value lists everything
// except pending deletes.
type ListFilter struct {
	States         []models.SyncState
	TenantID       string
	IncludeDeleted bool
}

func (f *ListFilter) match(lt *models.LocalTour) bool {
	if len(f.States) > 0 && !slices.Contains(f.States, lt.Meta.State) {
		return false
	}
	if f.TenantID != "" && lt.Tour.TenantID != f.TenantID {
		return false
	}
	if !f.IncludeDeleted && len(f.States) == 0 && lt.Meta.State == models.SyncStatePendingDelete {
		return false
	}
	return true
}

// SaveLocal stores a local edit and tags it dirty. Saving content equal
// to the current working copy is a no-op. A record in conflict stays in
// conflict; the edit becomes the conflict's local side.
func (s *Store) SaveLocal(ctx context.Context, tour *models.Tour) (*models.LocalTour, error) {
	if tour == nil {
		return nil, errors.New("tour is required")
	}
	if err := tour.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tour: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	hash := tour.ContentHash()
	var out models.LocalTour
	changed := true

	err := s.db.Update(func(txn *badger.Txn) error {
		var cur models.LocalTour
		err := getJSON(txn, prefixTour+tour.ID, &cur)
		switch {
		case errors.Is(err, ErrNotFound):
			t := tour.Clone()
			t.Version = 0
			t.DeletedAt = nil
			if t.CreatedAt.IsZero() {
				t.CreatedAt = now
			}
			t.UpdatedAt = now
			out = models.LocalTour{Tour: *t, Meta: models.SyncMetadata{
				TourID:         t.ID,
				State:          models.SyncStateDirty,
				LocalUpdatedAt: now,
				ContentHash:    hash,
			}}
		case err != nil:
			return err
		default:
			if cur.Tour.TenantID != tour.TenantID {
				return fmt.Errorf("tour %s belongs to tenant %s", tour.ID, cur.Tour.TenantID)
			}
			if cur.Meta.ContentHash == hash && cur.Meta.State != models.SyncStatePendingDelete {
				out, changed = cur, false
				return nil
			}
			t := tour.Clone()
			t.Version = cur.Meta.BaseVersion
			t.CreatedAt = cur.Tour.CreatedAt
			t.UpdatedAt = now
			t.DeletedAt = nil
			meta := cur.Meta
			meta.LocalUpdatedAt = now
			meta.ContentHash = hash
			if meta.State == models.SyncStateConflict && meta.Conflict != nil {
				c := *meta.Conflict
				c.Local = t.Clone()
				c.Fields = conflict.DiffFields(c.Local, c.Remote)
				if c.Kind == models.ConflictDeleteUpdate {
					// the local side is an edit again, not a delete
					c.Kind = models.ConflictUpdateUpdate
				}
				meta.Conflict = &c
			} else {
				meta.State = models.SyncStateDirty
			}
			out = models.LocalTour{Tour: *t, Meta: meta}
		}
		return setJSON(txn, prefixTour+tour.ID, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("save tour %s: %w", tour.ID, err)
	}
	if changed {
		s.publish(ctx, events.TourSaved, out.Tour.TenantID, out.Tour.ID, out.Meta.BaseVersion,
			TourEvent{State: out.Meta.State, Source: SourceLocal, Hash: hash})
	}
	return &out, nil
}

// Get returns the working copy and its metadata.
func (s *Store) Get(_ context.Context, id string) (*models.LocalTour, error) {
	var lt models.LocalTour
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixTour+id, &lt)
	})
	if err != nil {
		return nil, fmt.Errorf("get tour %s: %w", id, err)
	}
	return &lt, nil
}

// Base returns the last server copy the working copy derives from.
func (s *Store) Base(_ context.Context, id string) (*models.Tour, error) {
	var t models.Tour
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixBase+id, &t)
	})
	if err != nil {
		return nil, fmt.Errorf("get base %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) scan(f ListFilter) ([]models.LocalTour, error) {
	var out []models.LocalTour
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixTour)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var lt models.LocalTour
			if err := it.Item().Value(func(val []byte) error {
				return jsonUnmarshal(val, &lt)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if f.match(&lt) {
				out = append(out, lt)
			}
		}
		return nil
	})
	return out, err
}

// List returns matching records sorted by title, then id.
func (s *Store) List(_ context.Context, f ListFilter) ([]models.LocalTour, error) {
	out, err := s.scan(f)
	if err != nil {
		return nil, fmt.Errorf("list tours: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Tour.Title), strings.ToLower(out[j].Tour.Title)
		if a != b {
			return a < b
		}
		return out[i].Tour.ID < out[j].Tour.ID
	})
	return out, nil
}

// ListDirty returns records with changes for the server, oldest local
// edit first.
func (s *Store) ListDirty(_ context.Context) ([]models.LocalTour, error) {
	out, err := s.scan(ListFilter{States: []models.SyncState{models.SyncStateDirty, models.SyncStatePendingDelete}})
	if err != nil {
		return nil, fmt.Errorf("list dirty tours: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Meta.LocalUpdatedAt.Before(out[j].Meta.LocalUpdatedAt)
	})
	return out, nil
}

// MarkDeleted tombstones a tour as pending_delete. A tour the server has
// never seen is removed outright.
func (s *Store) MarkDeleted(ctx context.Context, id string) (*models.LocalTour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out models.LocalTour
	removed, changed := false, true

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, prefixTour+id, &out); err != nil {
			return err
		}
		if out.Meta.BaseVersion == 0 {
			removed = true
			return deleteRecord(txn, id)
		}
		if out.Meta.State == models.SyncStatePendingDelete {
			changed = false
			return nil
		}
		out.Tour.DeletedAt = &now
		out.Tour.UpdatedAt = now
		out.Meta.State = models.SyncStatePendingDelete
		out.Meta.LocalUpdatedAt = now
		out.Meta.Conflict = nil
		return setJSON(txn, prefixTour+id, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("delete tour %s: %w", id, err)
	}
	if changed {
		st := out.Meta.State
		if removed {
			st = ""
		}
		s.publish(ctx, events.TourDeleted, out.Tour.TenantID, id, out.Meta.BaseVersion,
			TourEvent{State: st, Source: SourceLocal})
	}
	if removed {
		return nil, nil
	}
	return &out, nil
}

// ApplyRemote stores a server copy as both working copy and base and tags
// it synced. A remote tombstone removes the local record. The caller is
// responsible for not overwriting unpushed local work.
func (s *Store) ApplyRemote(ctx context.Context, remote *models.Tour) error {
	if remote == nil || remote.ID == "" {
		return errors.New("remote tour is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		if remote.IsDeleted() {
			return deleteRecord(txn, remote.ID)
		}
		return s.writeSynced(txn, remote)
	})
	if err != nil {
		return fmt.Errorf("apply remote %s: %w", remote.ID, err)
	}

	typ := events.TourSaved
	st := models.SyncStateSynced
	if remote.IsDeleted() {
		typ, st = events.TourDeleted, ""
	}
	s.publish(ctx, typ, remote.TenantID, remote.ID, remote.Version, TourEvent{State: st, Source: SourceRemote})
	return nil
}

// writeSynced must run inside an update transaction.
func (s *Store) writeSynced(txn *badger.Txn, remote *models.Tour) error {
	now := s.now()
	t := remote.Clone()
	lt := models.LocalTour{Tour: *t, Meta: models.SyncMetadata{
		TourID:         t.ID,
		State:          models.SyncStateSynced,
		BaseVersion:    t.Version,
		LocalUpdatedAt: now,
		LastSyncedAt:   &now,
		ContentHash:    t.ContentHash(),
	}}
	if err := setJSON(txn, prefixTour+t.ID, &lt); err != nil {
		return err
	}
	return setJSON(txn, prefixBase+t.ID, t)
}

func deleteRecord(txn *badger.Txn, id string) error {
	if err := txn.Delete([]byte(prefixTour + id)); err != nil {
		return err
	}
	return txn.Delete([]byte(prefixBase + id))
}

// MarkSynced records a push the server acknowledged with ack (the stored
// server copy). If the working copy changed while the push was in flight
// it stays dirty on top of the new base. An acknowledged delete removes
// the record.
func (s *Store) MarkSynced(ctx context.Context, ack *models.Tour) error {
	if ack == nil || ack.ID == "" {
		return errors.New("acknowledged tour is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var lt models.LocalTour
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, prefixTour+ack.ID, &lt); err != nil {
			return err
		}
		if ack.IsDeleted() {
			return deleteRecord(txn, ack.ID)
		}
		if lt.Meta.ContentHash == ack.ContentHash() {
			return s.writeSynced(txn, ack)
		}
		// edited again mid-push
		lt.Tour.Version = ack.Version
		lt.Meta.BaseVersion = ack.Version
		lt.Meta.LastSyncedAt = &now
		lt.Meta.Attempts = 0
		lt.Meta.LastError = ""
		if err := setJSON(txn, prefixTour+ack.ID, &lt); err != nil {
			return err
		}
		return setJSON(txn, prefixBase+ack.ID, ack)
	})
	if err != nil {
		return fmt.Errorf("mark synced %s: %w", ack.ID, err)
	}
	if ack.IsDeleted() {
		s.publish(ctx, events.TourDeleted, ack.TenantID, ack.ID, ack.Version, TourEvent{Source: SourceLocal})
	}
	return nil
}

// MarkConflict parks the record in conflict until it is resolved.
func (s *Store) MarkConflict(ctx context.Context, c *models.Conflict) error {
	if c == nil || c.TourID == "" {
		return errors.New("conflict is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var lt models.LocalTour
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, prefixTour+c.TourID, &lt); err != nil {
			return err
		}
		if c.DetectedAt.IsZero() {
			c.DetectedAt = s.now()
		}
		lt.Meta.State = models.SyncStateConflict
		lt.Meta.Conflict = c
		return setJSON(txn, prefixTour+c.TourID, &lt)
	})
	if err != nil {
		return fmt.Errorf("mark conflict %s: %w", c.TourID, err)
	}
	s.publish(ctx, events.ConflictDetected, lt.Tour.TenantID, c.TourID, lt.Meta.BaseVersion,
		map[string]any{"kind": c.Kind, "fields": c.Fields})
	return nil
}

// Resolve replaces a conflict with its resolution. remote is the server
// copy the conflict was detected against (a tombstone for update_delete)
// and becomes the new base. A deleted resolution becomes a pending delete,
// a resolution equal to a live remote is synced, and anything else is
// dirty on top of remote.Version.
func (s *Store) Resolve(ctx context.Context, resolved, remote *models.Tour) (*models.LocalTour, error) {
	if resolved == nil || remote == nil || resolved.ID != remote.ID {
		return nil, errors.New("resolved and remote copies of the same tour are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var lt models.LocalTour
	removed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, prefixTour+resolved.ID, &lt); err != nil {
			return err
		}
		switch {
		case resolved.IsDeleted() && remote.IsDeleted():
			removed = true
			return deleteRecord(txn, resolved.ID)
		case !remote.IsDeleted() && !resolved.IsDeleted() && resolved.ContentHash() == remote.ContentHash():
			if err := s.writeSynced(txn, remote); err != nil {
				return err
			}
			return getJSON(txn, prefixTour+resolved.ID, &lt)
		}

		t := resolved.Clone()
		t.Version = remote.Version
		t.UpdatedAt = now
		state := models.SyncStateDirty
		if t.IsDeleted() {
			state = models.SyncStatePendingDelete
		}
		lt = models.LocalTour{Tour: *t, Meta: models.SyncMetadata{
			TourID:         t.ID,
			State:          state,
			BaseVersion:    remote.Version,
			LocalUpdatedAt: now,
			LastSyncedAt:   lt.Meta.LastSyncedAt,
			ContentHash:    t.ContentHash(),
		}}
		if err := setJSON(txn, prefixTour+t.ID, &lt); err != nil {
			return err
		}
		return setJSON(txn, prefixBase+t.ID, remote)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", resolved.ID, err)
	}

	s.publish(ctx, events.ConflictResolved, remote.TenantID, resolved.ID, remote.Version,
		TourEvent{State: lt.Meta.State, Source: SourceLocal})
	if removed {
		return nil, nil
	}
	return &lt, nil
}

// MarkFailed records a failed push. The sync state is unchanged.
func (s *Store) MarkFailed(_ context.Context, id string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		var lt models.LocalTour
		if err := getJSON(txn, prefixTour+id, &lt); err != nil {
			return err
		}
		lt.Meta.Attempts++
		if cause != nil {
			lt.Meta.LastError = cause.Error()
		}
		return setJSON(txn, prefixTour+id, &lt)
	})
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	return nil
}

// Remove drops the record and its base without telling the server.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lt models.LocalTour
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, prefixTour+id, &lt); err != nil {
			return err
		}
		return deleteRecord(txn, id)
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	s.publish(ctx, events.TourDeleted, lt.Tour.TenantID, id, lt.Meta.BaseVersion, TourEvent{Source: SourceLocal})
	return nil
}

// Stats counts records per sync state.
func (s *Store) Stats(_ context.Context) (map[models.SyncState]int, error) {
	all, err := s.scan(ListFilter{IncludeDeleted: true})
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	out := make(map[models.SyncState]int, 4)
	for i := range all {
		out[all[i].Meta.State]++
	}
	return out, nil
}

// Cursor returns the change-feed position of the last completed pull, or
// the zero time before the first pull.
func (s *Store) Cursor(_ context.Context) (time.Time, error) {
	var c time.Time
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyCursor))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return c.UnmarshalText(val)
		})
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("read cursor: %w", err)
	}
	return c, nil
}

func (s *Store) SetCursor(_ context.Context, c time.Time) error {
	b, err := c.UTC().MarshalText()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyCursor), b)
	})
}
