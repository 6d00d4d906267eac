// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

// Package localstore is the client's local-first tour cache. Every edit
// lands here first, tagged with sync metadata, and the sync engine
// reconciles it with the server later.
//
// Key layout in BadgerDB:
//
//	tour/<id>        LocalTour (working copy + SyncMetadata)
//	base/<id>        Tour, the last server copy the working copy derives from
//	meta/cursor      change-feed cursor (RFC 3339)
//	meta/client_id   this device's sync origin
//	upload/<key>     upload session id for a resumable upload
package localstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
)

var ErrNotFound = errors.New("not found in local store")

const (
	prefixTour   = "tour/"
	prefixBase   = "base/"
	prefixUpload = "upload/"
	keyCursor    = "meta/cursor"
	keyClientID  = "meta/client_id"
)

// Options configures Open.
type Options struct {
	Dir      string
	InMemory bool
	// ClientID overrides the persisted origin id.
	ClientID string
	// Bus receives tour.saved, tour.deleted and conflict events. Optional.
	Bus events.Publisher
}

// Store is a BadgerDB-backed local tour store. Writes are serialized.
type Store struct {
	db       *badger.DB
	bus      events.Publisher
	clientID string
	inMemory bool
	now      func() time.Time

	mu sync.Mutex
}

// Open opens (or creates) the store.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, fmt.Errorf("local store directory is required")
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &Store{
		db:       db,
		bus:      opts.Bus,
		inMemory: opts.InMemory,
		now:      func() time.Time { return time.Now().UTC() },
	}

	s.clientID, err = s.loadClientID(opts.ClientID)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.Info().Str("dir", opts.Dir).Bool("in_memory", opts.InMemory).Str("client_id", s.clientID).
		Msg("local store opened")
	return s, nil
}

func (s *Store) loadClientID(override string) (string, error) {
	if override != "" {
		return override, s.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(keyClientID), []byte(override))
		})
	}
	var id string
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyClientID))
		if err == nil {
			v, err := item.ValueCopy(nil)
			id = string(v)
			return err
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		id = ulid.Make().String()
		return txn.Set([]byte(keyClientID), []byte(id))
	})
	if err != nil {
		return "", fmt.Errorf("load client id: %w", err)
	}
	return id, nil
}

// ClientID is the origin stamped on every event this store publishes.
func (s *Store) ClientID() string {
	return s.clientID
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC reclaims value-log space every interval until ctx is done.
func (s *Store) RunGC(ctx context.Context, interval time.Duration) error {
	if s.inMemory {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for {
				// one rewrite per call; loop until nothing is left to reclaim
				if err := s.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						logging.Warn().Err(err).Msg("local store value log GC failed")
					}
					break
				}
			}
		}
	}
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), b)
}

// publish sends a best-effort notification; a lost event never fails a write.
func (s *Store) publish(ctx context.Context, typ events.Type, tenantID, tourID string, version int64, payload any) {
	if s.bus == nil {
		return
	}
	ev, err := events.New(typ, tenantID, tourID, s.clientID, version, payload)
	if err == nil {
		err = s.bus.Publish(ctx, ev)
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("type", string(typ)).Str("tour_id", tourID).
			Msg("failed to publish local store event")
	}
}
