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
	"github.com/goccy/go-json"
)

var jsonUnmarshal = json.Unmarshal

// SaveUpload remembers the server session for an upload so that a
// restarted client resumes it instead of starting over. key identifies
// the local file, for example its path and checksum.
func (s *Store) SaveUpload(_ context.Context, key, sessionID string) error {
	if key == "" || sessionID == "" {
		return errors.New("upload key and session id are required")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixUpload+key), []byte(sessionID))
	})
}

// UploadSession returns the remembered session id for key.
func (s *Store) UploadSession(_ context.Context, key string) (string, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixUpload + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		id = string(v)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return id, nil
}

// ClearUpload forgets key. Clearing an unknown key is not an error.
func (s *Store) ClearUpload(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixUpload + key))
	})
}
