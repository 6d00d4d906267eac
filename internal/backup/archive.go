// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package backup

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/localstore"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

// Source is the read side of the local store.
type Source interface {
	ClientID() string
	List(ctx context.Context, f localstore.ListFilter) ([]models.LocalTour, error)
	Base(ctx context.Context, id string) (*models.Tour, error)
}

// Create writes a compressed archive of every record of tenantID to w,
// pending deletes included.
func Create(ctx context.Context, src Source, tenantID string, w io.Writer) (*Manifest, error) {
	records, err := src.List(ctx, localstore.ListFilter{TenantID: tenantID, IncludeDeleted: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list local tours: %w", err)
	}

	entries := make([]Entry, 0, len(records))
	for i := range records {
		base, err := src.Base(ctx, records[i].Tour.ID)
		if err != nil && !errors.Is(err, localstore.ErrNotFound) {
			return nil, fmt.Errorf("failed to read base of %s: %w", records[i].Tour.ID, err)
		}
		entries = append(entries, Entry{Record: records[i], Base: base})
	}

	tours, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tours: %w", err)
	}
	sum := sha256.Sum256(tours)
	m := Manifest{
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().UTC(),
		TenantID:      tenantID,
		ClientID:      src.ClientID(),
		TourCount:     len(entries),
		Checksum:      hex.EncodeToString(sum[:]),
	}

	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(document{Manifest: m, Tours: tours}); err != nil {
		_ = gz.Close()
		return nil, fmt.Errorf("failed to write archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("tenant_id", tenantID).
		Int("tours", m.TourCount).
		Str("checksum", m.Checksum).
		Msg("Backup created")
	return &m, nil
}

// CreateFile writes an archive to path, replacing any existing file only
// once the new archive is complete.
//
//nolint:gosec // G304: path comes from the operator
func CreateFile(ctx context.Context, src Source, tenantID, path string) (*Manifest, error) {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup file: %w", err)
	}
	m, err := Create(ctx, src, tenantID, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("failed to move backup into place: %w", err)
	}
	return m, nil
}

// Read decodes and verifies an archive.
func Read(r io.Reader) (*Archive, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer gz.Close()

	var doc document
	if err := json.NewDecoder(gz).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Manifest.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrFormatVersion, doc.Manifest.FormatVersion)
	}
	sum := sha256.Sum256(doc.Tours)
	if hex.EncodeToString(sum[:]) != doc.Manifest.Checksum {
		return nil, ErrChecksum
	}

	var entries []Entry
	if err := json.Unmarshal(doc.Tours, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(entries) != doc.Manifest.TourCount {
		return nil, fmt.Errorf("%w: manifest lists %d tours, archive holds %d",
			ErrCorrupt, doc.Manifest.TourCount, len(entries))
	}
	return &Archive{Manifest: doc.Manifest, Entries: entries}, nil
}

// ReadFile reads and verifies the archive at path.
//
//nolint:gosec // G304: path comes from the operator
func ReadFile(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}
