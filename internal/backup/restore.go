// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/localstore"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

// Target is the write side of the local store.
type Target interface {
	Get(ctx context.Context, id string) (*models.LocalTour, error)
	Import(ctx context.Context, lt *models.LocalTour, base *models.Tour) error
	Wipe(ctx context.Context, tenantID string) (int, error)
}

// Restore loads a into dst. tenantID must match the archive's tenant.
func Restore(ctx context.Context, dst Target, a *Archive, tenantID string, mode RestoreMode) (*RestoreResult, error) {
	if a.Manifest.TenantID != tenantID {
		return nil, fmt.Errorf("%w: %s", ErrTenantMismatch, a.Manifest.TenantID)
	}
	res := &RestoreResult{}

	switch mode {
	case RestoreReplace:
		n, err := dst.Wipe(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to clear local tours: %w", err)
		}
		res.Removed = n
		for i := range a.Entries {
			e := &a.Entries[i]
			if err := dst.Import(ctx, &e.Record, e.Base); err != nil {
				return res, err
			}
			res.Added++
		}

	case RestoreMerge:
		for i := range a.Entries {
			e := &a.Entries[i]
			cur, err := dst.Get(ctx, e.Record.Tour.ID)
			switch {
			case errors.Is(err, localstore.ErrNotFound):
				res.Added++
			case err != nil:
				return res, err
			case cur.Meta.State != models.SyncStateSynced,
				// pulled again after the backup was taken
				e.Record.Meta.BaseVersion < cur.Meta.BaseVersion:
				res.Skipped++
				continue
			default:
				res.Replaced++
			}
			if err := dst.Import(ctx, &e.Record, e.Base); err != nil {
				return res, err
			}
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	logging.Ctx(ctx).Info().
		Str("mode", string(mode)).
		Int("added", res.Added).
		Int("replaced", res.Replaced).
		Int("skipped", res.Skipped).
		Int("removed", res.Removed).
		Msg("Backup restored")
	return res, nil
}
