// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package conflict

import (
	"errors"
	"fmt"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

// Resolve returns the winning content of c under strategy. The result
// carries the remote version, so pushing it is an update on top of the
// server copy. A deleted result means the tour should stay deleted.
func Resolve(c *models.Conflict, strategy models.ResolutionStrategy) (*models.Tour, error) {
	if c == nil || c.Local == nil || c.Remote == nil {
		return nil, errors.New("conflict is missing a side")
	}

	var out *models.Tour
	switch strategy {
	case models.KeepLocal:
		out = c.Local.Clone()
	case models.KeepRemote:
		out = c.Remote.Clone()
	case models.Merge:
		if c.Kind != models.ConflictUpdateUpdate {
			return nil, &UnresolvableError{Fields: []string{"deleted"}}
		}
		merged, err := Merge(c.Base, c.Local, c.Remote)
		if err != nil {
			return nil, err
		}
		out = merged
	default:
		return nil, fmt.Errorf("unknown resolution strategy %q", strategy)
	}
	out.Version = c.Remote.Version
	return out, nil
}

// StrategyFor maps a policy to the strategy it applies automatically.
// ok is false for the manual policy.
func StrategyFor(p models.ConflictPolicy) (s models.ResolutionStrategy, ok bool) {
	switch p {
	case models.PolicyLocalWins:
		return models.KeepLocal, true
	case models.PolicyRemoteWins:
		return models.KeepRemote, true
	case models.PolicyMerge:
		return models.Merge, true
	default:
		return "", false
	}
}

// AutoResolve applies policy to c. resolved is nil when the conflict must
// wait for a manual decision: the policy is manual, or merge could not
// settle it.
func AutoResolve(c *models.Conflict, policy models.ConflictPolicy) (resolved *models.Tour, strategy models.ResolutionStrategy, err error) {
	strategy, ok := StrategyFor(policy)
	if !ok {
		return nil, "", nil
	}
	resolved, err = Resolve(c, strategy)
	if errors.Is(err, ErrUnresolvable) {
		return nil, strategy, nil
	}
	if err != nil {
		return nil, strategy, err
	}
	return resolved, strategy, nil
}
