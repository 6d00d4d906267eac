// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package conflict

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

// ErrUnresolvable is returned when both sides changed the same field or item.
var ErrUnresolvable = errors.New("conflict cannot be merged automatically")

// UnresolvableError lists the contested fields. It unwraps to ErrUnresolvable.
type UnresolvableError struct {
	Fields []string
}

func (e *UnresolvableError) Error() string {
	return fmt.Sprintf("%s: contested %s", ErrUnresolvable, strings.Join(e.Fields, ", "))
}

func (e *UnresolvableError) Unwrap() error {
	return ErrUnresolvable
}

// Merge three-way merges local and remote against base. Scalar fields take
// the side that changed. Floor plans merge by id field by field; hotspots
// merge by id as whole items. Additions from both sides are kept; a
// deletion wins only when the other side left the item untouched. A nil
// base is treated as an empty tour. The result carries remote's version.
func Merge(base, local, remote *models.Tour) (*models.Tour, error) {
	if local == nil || remote == nil {
		return nil, errors.New("merge needs both sides")
	}
	if local.IsDeleted() || remote.IsDeleted() {
		return nil, &UnresolvableError{Fields: []string{"deleted"}}
	}
	if base == nil {
		base = &models.Tour{}
	}

	var contested []string
	out := remote.Clone()
	out.Title = pick("title", base.Title, local.Title, remote.Title, &contested)
	out.Description = pick("description", base.Description, local.Description, remote.Description, &contested)
	out.Status = pick("status", base.Status, local.Status, remote.Status, &contested)
	out.CoverPhotoID = pick("cover_photo_id", base.CoverPhotoID, local.CoverPhotoID, remote.CoverPhotoID, &contested)

	plans, c := mergeByID("floor_plans", base.FloorPlans, local.FloorPlans, remote.FloorPlans,
		func(fp *models.FloorPlan) string { return fp.ID }, floorPlanEqual, mergeFloorPlan)
	contested = append(contested, c...)
	sort.SliceStable(plans, func(i, j int) bool { return plans[i].Order < plans[j].Order })
	out.FloorPlans = plans

	if len(contested) > 0 {
		return nil, &UnresolvableError{Fields: contested}
	}
	return out, nil
}

func pick[T comparable](field string, base, local, remote T, contested *[]string) T {
	switch {
	case local == remote:
		return local
	case local == base:
		return remote
	case remote == base:
		return local
	default:
		*contested = append(*contested, field)
		return local
	}
}

func mergeFloorPlan(path string, base, local, remote *models.FloorPlan) (models.FloorPlan, []string) {
	var contested []string
	if base == nil {
		base = &models.FloorPlan{}
	}
	out := remote.Clone()
	out.Name = pick(path+".name", base.Name, local.Name, remote.Name, &contested)
	out.ImageURL = pick(path+".image_url", base.ImageURL, local.ImageURL, remote.ImageURL, &contested)
	out.Width = pick(path+".width", base.Width, local.Width, remote.Width, &contested)
	out.Height = pick(path+".height", base.Height, local.Height, remote.Height, &contested)
	out.Order = pick(path+".order", base.Order, local.Order, remote.Order, &contested)

	hs, c := mergeByID(path+".hotspots", base.Hotspots, local.Hotspots, remote.Hotspots,
		func(h *models.Hotspot) string { return h.ID }, hotspotEqual, nil)
	out.Hotspots = hs
	return out, append(contested, c...)
}

// mergeByID merges three versions of a list keyed by id. The result keeps
// remote's order with local additions appended. When both sides changed
// an item, mergeItem merges it; a nil mergeItem makes the item contested.
func mergeByID[T any](
	path string,
	base, local, remote []T,
	id func(*T) string,
	equal func(a, b *T) bool,
	mergeItem func(path string, base, local, remote *T) (T, []string),
) ([]T, []string) {
	index := func(items []T) map[string]*T {
		m := make(map[string]*T, len(items))
		for i := range items {
			m[id(&items[i])] = &items[i]
		}
		return m
	}
	bm, lm, rm := index(base), index(local), index(remote)

	order := make([]string, 0, len(remote)+len(local))
	for i := range remote {
		order = append(order, id(&remote[i]))
	}
	for i := range local {
		if _, ok := rm[id(&local[i])]; !ok {
			order = append(order, id(&local[i]))
		}
	}

	out := make([]T, 0, len(order))
	var contested []string
	for _, key := range order {
		b, inBase := bm[key]
		l, inLocal := lm[key]
		r, inRemote := rm[key]
		itemPath := fmt.Sprintf("%s[%s]", path, key)

		switch {
		case inLocal && inRemote:
			switch {
			case equal(l, r):
				out = append(out, *l)
			case inBase && equal(l, b):
				out = append(out, *r)
			case inBase && equal(r, b):
				out = append(out, *l)
			case mergeItem != nil:
				var bp *T
				if inBase {
					bp = b
				}
				merged, c := mergeItem(itemPath, bp, l, r)
				out = append(out, merged)
				contested = append(contested, c...)
			default:
				contested = append(contested, itemPath)
			}

		case inLocal:
			// absent remotely: deleted there, or added here
			if !inBase {
				out = append(out, *l)
			} else if !equal(l, b) {
				contested = append(contested, itemPath)
			}

		case inRemote:
			if !inBase {
				out = append(out, *r)
			} else if !equal(r, b) {
				contested = append(contested, itemPath)
			}
		}
	}
	return out, contested
}
