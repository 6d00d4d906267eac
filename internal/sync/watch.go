// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
)

// Watch runs a pass immediately, then every interval and whenever another
// client's tour change arrives on sub. Changes that arrive during a pass
// are folded into a single follow-up pass. sub may be nil. Watch returns
// nil when ctx is done; failed passes are logged and retried on the next
// trigger.
func (e *Engine) Watch(ctx context.Context, interval time.Duration, sub events.Subscriber) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", interval)
	}

	var changes <-chan events.Event
	if sub != nil {
		ch, err := sub.Subscribe(ctx, events.Filter{
			Types:         []events.Type{events.TourSaved, events.TourDeleted},
			ExcludeOrigin: e.store.ClientID(),
		})
		if err != nil {
			return fmt.Errorf("subscribe to tour changes: %w", err)
		}
		changes = ch
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info().Dur("interval", interval).Bool("live", changes != nil).Msg("Watching for changes")
	e.runOnce(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.runOnce(ctx, "interval")
		case ev, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			e.logger.Debug().Str("type", string(ev.Type)).Str("tour_id", ev.TourID).Str("origin", ev.Origin).
				Msg("Remote change announced")
			e.runOnce(ctx, "event")
			drain(changes)
			ticker.Reset(interval)
		}
	}
}

func (e *Engine) runOnce(ctx context.Context, trigger string) {
	_, err := e.Run(ctx)
	switch {
	case err == nil, errors.Is(err, ErrRunning):
	case ctx.Err() != nil:
	default:
		e.logger.Warn().Err(err).Str("trigger", trigger).Msg("Sync pass failed; will retry")
	}
}

// drain discards events queued while a pass ran; that pass already saw
// their changes or the next one will.
func drain(ch <-chan events.Event) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
