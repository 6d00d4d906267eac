// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/conflict"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/localstore"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/metrics"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

var (
	// ErrRunning is returned by Run while another pass is in progress.
	ErrRunning = errors.New("sync pass already running")
	// ErrNoConflict is returned by ResolveConflict for a record that is
	// not in conflict.
	ErrNoConflict = errors.New("tour is not in conflict")
)

// maxJobError is the longest error the server stores on a sync job.
const maxJobError = 2000

// LocalStore is the part of *localstore.Store the engine uses.
type LocalStore interface {
	ClientID() string
	Get(ctx context.Context, id string) (*models.LocalTour, error)
	Base(ctx context.Context, id string) (*models.Tour, error)
	ListDirty(ctx context.Context) ([]models.LocalTour, error)
	ApplyRemote(ctx context.Context, remote *models.Tour) error
	MarkSynced(ctx context.Context, ack *models.Tour) error
	MarkConflict(ctx context.Context, c *models.Conflict) error
	Resolve(ctx context.Context, resolved, remote *models.Tour) (*models.LocalTour, error)
	MarkFailed(ctx context.Context, id string, cause error) error
	Cursor(ctx context.Context) (time.Time, error)
	SetCursor(ctx context.Context, c time.Time) error
}

// Options configures an Engine.
type Options struct {
	Store  LocalStore
	Remote Remote
	// Bus receives sync.* events. May be nil.
	Bus      events.Publisher
	Policy   models.ConflictPolicy
	PageSize int
	// TenantID stamps events published before the server has told the
	// engine which tenant it syncs. Optional.
	TenantID string
}

// Report summarizes one sync pass.
type Report struct {
	JobID     string        `json:"job_id,omitempty"`
	Pulled    int           `json:"pulled"`
	Pushed    int           `json:"pushed"`
	Deleted   int           `json:"deleted"`
	Conflicts int           `json:"conflicts"`
	Resolved  int           `json:"resolved"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Engine runs sync passes between a LocalStore and a Remote.
type Engine struct {
	store    LocalStore
	remote   Remote
	bus      events.Publisher
	policy   models.ConflictPolicy
	pageSize int
	logger   zerolog.Logger

	running atomic.Bool
	mu      gosync.RWMutex
	tenant  string
	last    *Report
}

// NewEngine returns an engine. Remote should normally be a GuardedRemote.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Remote == nil {
		return nil, errors.New("store and remote are required")
	}
	if opts.Policy == "" {
		opts.Policy = models.PolicyManual
	}
	if _, ok := conflict.StrategyFor(opts.Policy); !ok && opts.Policy != models.PolicyManual {
		return nil, fmt.Errorf("unknown conflict policy %q", opts.Policy)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	return &Engine{
		store:    opts.Store,
		remote:   opts.Remote,
		bus:      opts.Bus,
		policy:   opts.Policy,
		pageSize: opts.PageSize,
		tenant:   opts.TenantID,
		logger:   logging.WithComponent("sync").With().Str("client_id", opts.Store.ClientID()).Logger(),
	}, nil
}

// LastReport returns the report of the last finished pass, or nil.
func (e *Engine) LastReport() *Report {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// Run performs one sync pass: open a server sync job, pull, push, and
// close the job. Per-record push failures are counted in the report and
// do not fail the pass; a failed pull or an unreachable server does.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrRunning
	}
	defer e.running.Store(false)

	start := time.Now()
	rep := &Report{}

	dirty, err := e.store.ListDirty(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dirty tours: %w", err)
	}
	job, err := e.remote.CreateSyncJob(ctx, &models.SyncJob{
		Kind:       models.JobTourSync,
		TotalItems: len(dirty),
	})
	if err != nil {
		e.publish(ctx, events.SyncFailed, "", map[string]string{"error": err.Error()})
		return nil, fmt.Errorf("open sync job: %w", err)
	}
	rep.JobID = job.ID
	e.setTenant(job.TenantID)
	log := e.logger.With().Str("job_id", job.ID).Logger()
	log.Info().Int("dirty", len(dirty)).Msg("Sync pass started")
	e.publish(ctx, events.SyncStarted, "", events.ProgressPayload{Total: int64(len(dirty)), Stage: "start", RefID: job.ID})

	runErr := e.pull(ctx, job.ID, rep)
	if runErr == nil {
		runErr = e.push(ctx, job.ID, rep)
	}
	rep.Duration = time.Since(start)
	metrics.SyncRunDuration.Observe(rep.Duration.Seconds())

	if err := e.finishJob(ctx, job, rep, runErr); err != nil {
		log.Warn().Err(err).Msg("Failed to close sync job")
	}

	e.mu.Lock()
	e.last = rep
	e.mu.Unlock()

	if runErr != nil {
		log.Error().Err(runErr).Int("pulled", rep.Pulled).Int("pushed", rep.Pushed).Msg("Sync pass failed")
		e.publish(ctx, events.SyncFailed, "", map[string]any{"job_id": job.ID, "error": runErr.Error(), "report": rep})
		return rep, runErr
	}
	log.Info().
		Int("pulled", rep.Pulled).
		Int("pushed", rep.Pushed).
		Int("deleted", rep.Deleted).
		Int("conflicts", rep.Conflicts).
		Int("resolved", rep.Resolved).
		Int("failed", rep.Failed).
		Dur("duration", rep.Duration).
		Msg("Sync pass completed")
	e.publish(ctx, events.SyncCompleted, "", rep)
	return rep, nil
}

func (e *Engine) finishJob(ctx context.Context, job *models.SyncJob, rep *Report, runErr error) error {
	// the job is closed even when the pass was canceled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	status := models.JobCompleted
	var msg *string
	if runErr != nil {
		status = models.JobFailed
		s := runErr.Error()
		if len(s) > maxJobError {
			s = s[:maxJobError]
		}
		msg = &s
	}
	processed := rep.Pulled + rep.Pushed + rep.Deleted
	failed := rep.Failed
	total := processed + failed + (rep.Conflicts - rep.Resolved)
	_, err := e.remote.UpdateSyncJob(ctx, job.ID, models.SyncJobUpdate{
		Status:         &status,
		TotalItems:     &total,
		ProcessedItems: &processed,
		FailedItems:    &failed,
		Error:          msg,
	})
	if err == nil {
		metrics.SyncJobsTotal.WithLabelValues(string(job.Kind), string(status)).Inc()
	}
	return err
}

// pull applies the server change feed from the stored cursor.
func (e *Engine) pull(ctx context.Context, jobID string, rep *Report) error {
	cursor, err := e.store.Cursor(ctx)
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}
	var seen int64
	for {
		page, err := e.remote.Changes(ctx, cursor, e.pageSize)
		if err != nil {
			return fmt.Errorf("pull changes: %w", err)
		}
		for i := range page.Tours {
			if err := e.applyRemote(ctx, &page.Tours[i], rep); err != nil {
				return err
			}
		}
		seen += int64(len(page.Tours))
		if page.Cursor.After(cursor) {
			cursor = page.Cursor
			if err := e.store.SetCursor(ctx, cursor); err != nil {
				return fmt.Errorf("save cursor: %w", err)
			}
		}
		if len(page.Tours) > 0 {
			e.publish(ctx, events.SyncProgress, "", events.ProgressPayload{Done: seen, Total: seen, Stage: "pull", RefID: jobID})
		}
		if !page.HasMore || len(page.Tours) == 0 {
			return nil
		}
	}
}

// applyRemote merges one server copy into the local store.
func (e *Engine) applyRemote(ctx context.Context, remote *models.Tour, rep *Report) error {
	local, err := e.store.Get(ctx, remote.ID)
	if errors.Is(err, localstore.ErrNotFound) {
		if remote.IsDeleted() {
			return nil
		}
		if err := e.store.ApplyRemote(ctx, remote); err != nil {
			return err
		}
		rep.Pulled++
		return nil
	}
	if err != nil {
		return fmt.Errorf("read local %s: %w", remote.ID, err)
	}

	switch local.Meta.State {
	case models.SyncStateSynced:
		if remote.Version <= local.Meta.BaseVersion {
			return nil
		}
		if err := e.store.ApplyRemote(ctx, remote); err != nil {
			return err
		}
		rep.Pulled++
		return nil

	case models.SyncStateConflict:
		if c := local.Meta.Conflict; c != nil && c.Remote != nil && remote.Version <= c.Remote.Version {
			return nil
		}
	}

	base, err := e.store.Base(ctx, remote.ID)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return fmt.Errorf("read base %s: %w", remote.ID, err)
	}
	if c := conflict.Detect(local, base, remote); c != nil {
		_, err := e.handleConflict(ctx, c, rep)
		return err
	}
	if remote.Version > local.Meta.BaseVersion {
		// both sides converged on the same content, or the delete was
		// made on both sides
		if err := e.store.MarkSynced(ctx, remote); err != nil {
			return err
		}
		rep.Pulled++
	}
	return nil
}

// handleConflict parks c and then settles it by policy when it can. It
// returns the record after resolution, or nil when it stays in conflict
// or was removed.
func (e *Engine) handleConflict(ctx context.Context, c *models.Conflict, rep *Report) (*models.LocalTour, error) {
	rep.Conflicts++
	if err := e.store.MarkConflict(ctx, c); err != nil {
		return nil, err
	}
	log := e.logger.With().Str("tour_id", c.TourID).Str("kind", string(c.Kind)).Logger()

	resolved, strategy, err := conflict.AutoResolve(c, e.policy)
	if err != nil {
		return nil, fmt.Errorf("resolve conflict on %s: %w", c.TourID, err)
	}
	if resolved == nil {
		metrics.SyncConflicts.WithLabelValues(string(c.Kind), "manual").Inc()
		log.Warn().Strs("fields", c.Fields).Msg("Conflict needs a manual decision")
		return nil, nil
	}

	lt, err := e.store.Resolve(ctx, resolved, c.Remote)
	if err != nil {
		return nil, err
	}
	rep.Resolved++
	metrics.SyncConflicts.WithLabelValues(string(c.Kind), string(strategy)).Inc()
	log.Info().Str("strategy", string(strategy)).Msg("Conflict resolved by policy")
	return lt, nil
}

// push sends every dirty record. A record that fails is marked and
// skipped; errors that would fail every record end the pass.
func (e *Engine) push(ctx context.Context, jobID string, rep *Report) error {
	dirty, err := e.store.ListDirty(ctx)
	if err != nil {
		return fmt.Errorf("list dirty tours: %w", err)
	}
	total := int64(len(dirty))
	for i := range dirty {
		lt := &dirty[i]
		err := e.pushRecord(ctx, lt, rep, true)
		if err != nil {
			if fatal(err) {
				return fmt.Errorf("push %s: %w", lt.Tour.ID, err)
			}
			rep.Failed++
			e.logger.Warn().Err(err).Str("tour_id", lt.Tour.ID).Msg("Push failed")
			if merr := e.store.MarkFailed(ctx, lt.Tour.ID, err); merr != nil && !errors.Is(merr, localstore.ErrNotFound) {
				return merr
			}
		}
		e.publish(ctx, events.SyncProgress, "", events.ProgressPayload{Done: int64(i + 1), Total: total, Stage: "push", RefID: jobID})
	}
	return nil
}

// fatal reports errors that end the pass rather than one record.
func fatal(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, gobreaker.ErrOpenState)
}

// pushRecord sends one record. When the server reports a conflict that the
// policy settles, the resolution is pushed once more if retry is set.
func (e *Engine) pushRecord(ctx context.Context, lt *models.LocalTour, rep *Report, retry bool) error {
	var (
		ack *models.Tour
		err error
	)
	id := lt.Tour.ID
	switch {
	case lt.Meta.State == models.SyncStatePendingDelete:
		ack, err = e.remote.DeleteTour(ctx, id, lt.Meta.BaseVersion)
		if errors.Is(err, ErrNotFound) {
			// never reached the server or already purged
			ack, err = lt.Tour.Clone(), nil
			if ack.DeletedAt == nil {
				now := time.Now().UTC()
				ack.DeletedAt = &now
			}
		}
	case lt.Meta.BaseVersion == 0:
		ack, err = e.remote.CreateTour(ctx, &lt.Tour)
	default:
		ack, err = e.remote.UpdateTour(ctx, &lt.Tour, lt.Meta.BaseVersion)
	}

	if errors.Is(err, ErrConflict) {
		return e.pushConflict(ctx, lt, err, rep, retry)
	}
	if err != nil {
		return err
	}
	if err := e.store.MarkSynced(ctx, ack); err != nil {
		return err
	}
	if ack.IsDeleted() {
		rep.Deleted++
	} else {
		rep.Pushed++
	}
	return nil
}

func (e *Engine) pushConflict(ctx context.Context, lt *models.LocalTour, cause error, rep *Report, retry bool) error {
	id := lt.Tour.ID
	remote := currentCopy(cause)
	if remote == nil {
		var err error
		remote, err = e.remote.GetTour(ctx, id)
		if err != nil {
			return fmt.Errorf("fetch server copy after conflict: %w", err)
		}
	}
	base, err := e.store.Base(ctx, id)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return err
	}

	c := conflict.Detect(lt, base, remote)
	if c == nil {
		if !remote.IsDeleted() && remote.ContentHash() == lt.Meta.ContentHash ||
			remote.IsDeleted() && lt.Meta.State == models.SyncStatePendingDelete {
			if err := e.store.MarkSynced(ctx, remote); err != nil {
				return err
			}
			rep.Pulled++
			return nil
		}
		return cause
	}

	resolved, err := e.handleConflict(ctx, c, rep)
	if err != nil || resolved == nil || !retry || !resolved.Meta.State.NeedsPush() {
		return err
	}
	return e.pushRecord(ctx, resolved, rep, false)
}

// ResolveConflict settles a conflict with strategy. The resolution is
// stored locally and reaches the server on the next pass.
func (e *Engine) ResolveConflict(ctx context.Context, id string, strategy models.ResolutionStrategy) (*models.LocalTour, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("unknown resolution strategy %q", strategy)
	}
	lt, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c := lt.Meta.Conflict
	if lt.Meta.State != models.SyncStateConflict || c == nil {
		return nil, ErrNoConflict
	}
	resolved, err := conflict.Resolve(c, strategy)
	if err != nil {
		return nil, err
	}
	out, err := e.store.Resolve(ctx, resolved, c.Remote)
	if err != nil {
		return nil, err
	}
	metrics.SyncConflicts.WithLabelValues(string(c.Kind), string(strategy)).Inc()
	e.logger.Info().Str("tour_id", id).Str("strategy", string(strategy)).Msg("Conflict resolved")
	return out, nil
}

func (e *Engine) setTenant(tenantID string) {
	if tenantID == "" {
		return
	}
	e.mu.Lock()
	e.tenant = tenantID
	e.mu.Unlock()
}

// publish sends a best-effort sync event.
func (e *Engine) publish(ctx context.Context, typ events.Type, tourID string, payload any) {
	if e.bus == nil {
		return
	}
	e.mu.RLock()
	tenant := e.tenant
	e.mu.RUnlock()
	if tenant == "" {
		return
	}
	ev, err := events.New(typ, tenant, tourID, e.store.ClientID(), 0, payload)
	if err == nil {
		err = e.bus.Publish(ctx, ev)
	}
	if err != nil {
		e.logger.Debug().Err(err).Str("type", string(typ)).Msg("Failed to publish sync event")
	}
}
