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

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/config"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/metrics"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/upload"
)

const breakerName = "sync-remote"

// Guard applies rate limiting, a circuit breaker, and retries to remote
// calls.
//
// The breaker only counts transport failures and 5xx answers. A 409 or 404
// is the server working correctly and never opens the circuit.
type Guard struct {
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[struct{}]
	attempts int
	delay    time.Duration
	maxDelay time.Duration
	logger   zerolog.Logger
}

// NewGuard builds a guard from the client sync settings.
func NewGuard(cfg config.SyncConfig) *Guard {
	g := &Guard{
		attempts: cfg.RetryAttempts,
		delay:    cfg.RetryDelay,
		maxDelay: cfg.MaxRetryDelay,
		logger:   logging.WithComponent("sync-guard"),
	}
	if g.attempts <= 0 {
		g.attempts = 3
	}
	if g.delay <= 0 {
		g.delay = 500 * time.Millisecond
	}
	if g.maxDelay < g.delay {
		g.maxDelay = 30 * g.delay
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	metrics.RecordBreakerState(breakerName, gobreaker.StateClosed.String())
	g.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !transient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Server circuit changed state")
			metrics.RecordBreakerState(name, to.String())
		},
	})
	return g
}

// State returns the breaker state name.
func (g *Guard) State() string {
	return g.breaker.State().String()
}

// transient reports whether err is worth retrying: transport failures,
// 429 and 5xx answers. Context errors and an open breaker are not.
func transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Transient()
	}
	return true
}

// Do runs fn with up to the configured number of attempts. Waits double
// after every transient failure, capped at the maximum delay.
func (g *Guard) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	return g.do(ctx, op, g.attempts, fn)
}

func (g *Guard) do(ctx context.Context, op string, attempts int, fn func(context.Context) error) error {
	var err error
	delay := g.delay

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if g.limiter != nil {
			if werr := g.limiter.Wait(ctx); werr != nil {
				return werr
			}
		}
		_, err = g.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, fn(ctx)
		})
		if err == nil || !transient(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		g.logger.Debug().Err(err).Str("call", op).Int("attempt", attempt).Dur("delay", delay).Msg("Retrying server call")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > g.maxDelay {
			delay = g.maxDelay
		}
	}
	if attempts > 1 {
		return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, err)
	}
	return err
}

// guarded runs fn through g and returns its result.
func guarded[T any](ctx context.Context, g *Guard, op string, attempts int, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := g.do(ctx, op, attempts, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}

// GuardedRemote is a Remote whose calls go through a Guard. Upload calls
// get a single attempt because upload.Client already retries them.
type GuardedRemote struct {
	remote Remote
	guard  *Guard
}

// NewGuardedRemote wraps remote.
func NewGuardedRemote(remote Remote, g *Guard) *GuardedRemote {
	return &GuardedRemote{remote: remote, guard: g}
}

func (r *GuardedRemote) Changes(ctx context.Context, since time.Time, limit int) (*models.TourChanges, error) {
	return guarded(ctx, r.guard, "changes", r.guard.attempts, func(ctx context.Context) (*models.TourChanges, error) {
		return r.remote.Changes(ctx, since, limit)
	})
}

func (r *GuardedRemote) GetTour(ctx context.Context, id string) (*models.Tour, error) {
	return guarded(ctx, r.guard, "get tour", r.guard.attempts, func(ctx context.Context) (*models.Tour, error) {
		return r.remote.GetTour(ctx, id)
	})
}

// CreateTour is retried: a repeated create with the same content is
// accepted by the server.
func (r *GuardedRemote) CreateTour(ctx context.Context, t *models.Tour) (*models.Tour, error) {
	return guarded(ctx, r.guard, "create tour", r.guard.attempts, func(ctx context.Context) (*models.Tour, error) {
		return r.remote.CreateTour(ctx, t)
	})
}

func (r *GuardedRemote) UpdateTour(ctx context.Context, t *models.Tour, expectedVersion int64) (*models.Tour, error) {
	return guarded(ctx, r.guard, "update tour", r.guard.attempts, func(ctx context.Context) (*models.Tour, error) {
		return r.remote.UpdateTour(ctx, t, expectedVersion)
	})
}

func (r *GuardedRemote) DeleteTour(ctx context.Context, id string, expectedVersion int64) (*models.Tour, error) {
	return guarded(ctx, r.guard, "delete tour", r.guard.attempts, func(ctx context.Context) (*models.Tour, error) {
		return r.remote.DeleteTour(ctx, id, expectedVersion)
	})
}

func (r *GuardedRemote) CreateSyncJob(ctx context.Context, job *models.SyncJob) (*models.SyncJob, error) {
	return guarded(ctx, r.guard, "create job", r.guard.attempts, func(ctx context.Context) (*models.SyncJob, error) {
		return r.remote.CreateSyncJob(ctx, job)
	})
}

func (r *GuardedRemote) GetSyncJob(ctx context.Context, id string) (*models.SyncJob, error) {
	return guarded(ctx, r.guard, "get job", r.guard.attempts, func(ctx context.Context) (*models.SyncJob, error) {
		return r.remote.GetSyncJob(ctx, id)
	})
}

func (r *GuardedRemote) ListSyncJobs(ctx context.Context, f JobFilter) ([]models.SyncJob, error) {
	return guarded(ctx, r.guard, "list jobs", r.guard.attempts, func(ctx context.Context) ([]models.SyncJob, error) {
		return r.remote.ListSyncJobs(ctx, f)
	})
}

func (r *GuardedRemote) UpdateSyncJob(ctx context.Context, id string, u models.SyncJobUpdate) (*models.SyncJob, error) {
	return guarded(ctx, r.guard, "update job", r.guard.attempts, func(ctx context.Context) (*models.SyncJob, error) {
		return r.remote.UpdateSyncJob(ctx, id, u)
	})
}

func (r *GuardedRemote) InitUpload(ctx context.Context, req upload.InitRequest) (*models.UploadSession, error) {
	return guarded(ctx, r.guard, "init upload", 1, func(ctx context.Context) (*models.UploadSession, error) {
		return r.remote.InitUpload(ctx, req)
	})
}

func (r *GuardedRemote) PutChunk(ctx context.Context, id string, index int, checksum string, body []byte) error {
	return r.guard.do(ctx, "put chunk", 1, func(ctx context.Context) error {
		return r.remote.PutChunk(ctx, id, index, checksum, body)
	})
}

func (r *GuardedRemote) UploadStatus(ctx context.Context, id string) (*models.UploadStatusReport, error) {
	return guarded(ctx, r.guard, "upload status", 1, func(ctx context.Context) (*models.UploadStatusReport, error) {
		return r.remote.UploadStatus(ctx, id)
	})
}

func (r *GuardedRemote) CompleteUpload(ctx context.Context, id string) (*models.UploadSession, error) {
	return guarded(ctx, r.guard, "complete upload", 1, func(ctx context.Context) (*models.UploadSession, error) {
		return r.remote.CompleteUpload(ctx, id)
	})
}
