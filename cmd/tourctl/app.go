// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/config"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/localstore"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
	tsync "github.com/rrlrodriguez78/plan-and-point-sub002/internal/sync"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/upload"
)

// app holds what every subcommand shares: configuration, the local store
// and the sync engine talking to the server.
type app struct {
	// flags
	configPath string
	serverURL  string
	logLevel   string

	cfg    *config.ClientConfig
	bus    *events.Bus
	store  *localstore.Store
	remote *tsync.HTTPRemote
	guard  *tsync.Guard
	engine *tsync.Engine

	// swapped in tests
	loadConfig  func(path string) (*config.ClientConfig, error)
	initLogging func(logging.Config)
}

func newApp() *app {
	return &app{loadConfig: config.LoadClient, initLogging: logging.Init}
}

// setup runs before every subcommand.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := a.loadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.serverURL != "" {
		cfg.Remote.URL = a.serverURL
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg

	a.initLogging(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
		Output:    cmd.ErrOrStderr(),
	})

	a.bus = events.NewMemory(256)
	a.store, err = localstore.Open(localstore.Options{
		Dir:      cfg.Local.DataDir,
		InMemory: cfg.Local.InMemory,
		ClientID: cfg.Local.ClientID,
		Bus:      a.bus,
	})
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}

	a.remote, err = tsync.NewHTTPRemote(cfg.Remote, a.store.ClientID())
	if err != nil {
		return err
	}
	a.guard = tsync.NewGuard(cfg.Sync)
	a.engine, err = tsync.NewEngine(tsync.Options{
		Store:    a.store,
		Remote:   tsync.NewGuardedRemote(a.remote, a.guard),
		Bus:      a.bus,
		Policy:   models.ConflictPolicy(cfg.Sync.ConflictPolicy),
		PageSize: cfg.Sync.PageSize,
		TenantID: cfg.Local.TenantID,
	})
	return err
}

// close releases the store and bus. Safe when setup failed part way.
func (a *app) close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
		a.bus = nil
	}
	return errors.Join(errs...)
}

// tenant returns the configured tenant, or the tenant of the tours
// already in the store.
func (a *app) tenant(ctx context.Context) (string, error) {
	if a.cfg.Local.TenantID != "" {
		return a.cfg.Local.TenantID, nil
	}
	tours, err := a.store.List(ctx, localstore.ListFilter{IncludeDeleted: true})
	if err != nil {
		return "", err
	}
	for i := range tours {
		if t := tours[i].Tour.TenantID; t != "" {
			return t, nil
		}
	}
	return "", errors.New("tenant unknown: set local.tenant_id (TOURCTL_TENANT) or run tourctl sync first")
}

// uploader returns a chunked upload client sharing the sync rate limit.
func (a *app) uploader() *upload.Client {
	limiter := rate.NewLimiter(rate.Limit(a.cfg.Sync.RateLimit), a.cfg.Sync.RateBurst)
	return upload.NewClient(a.remote, a.cfg.Upload, limiter)
}

// workDir is where pending archives and downloads are kept.
func (a *app) workDir(name string) string {
	if a.cfg.Local.InMemory || a.cfg.Local.DataDir == "" {
		return filepath.Join(os.TempDir(), "tourctl-"+a.store.ClientID(), name)
	}
	return filepath.Join(a.cfg.Local.DataDir, name)
}

// progressBar prints upload progress on one line of w.
func progressBar(w io.Writer, label string) upload.ProgressFunc {
	return func(done, total int64) {
		pct := 100.0
		if total > 0 {
			pct = float64(done) * 100 / float64(total)
		}
		fmt.Fprintf(w, "\r%s %5.1f%% (%d/%d bytes)", label, pct, done, total)
		if done >= total {
			fmt.Fprintln(w)
		}
	}
}
