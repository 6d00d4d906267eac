// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
)

const defaultDrainTimeout = 10 * time.Second

// APIServer is the part of *http.Server the sync API service drives.
type APIServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// APIServerService serves the sync API and drains in-flight pushes,
// pulls and chunk uploads within drainTimeout when the tree stops it.
type APIServerService struct {
	srv          APIServer
	addr         string
	drainTimeout time.Duration
}

// NewAPIServerService wraps srv. addr is only used in log lines. A
// non-positive drainTimeout means 10s.
func NewAPIServerService(srv APIServer, addr string, drainTimeout time.Duration) *APIServerService {
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}
	return &APIServerService{srv: srv, addr: addr, drainTimeout: drainTimeout}
}

// Serve implements suture.Service.
func (a *APIServerService) Serve(ctx context.Context) error {
	exited := make(chan error, 1)
	go func() { exited <- a.listen() }()
	logging.Info().Str("addr", a.addr).Msg("Sync API listening")

	select {
	case err := <-exited:
		return err
	case <-ctx.Done():
	}

	if err := a.drain(); err != nil {
		return err
	}
	if err := <-exited; err != nil {
		return err
	}
	logging.Info().Str("addr", a.addr).Msg("Sync API drained")
	return ctx.Err()
}

// listen returns nil once Shutdown has closed the listener.
func (a *APIServerService) listen() error {
	err := a.srv.ListenAndServe()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("sync api listener on %s: %w", a.addr, err)
}

func (a *APIServerService) drain() error {
	// the parent context is already done
	ctx, cancel := context.WithTimeout(context.Background(), a.drainTimeout)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("sync api drain: %w", err)
	}
	return nil
}

func (a *APIServerService) String() string {
	return "sync-api"
}
