// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

// Package main is the Plan and Point sync server.
//
// The server is the authoritative copy of every tenant's virtual tours. It
// serves the versioned tour API, records sync jobs, accepts resumable
// chunked uploads for photos and backups, and relays change events to
// connected devices over WebSocket.
//
// # Startup
//
//  1. Configuration (koanf: defaults, config.yaml, environment)
//  2. Logging
//  3. DuckDB store
//  4. Blob store (local directory or S3)
//  5. Event bus (in-memory, or NATS with an optional embedded server)
//  6. Upload manager, WebSocket hub, event bridge, audit trail
//  7. RBAC enforcer and HTTP router
//  8. Supervisor tree (data, messaging and api layers)
//
// # Example
//
//	export AUTH_MODE=none DEV_TENANT=acme
//	export EVENTS_TRANSPORT=nats NATS_EMBEDDED=true
//	./planpoint-server
//
// SIGINT and SIGTERM stop the tree; in-flight requests get
// server.shutdown_timeout to finish.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/api"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/audit"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/authz"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/blobstore"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/config"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/database"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/supervisor"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/supervisor/services"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/upload"
	ws "github.com/rrlrodriguez78/plan-and-point-sub002/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("storage", cfg.Storage.Backend).
		Str("events", cfg.Events.Transport).
		Str("auth_mode", cfg.Security.AuthMode).
		Msg("Starting Plan and Point server")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server stopped with error")
	}
	logging.Info().Msg("Server stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	blobs, err := blobstore.New(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("initialize blob store: %w", err)
	}

	bus, err := events.NewBus(&cfg.Events)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	// The tree closes the bus on shutdown; this covers early returns.
	defer func() { _ = bus.Close() }()
	logging.Info().Str("transport", bus.Transport()).Msg("Event bus ready")

	uploads := upload.NewManager(db, blobs, bus, cfg.Uploads)
	hub := ws.NewHub()
	bridge := ws.NewBridge(bus, hub)

	enforcer, err := authz.NewEnforcer(cfg.Security.PolicyPath)
	if err != nil {
		return fmt.Errorf("initialize rbac: %w", err)
	}

	if cfg.Security.AuthMode == "none" {
		logging.Warn().
			Str("tenant", cfg.Security.DevTenant).
			Str("role", cfg.Security.DevRole).
			Msg("Authentication is DISABLED (AUTH_MODE=none); every request runs as the development principal")
	}
	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	handler := api.NewHandler(db, uploads, bus, hub)
	var auditLog *audit.Logger
	if cfg.Audit.Enabled {
		auditLog = audit.NewLogger(db, cfg.Audit)
		handler.WithAudit(auditLog)
		logging.Info().Dur("retention", cfg.Audit.Retention).Msg("Audit trail enabled")
	}

	router, err := api.NewRouter(handler, &cfg.Security, enforcer)
	if err != nil {
		return fmt.Errorf("initialize router: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree := supervisor.NewTree("planpoint", logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	tree.AddDataService(services.NewUploadManagerService(uploads))
	if auditLog != nil {
		tree.AddDataService(auditLog)
	}
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(services.NewEventBridgeService(bridge))
	tree.AddMessagingService(services.NewEventBusService(bus))
	tree.AddAPIService(services.NewAPIServerService(server, server.Addr, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	treeErr := <-tree.ServeBackground(ctx)
	if errors.Is(treeErr, context.Canceled) {
		treeErr = nil
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}
	return treeErr
}
