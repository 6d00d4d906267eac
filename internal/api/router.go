// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/auth"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/authz"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/config"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/middleware"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/websocket"
)

// Authorization objects, matching the RBAC policy.
const (
	objTours    = "tours"
	objSyncJobs = "sync_jobs"
	objUploads  = "uploads"
	objBackups  = "backups"
	objEvents   = "events"
	objAudit    = "audit"
)

// Router wires handlers, authentication and authorization into chi.
type Router struct {
	handler  *Handler
	authn    *auth.Authenticator
	authz    *authz.Middleware
	security *config.SecurityConfig
}

// NewRouter builds a router. The authenticator and enforcer errors are
// rendered in the JSON envelope.
func NewRouter(h *Handler, sec *config.SecurityConfig, enforcer *authz.Enforcer) (*Router, error) {
	authn, err := auth.NewAuthenticator(sec, authError)
	if err != nil {
		return nil, err
	}
	h.allowOrigins(sec.CORSOrigins)
	return &Router{
		handler:  h,
		authn:    authn,
		authz:    authz.NewMiddleware(enforcer, h.deny),
		security: sec,
	}, nil
}

func (router *Router) cors() func(http.Handler) http.Handler {
	origins := router.security.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type",
			ClientIDHeader, ChunkChecksumHeader, middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
		MaxAge:         300,
	})
}

func (router *Router) rateLimit() func(http.Handler) http.Handler {
	if router.security.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		router.security.RateLimitReqs,
		router.security.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded", nil)
		}),
	)
}

// SetupChi returns the complete HTTP handler.
func (router *Router) SetupChi() http.Handler {
	h := router.handler
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.cors())
	r.Use(middleware.Metrics)
	r.Use(middleware.AccessLog)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.rateLimit())
		r.Use(router.authn.Middleware)

		read := func(obj string) func(http.Handler) http.Handler {
			return router.authz.Require(obj, authz.ActionRead)
		}
		write := func(obj string) func(http.Handler) http.Handler {
			return router.authz.Require(obj, authz.ActionWrite)
		}
		del := func(obj string) func(http.Handler) http.Handler {
			return router.authz.Require(obj, authz.ActionDelete)
		}

		r.Route("/tours", func(r chi.Router) {
			r.With(read(objTours)).Get("/", h.ListTours)
			r.With(write(objTours)).Post("/", h.CreateTour)
			r.With(read(objTours)).Get("/changes", h.TourChanges)
			r.With(read(objTours)).Get("/{id}", h.GetTour)
			r.With(write(objTours)).Put("/{id}", h.UpdateTour)
			r.With(del(objTours)).Delete("/{id}", h.DeleteTour)
		})

		r.Route("/sync/jobs", func(r chi.Router) {
			r.With(write(objSyncJobs)).Post("/", h.CreateSyncJob)
			r.With(read(objSyncJobs)).Get("/", h.ListSyncJobs)
			r.With(read(objSyncJobs)).Get("/{id}", h.GetSyncJob)
			r.With(write(objSyncJobs)).Patch("/{id}", h.UpdateSyncJob)
		})

		r.Route("/uploads", func(r chi.Router) {
			r.With(write(objUploads)).Post("/", h.InitUpload)
			r.With(write(objUploads)).Put("/{id}/chunks/{index}", h.PutChunk)
			r.With(read(objUploads)).Get("/{id}", h.UploadStatus)
			r.With(write(objUploads)).Post("/{id}/complete", h.CompleteUpload)
			r.With(del(objUploads)).Delete("/{id}", h.AbortUpload)
			r.With(read(objUploads)).Get("/{id}/content", h.UploadContent)
		})

		r.With(read(objBackups)).Get("/backups", h.ListBackups)

		r.With(write(objEvents)).Post("/events", h.RelayEvent)
		r.With(read(objEvents)).Get("/ws", h.ServeWS)

		r.With(router.authz.Require(objAudit, authz.ActionAudit)).Get("/audit", h.ListAudit)
	})

	return r
}

// wsClientID reads the sync origin of a WebSocket dial.
func wsClientID(r *http.Request) string {
	if id := r.Header.Get(websocket.ClientIDHeader); id != "" {
		return id
	}
	return r.URL.Query().Get("client_id")
}
