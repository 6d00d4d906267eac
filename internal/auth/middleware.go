// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/config"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
)

// ErrorFunc writes an authentication failure.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

// Authenticator resolves the principal of a request.
type Authenticator struct {
	mode    string
	jwt     *JWTManager
	dev     Principal
	onError ErrorFunc
}

// NewAuthenticator builds an authenticator from the security config.
// onError defaults to a plain 401.
func NewAuthenticator(cfg *config.SecurityConfig, onError ErrorFunc) (*Authenticator, error) {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
	}
	a := &Authenticator{mode: cfg.AuthMode, onError: onError}
	switch cfg.AuthMode {
	case "none":
		a.dev = Principal{UserID: cfg.DevUser, TenantID: cfg.DevTenant, Role: cfg.DevRole}
		if a.dev.UserID == "" {
			a.dev.UserID = "dev"
		}
		if a.dev.TenantID == "" {
			a.dev.TenantID = "default"
		}
		if a.dev.Role == "" {
			a.dev.Role = RoleAdmin
		}
		logging.Warn().Str("tenant_id", a.dev.TenantID).Msg("Authentication disabled; all requests run as the development principal")
	case "jwt":
		m, err := NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer)
		if err != nil {
			return nil, err
		}
		a.jwt = m
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}
	return a, nil
}

// Authenticate returns the principal of r.
func (a *Authenticator) Authenticate(r *http.Request) (*Principal, error) {
	if a.jwt == nil {
		p := a.dev
		return &p, nil
	}
	token := bearerToken(r)
	if token == "" {
		return nil, ErrNoCredentials
	}
	return a.jwt.ValidateToken(token)
}

// Middleware rejects unauthenticated requests and stores the principal
// in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.Authenticate(r)
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Str("path", r.URL.Path).Msg("Authentication failed")
			a.onError(w, r, err)
			return
		}
		ctx := logging.ContextWithTenant(WithPrincipal(r.Context(), p), p.TenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}
