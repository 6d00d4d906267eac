// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package authz

import (
	"errors"
	"net/http"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/auth"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
)

var (
	ErrForbidden      = errors.New("insufficient permissions")
	ErrNoPrincipal    = errors.New("no authentication context")
	ErrEnforcerFailed = errors.New("authorization check failed")
)

// DenyFunc writes an authorization failure.
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

// Middleware checks the principal's role before a handler runs.
type Middleware struct {
	enforcer *Enforcer
	deny     DenyFunc
}

// NewMiddleware returns a middleware; deny defaults to a plain 403.
func NewMiddleware(e *Enforcer, deny DenyFunc) *Middleware {
	if deny == nil {
		deny = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusForbidden)
		}
	}
	return &Middleware{enforcer: e, deny: deny}
}

// Require allows the request only if the principal's role may perform
// action on object.
func (m *Middleware) Require(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFrom(r.Context())
			if p == nil {
				m.deny(w, r, ErrNoPrincipal)
				return
			}
			ok, err := m.enforcer.Enforce(p.Role, object, action)
			if err != nil {
				logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
				m.deny(w, r, ErrEnforcerFailed)
				return
			}
			if !ok {
				logging.Ctx(r.Context()).Debug().
					Str("role", p.Role).
					Str("object", object).
					Str("action", action).
					Msg("Access denied")
				m.deny(w, r, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActionFor maps an HTTP method to an action.
func ActionFor(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ActionRead
	case http.MethodDelete:
		return ActionDelete
	default:
		return ActionWrite
	}
}
