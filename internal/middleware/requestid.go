// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

// Package middleware holds the HTTP middleware shared by the API router.
package middleware

import (
	"net/http"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
)

// RequestIDHeader is honored when set by an upstream proxy.
const RequestIDHeader = "X-Request-ID"

// RequestID stores a request id in the context and echoes it back.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = logging.GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}
