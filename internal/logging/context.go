// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	tenantIDKey  contextKey = "tenant_id"
	clientIDKey  contextKey = "client_id"
)

// GenerateRequestID returns a new random request id.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID returns ctx carrying the request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextWithTenant tags ctx with the tenant that owns the work being logged.
func ContextWithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// ContextWithClientID tags ctx with the sync client (device, tab, process) id.
func ContextWithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

// Ctx returns the global logger enriched with the ids stored in ctx.
//
//	logging.Ctx(ctx).Info().Msg("chunk stored")
func Ctx(ctx context.Context) *zerolog.Logger {
	lc := Logger().With()
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		lc = lc.Str("request_id", v)
	}
	if v, ok := ctx.Value(tenantIDKey).(string); ok && v != "" {
		lc = lc.Str("tenant_id", v)
	}
	if v, ok := ctx.Value(clientIDKey).(string); ok && v != "" {
		lc = lc.Str("client_id", v)
	}
	l := lc.Logger()
	return &l
}
