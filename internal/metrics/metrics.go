// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

// Package metrics exposes Prometheus instrumentation for the sync server and
// client: HTTP traffic, DuckDB queries, the SyncEvents bus, WebSocket
// clients, chunked uploads, sync jobs and the client sync engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planpoint_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planpoint_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "planpoint_api_active_requests",
			Help: "Requests currently being served",
		},
	)

	// DuckDB
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planpoint_db_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planpoint_db_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// SyncEvents
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planpoint_events_published_total",
			Help: "SyncEvents published, by type and transport",
		},
		[]string{"type", "transport"},
	)

	EventsPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planpoint_events_publish_errors_total",
			Help: "SyncEvents that failed to publish",
		},
		[]string{"transport"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planpoint_events_dropped_total",
			Help: "Events dropped because a subscriber was too slow",
		},
		[]string{"consumer"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "planpoint_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// WebSocket
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "planpoint_ws_connections",
			Help: "Open WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "planpoint_ws_messages_sent_total",
			Help: "Messages written to WebSocket clients",
		},
	)

	// Uploads
	UploadSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planpoint_upload_sessions_total",
			Help: "Upload sessions by final status",
		},
		[]string{"kind", "status"},
	)

	UploadChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planpoint_upload_chunks_total",
			Help: "Chunks received, by outcome",
		},
		[]string{"outcome"}, // stored, duplicate, rejected
	)

	UploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "planpoint_upload_bytes_total",
			Help: "Chunk bytes stored",
		},
	)

	UploadAssemblyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "planpoint_upload_assembly_duration_seconds",
			Help:    "Time to reassemble and store an uploaded file",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// Sync jobs and tours
	SyncJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planpoint_sync_jobs_total",
			Help: "Sync jobs reaching a terminal status",
		},
		[]string{"kind", "status"},
	)

	TourWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planpoint_tour_writes_total",
			Help: "Tour writes by operation and outcome",
		},
		[]string{"operation", "outcome"}, // outcome: ok, conflict
	)

	// Audit trail
	AuditEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planpoint_audit_events_total",
			Help: "Audit events by type and result (stored, dropped, failed)",
		},
		[]string{"type", "result"},
	)

	// Client sync engine
	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "planpoint_sync_run_duration_seconds",
			Help:    "Duration of client sync passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planpoint_sync_conflicts_total",
			Help: "Conflicts detected by the client sync engine, by kind and resolution",
		},
		[]string{"kind", "resolution"},
	)
)

// RecordAPIRequest records one served request.
func RecordAPIRequest(method, route string, status int, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordDBQuery records a query and, when err is non-nil, an error.
func RecordDBQuery(operation, table string, d time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(d.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordBreakerState maps a breaker state name to the gauge value.
func RecordBreakerState(name, state string) {
	v := 0.0
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(v)
}
