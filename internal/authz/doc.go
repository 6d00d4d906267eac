// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

// Package authz enforces role-based access with Casbin.
//
// Roles inherit: admin > editor > viewer. Objects are API resources
// (tours, sync_jobs, uploads, backups, events, audit) and actions are
// read, write and delete, plus audit for reading the audit trail, which
// the viewer's blanket read does not cover. The model and the default
// policy are embedded; a policy file can replace the default.
package authz
