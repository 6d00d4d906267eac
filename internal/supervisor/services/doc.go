// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

// Package services adapts server and client components to suture.Service.
//
// Each adapter depends on a one or two method interface rather than the
// concrete component, so the package imports neither websocket, upload,
// localstore nor sync, and tests drive the adapters with small fakes.
//
//	Server side                         Client side (tourctl sync --watch)
//	APIServerService       api          NewStoreGCService        data
//	NewUploadManagerService data        NewRemoteEventsService   messaging
//	NewWebSocketHubService messaging    SyncService              messaging
//	NewEventBridgeService  messaging
//	EventBusService        messaging
package services
