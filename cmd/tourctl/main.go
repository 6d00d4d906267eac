// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

// Command tourctl is the field client for Plan and Point.
//
// It keeps a local-first copy of a tenant's tours in a Badger store, so
// tours can be edited with no connection, and reconciles that copy with
// the sync server on demand or continuously:
//
//	tourctl sync                      one pull/push pass
//	tourctl sync --watch              keep syncing; react to server events
//	tourctl tours list|show|import|delete
//	tourctl conflicts list|resolve
//	tourctl backup create|upload|list|restore
//	tourctl photos push FILE...
//	tourctl jobs list
//
// Configuration comes from --config, then TOURCTL_* environment variables
// (TOURCTL_SERVER_URL, TOURCTL_TOKEN, TOURCTL_TENANT, TOURCTL_DATA_DIR,
// TOURCTL_CONFLICT_POLICY, ...).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:               "tourctl",
		Short:             "Offline-first virtual tour sync client",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "client config file (YAML)")
	root.PersistentFlags().StringVar(&a.serverURL, "server", "", "sync server URL (overrides remote.url)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	root.AddCommand(
		newSyncCmd(a),
		newToursCmd(a),
		newConflictsCmd(a),
		newBackupCmd(a),
		newPhotosCmd(a),
		newJobsCmd(a),
	)
	return root
}

func main() {
	a := newApp()
	err := newRootCmd(a).ExecuteContext(context.Background())
	if cerr := a.close(); cerr != nil {
		fmt.Fprintln(os.Stderr, "tourctl: close local store:", cerr)
	}
	if err != nil {
		os.Exit(1)
	}
}
