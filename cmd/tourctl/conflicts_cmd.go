// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/localstore"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

func newConflictsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List and settle tours edited on both sides",
	}
	cmd.AddCommand(newConflictsListCmd(a), newConflictsResolveCmd(a))
	return cmd
}

func newConflictsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List unresolved conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tours, err := a.store.List(cmd.Context(), localstore.ListFilter{
				States: []models.SyncState{models.SyncStateConflict},
			})
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(tours))
			for i := range tours {
				lt := &tours[i]
				c := lt.Meta.Conflict
				if c == nil {
					continue
				}
				remote := "-"
				if c.Remote != nil {
					remote = fmt.Sprintf("v%d", c.Remote.Version)
				}
				rows = append(rows, []string{
					lt.Tour.ID, lt.Tour.Title, string(c.Kind), strings.Join(c.Fields, ","),
					fmt.Sprintf("v%d", lt.Meta.BaseVersion), remote, formatTime(c.DetectedAt),
				})
			}
			renderTable(cmd.OutOrStdout(), []string{"ID", "TITLE", "KIND", "FIELDS", "BASE", "REMOTE", "DETECTED"}, rows)
			return nil
		},
	}
}

func newConflictsResolveCmd(a *app) *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:   "resolve TOUR_ID",
		Short: "Settle a conflict by keeping one side or merging",
		Long: `Settle a conflict locally. keep_local keeps this device's copy,
keep_remote takes the server's, merge combines edits to different fields
and fails when both sides changed the same one. The outcome is pushed on
the next sync.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lt, err := a.engine.ResolveConflict(cmd.Context(), args[0], models.ResolutionStrategy(strategy))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tour %s resolved with %s; now %s\n", args[0], strategy, lt.Meta.State)
			if lt.Meta.State.NeedsPush() {
				fmt.Fprintln(cmd.OutOrStdout(), "Run tourctl sync to upload the result")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&strategy, "strategy", "s", string(models.Merge), "keep_local, keep_remote or merge")
	return cmd
}
