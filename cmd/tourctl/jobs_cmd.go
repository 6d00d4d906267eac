// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
	tsync "github.com/rrlrodriguez78/plan-and-point-sub002/internal/sync"
)

func newJobsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect sync jobs recorded on the server",
	}
	cmd.AddCommand(newJobsListCmd(a))
	return cmd
}

func newJobsListCmd(a *app) *cobra.Command {
	var (
		kind   string
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sync jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, err := a.remote.ListSyncJobs(cmd.Context(), tsync.JobFilter{
				Kind:   models.SyncJobKind(kind),
				Status: models.SyncJobStatus(status),
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(jobs))
			for i := range jobs {
				j := &jobs[i]
				rows = append(rows, []string{
					j.ID, string(j.Kind), string(j.Status),
					fmt.Sprintf("%d/%d (%.0f%%)", j.ProcessedItems, j.TotalItems, j.Progress()*100),
					fmt.Sprint(j.FailedItems), formatTime(j.CreatedAt), truncate(j.Error, 48),
				})
			}
			renderTable(cmd.OutOrStdout(), []string{"ID", "KIND", "STATUS", "PROGRESS", "FAILED", "CREATED", "ERROR"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "tour_sync, photo_upload or backup_upload")
	cmd.Flags().StringVar(&status, "status", "", "pending, running, completed, failed or canceled")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
