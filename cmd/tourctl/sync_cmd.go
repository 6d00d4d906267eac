// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/supervisor"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/supervisor/services"
	tsync "github.com/rrlrodriguez78/plan-and-point-sub002/internal/sync"
	ws "github.com/rrlrodriguez78/plan-and-point-sub002/internal/websocket"
)

const storeGCInterval = 10 * time.Minute

func newSyncCmd(a *app) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull server changes and push local edits",
		Long: `Run one sync pass: pull every tour changed on the server since the last
pass, then push local edits and deletes. Conflicts are settled by the
configured policy (manual, local_wins, remote_wins, merge); the ones left
for a person show up in "tourctl conflicts list".

With --watch the pass repeats every --interval and whenever another device
changes a tour, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if watch {
				if interval <= 0 {
					interval = a.cfg.Sync.Interval
				}
				return a.watch(cmd.Context(), cmd.OutOrStdout(), interval)
			}
			rep, err := a.engine.Run(cmd.Context())
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep syncing until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between passes in watch mode (default sync.interval)")
	return cmd
}

func printReport(w io.Writer, rep *tsync.Report) {
	fmt.Fprintf(w, "Sync job %s finished in %s\n", rep.JobID, rep.Duration.Round(time.Millisecond))
	renderTable(w, []string{"PULLED", "PUSHED", "DELETED", "CONFLICTS", "RESOLVED", "FAILED"}, [][]string{{
		fmt.Sprint(rep.Pulled), fmt.Sprint(rep.Pushed), fmt.Sprint(rep.Deleted),
		fmt.Sprint(rep.Conflicts), fmt.Sprint(rep.Resolved), fmt.Sprint(rep.Failed),
	}})
	if open := rep.Conflicts - rep.Resolved; open > 0 {
		fmt.Fprintf(w, "%d conflict(s) need a decision: tourctl conflicts list\n", open)
	}
}

// watch runs the sync loop, the server event watcher and store GC under a
// supervisor tree until ctx is canceled or a signal arrives.
func (a *app) watch(ctx context.Context, out io.Writer, interval time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher := ws.NewWatcher(ws.WatcherConfig{
		ServerURL: a.cfg.Remote.URL,
		Token:     a.cfg.Remote.Token,
		ClientID:  a.store.ClientID(),
		Types:     []events.Type{events.TourSaved, events.TourDeleted},
	}, a.bus)

	tree := supervisor.NewTree("tourctl", logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureBackoff:  5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	})
	tree.AddDataService(services.NewStoreGCService(a.store, storeGCInterval))
	tree.AddMessagingService(services.NewRemoteEventsService(watcher))
	tree.AddMessagingService(services.NewSyncService(a.engine, interval, a.bus))

	logging.Info().
		Str("server", a.cfg.Remote.URL).
		Dur("interval", interval).
		Str("policy", a.cfg.Sync.ConflictPolicy).
		Msg("Watching for changes")

	err := <-tree.ServeBackground(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if rep := a.engine.LastReport(); rep != nil {
		printReport(out, rep)
	}
	return err
}
