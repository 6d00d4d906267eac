// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/localstore"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

func newToursCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tours",
		Short: "Inspect and edit tours in the local store",
	}
	cmd.AddCommand(newToursListCmd(a), newToursShowCmd(a), newToursImportCmd(a), newToursDeleteCmd(a))
	return cmd
}

func newToursListCmd(a *app) *cobra.Command {
	var (
		states []string
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List local tours and their sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := localstore.ListFilter{IncludeDeleted: all}
			for _, s := range states {
				st := models.SyncState(s)
				if !st.Valid() {
					return fmt.Errorf("unknown state %q", s)
				}
				f.States = append(f.States, st)
			}
			tours, err := a.store.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(tours))
			for i := range tours {
				lt := &tours[i]
				rows = append(rows, []string{
					lt.Tour.ID, lt.Tour.Title, string(lt.Meta.State),
					fmt.Sprint(lt.Meta.BaseVersion), fmt.Sprint(lt.Tour.PhotoCount()),
					formatTime(lt.Meta.LocalUpdatedAt),
				})
			}
			renderTable(cmd.OutOrStdout(), []string{"ID", "TITLE", "STATE", "BASE", "PHOTOS", "UPDATED"}, rows)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&states, "state", nil, "only these states (synced, dirty, conflict, pending_delete)")
	cmd.Flags().BoolVar(&all, "all", false, "include tours pending deletion")
	return cmd
}

func newToursShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show TOUR_ID",
		Short: "Print a tour and its sync metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lt, err := a.store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), lt)
		},
	}
}

func newToursImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Save tours from a JSON file (one tour or an array) as local edits",
		Long: `Read one tour object or an array of tours and save each one to the local
store as a local edit. Tours without an id get a new one; tours without a
tenant get the configured tenant. Nothing is sent until the next sync.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			tours, err := decodeTours(data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			n, err := a.importTours(cmd.Context(), tours)
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d tour(s); run tourctl sync to upload\n", n, len(tours))
			return err
		},
	}
}

func decodeTours(data []byte) ([]*models.Tour, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var tours []*models.Tour
		err := json.Unmarshal(data, &tours)
		return tours, err
	}
	var t models.Tour
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return []*models.Tour{&t}, nil
}

func (a *app) importTours(ctx context.Context, tours []*models.Tour) (int, error) {
	var tenant string
	for i, t := range tours {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.TenantID == "" {
			if tenant == "" {
				var err error
				if tenant, err = a.tenant(ctx); err != nil {
					return i, err
				}
			}
			t.TenantID = tenant
		}
		if t.Status == "" {
			t.Status = models.TourDraft
		}
		if _, err := a.store.SaveLocal(ctx, t); err != nil {
			return i, fmt.Errorf("tour %q: %w", t.Title, err)
		}
	}
	return len(tours), nil
}

func newToursDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TOUR_ID",
		Short: "Mark a tour deleted; the delete is pushed on the next sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lt, err := a.store.MarkDeleted(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if lt == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed never-synced tour %s\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tour %s is %s\n", args[0], lt.Meta.State)
			return nil
		},
	}
}
