// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/backup"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
	tsync "github.com/rrlrodriguez78/plan-and-point-sub002/internal/sync"
)

func newBackupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the local store and ship it to the server",
	}
	cmd.AddCommand(newBackupCreateCmd(a), newBackupUploadCmd(a), newBackupListCmd(a), newBackupRestoreCmd(a))
	return cmd
}

func newBackupCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create FILE",
		Short: "Write a backup archive of the tenant's local tours",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := a.tenant(cmd.Context())
			if err != nil {
				return err
			}
			m, err := backup.CreateFile(cmd.Context(), a.store, tenant, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d tour(s), checksum %s\n", args[0], m.TourCount, m.Checksum)
			return nil
		},
	}
}

func newBackupUploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Create a backup and upload it in resumable chunks",
		Long: `Create a backup archive and upload it to the server in chunks, tracked
as a backup_upload sync job. If an earlier upload was interrupted the same
archive is resumed, sending only the chunks the server is missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := a.tenant(cmd.Context())
			if err != nil {
				return err
			}
			up := backup.NewUploader(a.store, tsync.NewGuardedRemote(a.remote, a.guard), a.uploader(), a.workDir("backups"))
			res, err := up.Upload(cmd.Context(), tenant, progressBar(cmd.ErrOrStderr(), "backup"))
			if err != nil {
				return err
			}
			verb := "Uploaded"
			if res.Resumed {
				verb = "Resumed and uploaded"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s backup %s (%d tour(s), %s), job %s\n",
				verb, res.Session.ID, res.Manifest.TourCount, formatBytes(res.Session.TotalSize), res.Job.ID)
			return nil
		},
	}
}

func newBackupListCmd(a *app) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backups stored on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions, err := a.remote.ListBackups(cmd.Context(), models.UploadStatus(status), limit)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(sessions))
			for i := range sessions {
				s := &sessions[i]
				rows = append(rows, []string{
					s.ID, string(s.Status), formatBytes(s.TotalSize), s.Filename, formatTime(s.CreatedAt),
				})
			}
			renderTable(cmd.OutOrStdout(), []string{"ID", "STATUS", "SIZE", "FILE", "CREATED"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", string(models.UploadCompleted), "filter by upload status; empty for all")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of backups")
	return cmd
}

func newBackupRestoreCmd(a *app) *cobra.Command {
	var (
		file string
		mode string
	)
	cmd := &cobra.Command{
		Use:   "restore [UPLOAD_ID]",
		Short: "Restore tours from a server backup or a local archive",
		Long: `Restore tours from the backup with UPLOAD_ID on the server, or from a
local archive with --file. merge adds and refreshes tours but keeps any
with unpushed local edits; replace wipes the tenant's local tours first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := file
			if path == "" {
				if len(args) == 0 {
					return fmt.Errorf("give an UPLOAD_ID or --file")
				}
				downloaded, err := a.download(ctx, args[0])
				if err != nil {
					return err
				}
				defer os.Remove(downloaded)
				path = downloaded
			}

			archive, err := backup.ReadFile(path)
			if err != nil {
				return err
			}
			tenant := a.cfg.Local.TenantID
			if tenant == "" {
				tenant = archive.Manifest.TenantID
			}
			res, err := backup.Restore(ctx, a.store, archive, tenant, backup.RestoreMode(mode))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d tour(s) from %s: added %d, replaced %d, kept %d with local edits, removed %d\n",
				archive.Manifest.TourCount, formatTime(archive.Manifest.CreatedAt), res.Added, res.Replaced, res.Skipped, res.Removed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "restore from a local archive instead of the server")
	cmd.Flags().StringVar(&mode, "mode", string(backup.RestoreMerge), "merge or replace")
	return cmd
}

// download fetches an uploaded backup into the work dir and checks it
// against the checksum the server reports.
func (a *app) download(ctx context.Context, id string) (string, error) {
	dir := a.workDir("downloads")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, id+"-*.json.gz")
	if err != nil {
		return "", err
	}
	h := sha256.New()
	_, want, err := a.remote.Download(ctx, id, io.MultiWriter(f, h))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && want != "" && want != hex.EncodeToString(h.Sum(nil)) {
		err = fmt.Errorf("backup %s: downloaded content does not match checksum %s", id, want)
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return filepath.Clean(f.Name()), nil
}
