// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/config"
)

func TestCleanKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"backups/acme/1.json.gz", "backups/acme/1.json.gz", false},
		{"a//b/./c", "a/b/c", false},
		{"", "", true},
		{"/etc/passwd", "", true},
		{"../escape", "", true},
		{"a/../../escape", "", true},
		{"a\\b", "", true},
		{"..", "", true},
	}
	for _, tt := range tests {
		got, err := CleanKey(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("CleanKey(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("CleanKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLocalRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	store, err := New(ctx, &config.StorageConfig{Backend: "local", LocalDir: root})
	if err != nil {
		t.Fatal(err)
	}

	payload := []byte("compressed backup bytes")
	if err := store.Put(ctx, "backups/acme/b1", bytes.NewReader(payload), int64(len(payload)), "application/gzip"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	ok, err := store.Exists(ctx, "backups/acme/b1")
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v", ok, err)
	}

	rc, err := store.Get(ctx, "backups/acme/b1")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(got, payload) {
		t.Errorf("Get() = %q", got)
	}

	if err := store.Delete(ctx, "backups/acme/b1"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "backups/acme/b1"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "backups/acme/b1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestLocalPutSizeMismatchLeavesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	store, err := NewLocal(root)
	if err != nil {
		t.Fatal(err)
	}

	err = store.Put(ctx, "x/blob", strings.NewReader("abc"), 10, "")
	if err == nil {
		t.Fatal("Put() accepted a short body")
	}
	if ok, _ := store.Exists(ctx, "x/blob"); ok {
		t.Error("partial blob left behind")
	}
	entries, _ := os.ReadDir(filepath.Join(root, "x"))
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestLocalPutHonorsContext(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Put(ctx, "k", strings.NewReader("abc"), 3, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("Put() with canceled ctx error = %v", err)
	}
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{"": "", "/": "", "planpoint": "planpoint/", "/a/b/": "a/b/"} {
		if got := normalizePrefix(in); got != want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
	s := &S3{prefix: "planpoint/"}
	if k, err := s.objectKey("backups/x"); err != nil || k != "planpoint/backups/x" {
		t.Errorf("objectKey() = %q, %v", k, err)
	}
}

func TestNewUnknownBackend(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), &config.StorageConfig{Backend: "ftp"}); err == nil {
		t.Error("New() accepted unknown backend")
	}
}
