// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/goccy/go-json"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/localstore"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/upload"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

func openStore(t *testing.T, clientID string) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(localstore.Options{InMemory: true, ClientID: clientID})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func synced(t *testing.T, s *localstore.Store, title string, version int64) *models.Tour {
	t.Helper()
	tour := models.NewTour("acme", "u-1", title)
	tour.Version = version
	if err := s.ApplyRemote(context.Background(), tour); err != nil {
		t.Fatal(err)
	}
	return tour
}

// seed fills a store with one synced, one dirty and one pending-delete tour.
func seed(t *testing.T, s *localstore.Store) (syncedTour, dirtyTour, deletedTour *models.Tour) {
	t.Helper()
	ctx := context.Background()
	syncedTour = synced(t, s, "Harbor", 2)

	dirtyTour = synced(t, s, "Loft", 5).Clone()
	dirtyTour.Title = "Loft, renovated"
	if _, err := s.SaveLocal(ctx, dirtyTour); err != nil {
		t.Fatal(err)
	}

	deletedTour = synced(t, s, "Shed", 1)
	if _, err := s.MarkDeleted(ctx, deletedTour.ID); err != nil {
		t.Fatal(err)
	}
	return syncedTour, dirtyTour, deletedTour
}

func TestCreateAndRead(t *testing.T) {
	src := openStore(t, "laptop")
	_, dirty, _ := seed(t, src)
	other := models.NewTour("globex", "u-9", "Not ours")
	if err := src.ApplyRemote(context.Background(), other); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	m, err := Create(context.Background(), src, "acme", &buf)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if m.TourCount != 3 || m.ClientID != "laptop" || m.FormatVersion != FormatVersion || len(m.Checksum) != 64 {
		t.Errorf("manifest = %+v", m)
	}

	a, err := Read(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if a.Manifest.Checksum != m.Checksum || !a.Manifest.CreatedAt.Equal(m.CreatedAt) || a.Manifest.TourCount != 3 {
		t.Errorf("manifest read back = %+v", a.Manifest)
	}
	found := false
	for _, e := range a.Entries {
		if e.Record.Tour.TenantID != "acme" {
			t.Errorf("archived tour of tenant %s", e.Record.Tour.TenantID)
		}
		if e.Record.Tour.ID == dirty.ID {
			found = true
			if e.Record.Meta.State != models.SyncStateDirty || e.Base == nil || e.Base.Title != "Loft" {
				t.Errorf("dirty entry = %+v base %+v", e.Record.Meta, e.Base)
			}
		}
	}
	if !found {
		t.Error("dirty tour missing from archive")
	}
}

func TestReadRejectsDamage(t *testing.T) {
	src := openStore(t, "laptop")
	seed(t, src)
	var buf bytes.Buffer
	if _, err := Create(context.Background(), src, "acme", &buf); err != nil {
		t.Fatal(err)
	}

	// decode, alter, re-encode without fixing the checksum
	rewrite := func(edit func(*document)) []byte {
		gz, err := gzip.NewReader(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatal(err)
		}
		var doc document
		if err := json.NewDecoder(gz).Decode(&doc); err != nil {
			t.Fatal(err)
		}
		edit(&doc)
		var out bytes.Buffer
		w := gzip.NewWriter(&out)
		if err := json.NewEncoder(w).Encode(doc); err != nil {
			t.Fatal(err)
		}
		_ = w.Close()
		return out.Bytes()
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"not gzip", []byte("plain text"), ErrCorrupt},
		{"truncated", buf.Bytes()[:buf.Len()/2], ErrCorrupt},
		{"tampered tours", rewrite(func(d *document) {
			d.Tours = bytes.Replace(d.Tours, []byte("Harbor"), []byte("Hacked"), 1)
		}), ErrChecksum},
		{"future format", rewrite(func(d *document) { d.Manifest.FormatVersion = 99 }), ErrFormatVersion},
		{"wrong count", rewrite(func(d *document) { d.Manifest.TourCount = 7 }), ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Read(bytes.NewReader(tt.data)); !errors.Is(err, tt.want) {
				t.Errorf("Read() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func archiveOf(t *testing.T, s *localstore.Store) *Archive {
	t.Helper()
	var buf bytes.Buffer
	if _, err := Create(context.Background(), s, "acme", &buf); err != nil {
		t.Fatal(err)
	}
	a, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestRestoreMerge(t *testing.T) {
	ctx := context.Background()
	src := openStore(t, "laptop")
	syncedTour, dirtyTour, deletedTour := seed(t, src)
	a := archiveOf(t, src)

	dst := openStore(t, "phone")
	// synced here: replaced by the archive
	stale := syncedTour.Clone()
	stale.Title = "Harbor (old)"
	stale.Version = 1
	if err := dst.ApplyRemote(ctx, stale); err != nil {
		t.Fatal(err)
	}
	// dirty here: kept
	mine := dirtyTour.Clone()
	mine.Title = "Loft, my version"
	if _, err := dst.SaveLocal(ctx, mine); err != nil {
		t.Fatal(err)
	}

	res, err := Restore(ctx, dst, a, "acme", RestoreMerge)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if *res != (RestoreResult{Added: 1, Replaced: 1, Skipped: 1}) {
		t.Errorf("result = %+v", res)
	}

	got, _ := dst.Get(ctx, syncedTour.ID)
	if got.Tour.Title != "Harbor" || got.Meta.BaseVersion != 2 {
		t.Errorf("synced record = %+v", got)
	}
	got, _ = dst.Get(ctx, dirtyTour.ID)
	if got.Tour.Title != "Loft, my version" {
		t.Errorf("local dirty work overwritten: %q", got.Tour.Title)
	}
	got, err = dst.Get(ctx, deletedTour.ID)
	if err != nil || got.Meta.State != models.SyncStatePendingDelete {
		t.Errorf("pending delete not restored: %+v, %v", got, err)
	}
}

func TestRestoreMergeKeepsNewerPull(t *testing.T) {
	ctx := context.Background()
	src := openStore(t, "laptop")
	old := synced(t, src, "Harbor", 3)
	a := archiveOf(t, src)

	dst := openStore(t, "phone")
	newer := old.Clone()
	newer.Title = "Harbor, winter"
	newer.Version = 7
	if err := dst.ApplyRemote(ctx, newer); err != nil {
		t.Fatal(err)
	}

	res, err := Restore(ctx, dst, a, "acme", RestoreMerge)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if *res != (RestoreResult{Skipped: 1}) {
		t.Errorf("result = %+v", res)
	}
	got, _ := dst.Get(ctx, old.ID)
	if got.Meta.BaseVersion != 7 || got.Meta.State != models.SyncStateSynced || got.Tour.Title != "Harbor, winter" {
		t.Errorf("record = %+v, want the v7 pull kept", got.Meta)
	}
}

func TestRestoreReplace(t *testing.T) {
	ctx := context.Background()
	src := openStore(t, "laptop")
	_, dirtyTour, _ := seed(t, src)
	a := archiveOf(t, src)

	dst := openStore(t, "phone")
	extra := synced(t, dst, "Only on phone", 1)
	mine := dirtyTour.Clone()
	mine.Title = "Loft, my version"
	if _, err := dst.SaveLocal(ctx, mine); err != nil {
		t.Fatal(err)
	}

	res, err := Restore(ctx, dst, a, "acme", RestoreReplace)
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 2 || res.Added != 3 {
		t.Errorf("result = %+v", res)
	}
	if _, err := dst.Get(ctx, extra.ID); !errors.Is(err, localstore.ErrNotFound) {
		t.Errorf("phone-only tour survived replace: %v", err)
	}
	got, _ := dst.Get(ctx, dirtyTour.ID)
	if got.Tour.Title != "Loft, renovated" || got.Meta.State != models.SyncStateDirty {
		t.Errorf("restored = %+v", got)
	}
	if b, err := dst.Base(ctx, dirtyTour.ID); err != nil || b.Title != "Loft" {
		t.Errorf("base not restored: %+v, %v", b, err)
	}

	if _, err := Restore(ctx, dst, a, "globex", RestoreMerge); !errors.Is(err, ErrTenantMismatch) {
		t.Errorf("cross-tenant restore error = %v", err)
	}
	if _, err := Restore(ctx, dst, a, "acme", "overlay"); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("unknown mode error = %v", err)
	}
}

type fakeJobs struct {
	created []models.SyncJob
	updates []models.SyncJobUpdate
}

func (f *fakeJobs) CreateSyncJob(_ context.Context, j *models.SyncJob) (*models.SyncJob, error) {
	out := *j
	out.ID = "job-" + string(rune('a'+len(f.created)))
	out.Status = models.JobPending
	f.created = append(f.created, out)
	return &out, nil
}

func (f *fakeJobs) UpdateSyncJob(_ context.Context, id string, u models.SyncJobUpdate) (*models.SyncJob, error) {
	f.updates = append(f.updates, u)
	j := models.SyncJob{ID: id}
	if u.Status != nil {
		j.Status = *u.Status
	}
	return &j, nil
}

// fakeSender reads the whole payload and fails the first failures calls
// after the session is known.
type fakeSender struct {
	failures int
	calls    []upload.Source
	received []byte
}

var errNetwork = errors.New("network unreachable")

func (f *fakeSender) Upload(_ context.Context, src upload.Source, progress upload.ProgressFunc) (*models.UploadSession, error) {
	f.calls = append(f.calls, src)
	s := &models.UploadSession{ID: "up-1", Status: models.UploadOpen, TotalSize: src.Size}
	if src.ResumeID != "" {
		s.ID = src.ResumeID
	}
	if err := src.OnSession(s); err != nil {
		return nil, err
	}
	if len(f.calls) <= f.failures {
		return nil, errNetwork
	}
	b := make([]byte, src.Size)
	if _, err := src.Data.ReadAt(b, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	f.received = b
	if progress != nil {
		progress(src.Size, src.Size)
	}
	s.Status = models.UploadCompleted
	s.BlobKey = "acme/backup/" + s.ID + "/" + src.Filename
	return s, nil
}

func TestUploaderResumesAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, "laptop")
	seed(t, store)
	jobs := &fakeJobs{}
	sender := &fakeSender{failures: 1}
	dir := t.TempDir()
	u := NewUploader(store, jobs, sender, dir)

	if _, err := u.Upload(ctx, "acme", nil); !errors.Is(err, errNetwork) {
		t.Fatalf("first Upload() error = %v", err)
	}
	if id, err := store.UploadSession(ctx, pendingKey("acme")); err != nil || id != "up-1" {
		t.Fatalf("pending session = %q, %v", id, err)
	}
	if _, err := os.Stat(u.pendingPath("acme")); err != nil {
		t.Fatalf("pending archive missing: %v", err)
	}
	last := jobs.updates[len(jobs.updates)-1]
	if *last.Status != models.JobFailed || last.Error == nil || *last.FailedItems != 1 {
		t.Errorf("failed job update = %+v", last)
	}

	// a tour saved after the failed attempt is not part of the resumed archive
	synced(t, store, "Added later", 1)

	res, err := u.Upload(ctx, "acme", nil)
	if err != nil {
		t.Fatalf("second Upload() error = %v", err)
	}
	if !res.Resumed || res.Session.ID != "up-1" || res.Manifest.TourCount != 3 {
		t.Errorf("result = %+v manifest %+v", res, res.Manifest)
	}
	if sender.calls[1].ResumeID != "up-1" || sender.calls[0].Filename != sender.calls[1].Filename {
		t.Errorf("resume sent %+v", sender.calls[1])
	}
	if sender.calls[1].JobID != "job-b" || sender.calls[1].Kind != models.UploadBackup {
		t.Errorf("source = %+v", sender.calls[1])
	}

	a, err := Read(bytes.NewReader(sender.received))
	if err != nil || a.Manifest.TourCount != 3 {
		t.Errorf("uploaded archive = %+v, %v", a, err)
	}
	if _, err := store.UploadSession(ctx, pendingKey("acme")); !errors.Is(err, localstore.ErrNotFound) {
		t.Errorf("pending session not cleared: %v", err)
	}
	if _, err := os.Stat(u.pendingPath("acme")); !os.IsNotExist(err) {
		t.Errorf("pending archive not removed: %v", err)
	}
	if res.Job.Status != models.JobCompleted {
		t.Errorf("job = %+v", res.Job)
	}

	// next upload starts fresh and includes the new tour
	res, err = u.Upload(ctx, "acme", nil)
	if err != nil || res.Resumed || res.Manifest.TourCount != 4 {
		t.Errorf("third Upload() = %+v, %v", res, err)
	}
}
