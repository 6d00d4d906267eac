// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/config"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

var errFlaky = errors.New("connection reset by peer")

// managerAPI serves the client straight from a Manager, with injectable
// chunk failures.
type managerAPI struct {
	m *Manager

	mu       sync.Mutex
	fail     map[int]int // index -> failures left; -1 fails forever
	puts     []int
	inits    int
	statuses int
}

func (a *managerAPI) InitUpload(ctx context.Context, req InitRequest) (*models.UploadSession, error) {
	a.mu.Lock()
	a.inits++
	a.mu.Unlock()
	return a.m.Init(ctx, tenant, "u-1", req)
}

func (a *managerAPI) PutChunk(ctx context.Context, id string, index int, checksum string, body []byte) error {
	a.mu.Lock()
	a.puts = append(a.puts, index)
	if n, ok := a.fail[index]; ok && n != 0 {
		if n > 0 {
			a.fail[index] = n - 1
		}
		a.mu.Unlock()
		return errFlaky
	}
	a.mu.Unlock()
	_, err := a.m.PutChunk(ctx, tenant, id, index, checksum, bytes.NewReader(body))
	return err
}

func (a *managerAPI) UploadStatus(ctx context.Context, id string) (*models.UploadStatusReport, error) {
	a.mu.Lock()
	a.statuses++
	a.mu.Unlock()
	return a.m.Status(ctx, tenant, id)
}

func (a *managerAPI) CompleteUpload(ctx context.Context, id string) (*models.UploadSession, error) {
	return a.m.Complete(ctx, tenant, id)
}

func (a *managerAPI) sent() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.puts...)
}

func newTestClient(api API) *Client {
	c := NewClient(api, config.UploadClientConfig{
		ChunkSize:     10,
		RetryAttempts: 3,
		PollInterval:  10 * time.Millisecond,
		PollTimeout:   10 * time.Second,
	}, nil)
	c.retryDelay = time.Millisecond
	return c
}

func blobBytes(t *testing.T, f *fixture, s *models.UploadSession) []byte {
	t.Helper()
	rc, _, err := f.m.Open(context.Background(), tenant, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestClientUploadWithTransientFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.serve(t)
	api := &managerAPI{m: f.m, fail: map[int]int{1: 2}}
	c := newTestClient(api)

	var last, total int64
	s, err := c.Upload(context.Background(), Source{
		Kind:     models.UploadBackup,
		Filename: "b.json.gz",
		Data:     bytes.NewReader(payload25),
		Size:     int64(len(payload25)),
	}, func(done, tot int64) { last, total = done, tot })
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if s.Status != models.UploadCompleted {
		t.Fatalf("status = %s", s.Status)
	}
	if last != 25 || total != 25 {
		t.Errorf("final progress = %d/%d", last, total)
	}
	if got := blobBytes(t, f, s); !bytes.Equal(got, payload25) {
		t.Errorf("stored %q", got)
	}
	// chunk 1 failed twice before succeeding
	if n := len(api.sent()); n != 5 {
		t.Errorf("PutChunk calls = %d, want 5", n)
	}
}

func TestClientResumesInterruptedUpload(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.serve(t)
	ctx := context.Background()
	data := bytes.Repeat([]byte("0123456789"), 4) // four chunks

	first := &managerAPI{m: f.m, fail: map[int]int{2: -1}}
	var sessionID string
	src := Source{
		Kind:      models.UploadBackup,
		Filename:  "b.json.gz",
		Data:      bytes.NewReader(data),
		Size:      int64(len(data)),
		OnSession: func(s *models.UploadSession) error { sessionID = s.ID; return nil },
	}
	if _, err := newTestClient(first).Upload(ctx, src, nil); !errors.Is(err, errFlaky) {
		t.Fatalf("first Upload() error = %v, want flaky failure", err)
	}
	if sessionID == "" {
		t.Fatal("OnSession was not called")
	}

	second := &managerAPI{m: f.m}
	src.ResumeID = sessionID
	var firstProgress int64 = -1
	s, err := newTestClient(second).Upload(ctx, src, func(done, _ int64) {
		if firstProgress < 0 {
			firstProgress = done
		}
	})
	if err != nil {
		t.Fatalf("resumed Upload() error = %v", err)
	}
	if s.ID != sessionID || s.Status != models.UploadCompleted {
		t.Errorf("resumed session = %+v", s)
	}
	if got := second.sent(); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("resumed upload sent %v, want [2 3]", got)
	}
	if second.inits != 0 {
		t.Errorf("resumed upload opened %d new sessions", second.inits)
	}
	if firstProgress != 20 {
		t.Errorf("initial progress = %d, want 20", firstProgress)
	}
	if got := blobBytes(t, f, s); !bytes.Equal(got, data) {
		t.Errorf("stored %q", got)
	}
}

func TestClientStartsOverWhenPayloadChanged(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.serve(t)
	ctx := context.Background()

	old := f.init(t, payload25, 10)
	api := &managerAPI{m: f.m}
	changed := []byte("ABCDEFGHIJKLMNOPQRSTUVWXY")
	s, err := newTestClient(api).Upload(ctx, Source{
		Kind:     models.UploadBackup,
		Filename: "b.json.gz",
		Data:     bytes.NewReader(changed),
		Size:     int64(len(changed)),
		ResumeID: old.ID,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.ID == old.ID || api.inits != 1 {
		t.Errorf("reused stale session %s (inits %d)", s.ID, api.inits)
	}
}

func TestClientReportsFailedAssembly(t *testing.T) {
	t.Parallel()

	api := &stubAPI{final: models.UploadSession{ID: "s1", Status: models.UploadFailed, Error: "disk full"}}
	c := newTestClient(api)
	s, err := c.Upload(context.Background(), Source{
		Kind: models.UploadPhoto, Filename: "p.jpg", Data: bytes.NewReader([]byte("tiny")), Size: 4,
	}, nil)
	if !errors.Is(err, ErrUploadFailed) || s == nil || s.Error != "disk full" {
		t.Errorf("Upload() = %+v, %v", s, err)
	}
}

func TestClientPollTimeout(t *testing.T) {
	t.Parallel()

	api := &stubAPI{final: models.UploadSession{ID: "s1", Status: models.UploadAssembling}}
	c := newTestClient(api)
	c.pollTimeout = 50 * time.Millisecond
	_, err := c.Upload(context.Background(), Source{
		Kind: models.UploadPhoto, Filename: "p.jpg", Data: bytes.NewReader([]byte("tiny")), Size: 4,
	}, nil)
	if !errors.Is(err, ErrPollTimeout) {
		t.Errorf("Upload() error = %v, want ErrPollTimeout", err)
	}
}

func TestClientDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	api := &stubAPI{initErr: ErrTooLarge}
	_, err := newTestClient(api).Upload(context.Background(), Source{
		Kind: models.UploadPhoto, Filename: "p.jpg", Data: bytes.NewReader([]byte("tiny")), Size: 4,
	}, nil)
	if !errors.Is(err, ErrTooLarge) || api.initCalls != 1 {
		t.Errorf("Upload() error = %v after %d calls", err, api.initCalls)
	}
}

// stubAPI accepts every chunk and completes into a fixed session.
type stubAPI struct {
	final     models.UploadSession
	initErr   error
	initCalls int
}

func (s *stubAPI) InitUpload(_ context.Context, req InitRequest) (*models.UploadSession, error) {
	s.initCalls++
	if s.initErr != nil {
		return nil, s.initErr
	}
	return &models.UploadSession{
		ID: s.final.ID, Status: models.UploadOpen, TotalSize: req.TotalSize, ChunkSize: req.ChunkSize,
		TotalChunks: models.ChunkCount(req.TotalSize, req.ChunkSize), Checksum: req.Checksum,
	}, nil
}

func (s *stubAPI) PutChunk(context.Context, string, int, string, []byte) error { return nil }

func (s *stubAPI) UploadStatus(context.Context, string) (*models.UploadStatusReport, error) {
	return &models.UploadStatusReport{Session: s.final}, nil
}

func (s *stubAPI) CompleteUpload(context.Context, string) (*models.UploadSession, error) {
	f := s.final
	return &f, nil
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{errFlaky, true},
		{ErrChunkChecksum, true},
		{ErrNotFound, false},
		{ErrNotOpen, false},
		{context.Canceled, false},
	}
	for _, tt := range tests {
		if got := retryable(tt.err); got != tt.want {
			t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
