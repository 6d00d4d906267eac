// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package sync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	gosync "sync"
	"time"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/upload"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

const testTenant = "acme"

// fakeRemote is an in-memory server with the same write rules as the
// real one: versions bump by one, deletes leave tombstones, and stale
// writes answer VERSION_CONFLICT with the current copy.
type fakeRemote struct {
	mu    gosync.Mutex
	tours map[string]*models.Tour
	jobs  map[string]*models.SyncJob
	clock time.Time
	seq   int

	// hidden tours are left out of the change feed
	hidden map[string]bool
	// errs fail calls by operation name
	errs map[string]error
	// writeErrs fail writes to one tour id
	writeErrs map[string]error
	calls     map[string]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		tours:     map[string]*models.Tour{},
		jobs:      map[string]*models.SyncJob{},
		clock:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		hidden:    map[string]bool{},
		errs:      map[string]error{},
		writeErrs: map[string]error{},
		calls:     map[string]int{},
	}
}

func (f *fakeRemote) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeRemote) enter(op string) error {
	f.calls[op]++
	return f.errs[op]
}

func conflictErr(current *models.Tour) error {
	return &RemoteError{Status: http.StatusConflict, Code: "VERSION_CONFLICT", Message: "stale", Current: current.Clone()}
}

func notFoundErr() error {
	return &RemoteError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "not found"}
}

// seed stores t as if another client had created it.
func (f *fakeRemote) seed(t *models.Tour) *models.Tour {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := t.Clone()
	c.TenantID = testTenant
	c.Version = 1
	c.UpdatedAt = f.tick()
	f.tours[c.ID] = c
	return c.Clone()
}

// edit applies fn to the server copy as another client would.
func (f *fakeRemote) edit(id string, fn func(*models.Tour)) *models.Tour {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tours[id]
	fn(t)
	t.Version++
	t.UpdatedAt = f.tick()
	return t.Clone()
}

func (f *fakeRemote) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tours[id]
	now := f.tick()
	t.DeletedAt = &now
	t.Version++
	t.UpdatedAt = now
}

func (f *fakeRemote) tour(id string) *models.Tour {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tours[id]; ok {
		return t.Clone()
	}
	return nil
}

func (f *fakeRemote) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) jobList() []models.SyncJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.SyncJob, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, *j)
	}
	return out
}

func (f *fakeRemote) Changes(_ context.Context, since time.Time, limit int) (*models.TourChanges, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("changes"); err != nil {
		return nil, err
	}
	var all []models.Tour
	for _, t := range f.tours {
		if t.UpdatedAt.After(since) && !f.hidden[t.ID] {
			all = append(all, *t.Clone())
		}
	}
	// oldest first
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].UpdatedAt.Before(all[j-1].UpdatedAt); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	out := &models.TourChanges{Tours: all, Cursor: since}
	if len(all) > limit {
		out.Tours = all[:limit]
		out.HasMore = true
	}
	if n := len(out.Tours); n > 0 {
		out.Cursor = out.Tours[n-1].UpdatedAt
	}
	return out, nil
}

func (f *fakeRemote) GetTour(_ context.Context, id string) (*models.Tour, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get"); err != nil {
		return nil, err
	}
	t, ok := f.tours[id]
	if !ok {
		return nil, notFoundErr()
	}
	return t.Clone(), nil
}

func (f *fakeRemote) CreateTour(_ context.Context, in *models.Tour) (*models.Tour, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("create"); err != nil {
		return nil, err
	}
	if err := f.writeErrs[in.ID]; err != nil {
		return nil, err
	}
	if cur, ok := f.tours[in.ID]; ok {
		if !cur.IsDeleted() && cur.ContentHash() == in.ContentHash() {
			return cur.Clone(), nil
		}
		return nil, &RemoteError{Status: http.StatusConflict, Code: "ALREADY_EXISTS", Message: "exists"}
	}
	t := in.Clone()
	t.TenantID = testTenant
	t.Version = 1
	t.DeletedAt = nil
	t.UpdatedAt = f.tick()
	f.tours[t.ID] = t
	return t.Clone(), nil
}

func (f *fakeRemote) UpdateTour(_ context.Context, in *models.Tour, expected int64) (*models.Tour, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("update"); err != nil {
		return nil, err
	}
	if err := f.writeErrs[in.ID]; err != nil {
		return nil, err
	}
	cur, ok := f.tours[in.ID]
	if !ok {
		return nil, notFoundErr()
	}
	if cur.Version != expected {
		return nil, conflictErr(cur)
	}
	if !cur.IsDeleted() && cur.ContentHash() == in.ContentHash() {
		return cur.Clone(), nil
	}
	t := in.Clone()
	t.TenantID = testTenant
	t.CreatedAt = cur.CreatedAt
	t.Version = cur.Version + 1
	t.DeletedAt = nil
	t.UpdatedAt = f.tick()
	f.tours[t.ID] = t
	return t.Clone(), nil
}

func (f *fakeRemote) DeleteTour(_ context.Context, id string, expected int64) (*models.Tour, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("delete"); err != nil {
		return nil, err
	}
	if err := f.writeErrs[id]; err != nil {
		return nil, err
	}
	cur, ok := f.tours[id]
	if !ok {
		return nil, notFoundErr()
	}
	if cur.IsDeleted() {
		return cur.Clone(), nil
	}
	if cur.Version != expected {
		return nil, conflictErr(cur)
	}
	now := f.tick()
	cur.DeletedAt = &now
	cur.UpdatedAt = now
	cur.Version++
	return cur.Clone(), nil
}

func (f *fakeRemote) CreateSyncJob(_ context.Context, job *models.SyncJob) (*models.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("create job"); err != nil {
		return nil, err
	}
	f.seq++
	j := *job
	j.ID = fmt.Sprintf("job-%d", f.seq)
	j.TenantID = testTenant
	j.Status = models.JobRunning
	j.CreatedAt = f.clock
	f.jobs[j.ID] = &j
	out := j
	return &out, nil
}

func (f *fakeRemote) GetSyncJob(_ context.Context, id string) (*models.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, notFoundErr()
	}
	out := *j
	return &out, nil
}

func (f *fakeRemote) ListSyncJobs(context.Context, JobFilter) ([]models.SyncJob, error) {
	return f.jobList(), nil
}

func (f *fakeRemote) UpdateSyncJob(_ context.Context, id string, u models.SyncJobUpdate) (*models.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, notFoundErr()
	}
	if u.Status != nil {
		j.Status = *u.Status
	}
	if u.TotalItems != nil {
		j.TotalItems = *u.TotalItems
	}
	if u.ProcessedItems != nil {
		j.ProcessedItems = *u.ProcessedItems
	}
	if u.FailedItems != nil {
		j.FailedItems = *u.FailedItems
	}
	if u.Error != nil {
		j.Error = *u.Error
	}
	out := *j
	return &out, nil
}

func (f *fakeRemote) InitUpload(context.Context, upload.InitRequest) (*models.UploadSession, error) {
	return nil, upload.ErrInvalidRequest
}

func (f *fakeRemote) PutChunk(context.Context, string, int, string, []byte) error {
	return upload.ErrNotFound
}

func (f *fakeRemote) UploadStatus(context.Context, string) (*models.UploadStatusReport, error) {
	return nil, upload.ErrNotFound
}

func (f *fakeRemote) CompleteUpload(context.Context, string) (*models.UploadSession, error) {
	return nil, upload.ErrNotFound
}
