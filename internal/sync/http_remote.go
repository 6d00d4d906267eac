// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/config"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/upload"
)

const (
	clientIDHeader      = "X-Client-ID"
	chunkChecksumHeader = "X-Chunk-Checksum"
	maxErrorBody        = 64 << 10
)

// HTTPRemote implements Remote against the server's /api/v1 routes.
type HTTPRemote struct {
	base     string
	token    string
	clientID string
	client   *http.Client
}

// NewHTTPRemote returns a remote for cfg.URL. clientID is sent with every
// request so the server can stamp it as the origin of resulting events.
func NewHTTPRemote(cfg config.RemoteConfig, clientID string) (*HTTPRemote, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", cfg.URL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRemote{
		base:     strings.TrimRight(cfg.URL, "/") + "/api/v1",
		token:    cfg.Token,
		clientID: clientID,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func (r *HTTPRemote) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	target := r.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.clientID != "" {
		req.Header.Set(clientIDHeader, r.clientID)
	}
	return req, nil
}

// do sends req and decodes the envelope's data into out (which may be nil).
func (r *HTTPRemote) do(req *http.Request, out any) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	re := &RemoteError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Error == nil {
		return re
	}
	re.Code = env.Error.Code
	re.Message = env.Error.Message
	if len(env.Error.Details) > 0 {
		_ = json.Unmarshal(env.Error.Details, &re.Details)
		if re.Code == "VERSION_CONFLICT" {
			var d struct {
				Current *models.Tour `json:"current"`
			}
			if json.Unmarshal(env.Error.Details, &d) == nil {
				re.Current = d.Current
			}
		}
	}
	return re
}

func (r *HTTPRemote) call(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := r.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return r.do(req, out)
}

// Changes implements Remote.
func (r *HTTPRemote) Changes(ctx context.Context, since time.Time, limit int) (*models.TourChanges, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out models.TourChanges
	if err := r.call(ctx, http.MethodGet, "/tours/changes", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTour implements Remote. Tombstones come back with DeletedAt set.
func (r *HTTPRemote) GetTour(ctx context.Context, id string) (*models.Tour, error) {
	var out models.Tour
	if err := r.call(ctx, http.MethodGet, "/tours/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTour implements Remote.
func (r *HTTPRemote) CreateTour(ctx context.Context, t *models.Tour) (*models.Tour, error) {
	var out models.Tour
	if err := r.call(ctx, http.MethodPost, "/tours", nil, t, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTour implements Remote.
func (r *HTTPRemote) UpdateTour(ctx context.Context, t *models.Tour, expectedVersion int64) (*models.Tour, error) {
	in := struct {
		ExpectedVersion int64        `json:"expected_version"`
		Tour            *models.Tour `json:"tour"`
	}{expectedVersion, t}
	var out models.Tour
	if err := r.call(ctx, http.MethodPut, "/tours/"+url.PathEscape(t.ID), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTour implements Remote and returns the tombstone.
func (r *HTTPRemote) DeleteTour(ctx context.Context, id string, expectedVersion int64) (*models.Tour, error) {
	q := url.Values{"expected_version": {strconv.FormatInt(expectedVersion, 10)}}
	var out models.Tour
	if err := r.call(ctx, http.MethodDelete, "/tours/"+url.PathEscape(id), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSyncJob implements Remote and backup.JobTracker.
func (r *HTTPRemote) CreateSyncJob(ctx context.Context, job *models.SyncJob) (*models.SyncJob, error) {
	in := struct {
		Kind       models.SyncJobKind `json:"kind"`
		TotalItems int                `json:"total_items"`
	}{job.Kind, job.TotalItems}
	var out models.SyncJob
	if err := r.call(ctx, http.MethodPost, "/sync/jobs", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSyncJob implements Remote.
func (r *HTTPRemote) GetSyncJob(ctx context.Context, id string) (*models.SyncJob, error) {
	var out models.SyncJob
	if err := r.call(ctx, http.MethodGet, "/sync/jobs/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSyncJobs implements Remote.
func (r *HTTPRemote) ListSyncJobs(ctx context.Context, f JobFilter) ([]models.SyncJob, error) {
	q := url.Values{}
	if f.Kind != "" {
		q.Set("kind", string(f.Kind))
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	out := []models.SyncJob{}
	if err := r.call(ctx, http.MethodGet, "/sync/jobs", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateSyncJob implements Remote and backup.JobTracker.
func (r *HTTPRemote) UpdateSyncJob(ctx context.Context, id string, u models.SyncJobUpdate) (*models.SyncJob, error) {
	var out models.SyncJob
	if err := r.call(ctx, http.MethodPatch, "/sync/jobs/"+url.PathEscape(id), nil, u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// uploadErr adds the upload package sentinels the generic mapping cannot
// know about, so upload.Client can tell a lost session from a bad request.
func uploadErr(err error) error {
	var re *RemoteError
	if !errors.As(err, &re) {
		return err
	}
	switch re.Code {
	case "NOT_FOUND":
		return fmt.Errorf("%w: %w", upload.ErrNotFound, err)
	case "VALIDATION_ERROR", "BAD_REQUEST":
		return fmt.Errorf("%w: %w", upload.ErrInvalidRequest, err)
	}
	return err
}

// InitUpload implements upload.API.
func (r *HTTPRemote) InitUpload(ctx context.Context, req upload.InitRequest) (*models.UploadSession, error) {
	var out models.UploadSession
	if err := r.call(ctx, http.MethodPost, "/uploads", nil, req, &out); err != nil {
		return nil, uploadErr(err)
	}
	return &out, nil
}

// PutChunk implements upload.API.
func (r *HTTPRemote) PutChunk(ctx context.Context, id string, index int, checksum string, body []byte) error {
	path := "/uploads/" + url.PathEscape(id) + "/chunks/" + strconv.Itoa(index)
	req, err := r.newRequest(ctx, http.MethodPut, path, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(chunkChecksumHeader, checksum)
	return uploadErr(r.do(req, nil))
}

// UploadStatus implements upload.API.
func (r *HTTPRemote) UploadStatus(ctx context.Context, id string) (*models.UploadStatusReport, error) {
	var out models.UploadStatusReport
	if err := r.call(ctx, http.MethodGet, "/uploads/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, uploadErr(err)
	}
	return &out, nil
}

// CompleteUpload implements upload.API.
func (r *HTTPRemote) CompleteUpload(ctx context.Context, id string) (*models.UploadSession, error) {
	var out models.UploadSession
	if err := r.call(ctx, http.MethodPost, "/uploads/"+url.PathEscape(id)+"/complete", nil, nil, &out); err != nil {
		return nil, uploadErr(err)
	}
	return &out, nil
}

// ListBackups returns backup uploads, newest first.
func (r *HTTPRemote) ListBackups(ctx context.Context, status models.UploadStatus, limit int) ([]models.UploadSession, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	out := []models.UploadSession{}
	if err := r.call(ctx, http.MethodGet, "/backups", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Download streams the content of a completed upload into w and returns
// the checksum the server advertised for it.
func (r *HTTPRemote) Download(ctx context.Context, id string, w io.Writer) (n int64, checksum string, err error) {
	req, err := r.newRequest(ctx, http.MethodGet, "/uploads/"+url.PathEscape(id)+"/content", nil, http.NoBody)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Accept", "*/*")
	// downloads may outlive the per-call timeout
	client := *r.client
	client.Timeout = 0
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("download %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, "", uploadErr(decodeError(resp))
	}
	n, err = io.Copy(w, resp.Body)
	if err != nil {
		return n, "", fmt.Errorf("download %s: %w", id, err)
	}
	return n, resp.Header.Get("X-Checksum-SHA256"), nil
}
