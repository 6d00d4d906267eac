// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package sync

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/config"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/upload"
)

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": data})
}

func writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "error",
		"error":  map[string]any{"code": code, "message": msg, "details": details},
	})
}

func newHTTPRemote(t *testing.T, h http.HandlerFunc) *HTTPRemote {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	r, err := NewHTTPRemote(config.RemoteConfig{URL: srv.URL + "/", Token: "tok", Timeout: 5 * time.Second}, "tab-1")
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestNewHTTPRemoteRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8080", "://nope"} {
		if _, err := NewHTTPRemote(config.RemoteConfig{URL: u}, "c"); err == nil {
			t.Errorf("NewHTTPRemote(%q) should fail", u)
		}
	}
}

func TestHTTPRemoteChanges(t *testing.T) {
	since := time.Date(2026, 3, 1, 9, 0, 0, 500, time.UTC)
	tour := newTour("Lobby")
	tour.Version = 4

	r := newHTTPRemote(t, func(w http.ResponseWriter, req *http.Request) {
		switch {
		case req.URL.Path != "/api/v1/tours/changes":
			t.Errorf("path = %s", req.URL.Path)
		case req.Header.Get("Authorization") != "Bearer tok":
			t.Errorf("Authorization = %q", req.Header.Get("Authorization"))
		case req.Header.Get(clientIDHeader) != "tab-1":
			t.Errorf("%s = %q", clientIDHeader, req.Header.Get(clientIDHeader))
		case req.URL.Query().Get("since") != since.Format(time.RFC3339Nano):
			t.Errorf("since = %q", req.URL.Query().Get("since"))
		case req.URL.Query().Get("limit") != "50":
			t.Errorf("limit = %q", req.URL.Query().Get("limit"))
		}
		writeEnvelope(w, http.StatusOK, models.TourChanges{Tours: []models.Tour{*tour}, Cursor: since, HasMore: true})
	})

	page, err := r.Changes(context.Background(), since, 50)
	if err != nil {
		t.Fatalf("Changes() error = %v", err)
	}
	if len(page.Tours) != 1 || page.Tours[0].ID != tour.ID || page.Tours[0].Version != 4 || !page.HasMore {
		t.Errorf("page = %+v", page)
	}
}

func TestHTTPRemoteWrites(t *testing.T) {
	tour := newTour("Lobby")
	r := newHTTPRemote(t, func(w http.ResponseWriter, req *http.Request) {
		switch req.Method + " " + req.URL.Path {
		case "PUT /api/v1/tours/" + tour.ID:
			var body struct {
				ExpectedVersion int64        `json:"expected_version"`
				Tour            *models.Tour `json:"tour"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if body.ExpectedVersion != 2 || body.Tour == nil || body.Tour.Title != "Lobby" {
				t.Errorf("body = %+v", body)
			}
			out := body.Tour.Clone()
			out.Version = 3
			writeEnvelope(w, http.StatusOK, out)
		case "DELETE /api/v1/tours/" + tour.ID:
			if req.URL.Query().Get("expected_version") != "3" {
				t.Errorf("expected_version = %q", req.URL.Query().Get("expected_version"))
			}
			out := tour.Clone()
			now := time.Now().UTC()
			out.DeletedAt = &now
			out.Version = 4
			writeEnvelope(w, http.StatusOK, out)
		default:
			t.Errorf("unexpected %s %s", req.Method, req.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})

	ctx := context.Background()
	up, err := r.UpdateTour(ctx, tour, 2)
	if err != nil || up.Version != 3 {
		t.Fatalf("UpdateTour() = %+v, %v", up, err)
	}
	del, err := r.DeleteTour(ctx, tour.ID, 3)
	if err != nil || !del.IsDeleted() || del.Version != 4 {
		t.Fatalf("DeleteTour() = %+v, %v", del, err)
	}
}

func TestHTTPRemoteErrorMapping(t *testing.T) {
	current := newTour("Server copy")
	current.Version = 7

	tests := []struct {
		name      string
		status    int
		code      string
		details   map[string]any
		call      func(*HTTPRemote) error
		want      []error
		transient bool
	}{
		{
			name: "version conflict carries current copy", status: http.StatusConflict, code: "VERSION_CONFLICT",
			details: map[string]any{"expected_version": 6, "current": current},
			call: func(r *HTTPRemote) error {
				_, err := r.UpdateTour(context.Background(), current, 6)
				return err
			},
			want: []error{ErrConflict},
		},
		{
			name: "missing tour", status: http.StatusNotFound, code: "NOT_FOUND",
			call: func(r *HTTPRemote) error { _, err := r.GetTour(context.Background(), "x"); return err },
			want: []error{ErrNotFound},
		},
		{
			name: "missing upload session", status: http.StatusNotFound, code: "NOT_FOUND",
			call: func(r *HTTPRemote) error { _, err := r.UploadStatus(context.Background(), "u"); return err },
			want: []error{ErrNotFound, upload.ErrNotFound},
		},
		{
			name: "bad chunk checksum", status: http.StatusUnprocessableEntity, code: "CHUNK_CHECKSUM_MISMATCH",
			call: func(r *HTTPRemote) error {
				return r.PutChunk(context.Background(), "u", 0, "abc", []byte("data"))
			},
			want: []error{upload.ErrChunkChecksum},
		},
		{
			name: "invalid upload request", status: http.StatusBadRequest, code: "VALIDATION_ERROR",
			call: func(r *HTTPRemote) error {
				_, err := r.InitUpload(context.Background(), upload.InitRequest{})
				return err
			},
			want: []error{ErrBadRequest, upload.ErrInvalidRequest},
		},
		{
			name: "forbidden", status: http.StatusForbidden, code: "FORBIDDEN",
			call: func(r *HTTPRemote) error { _, err := r.DeleteTour(context.Background(), "x", 1); return err },
			want: []error{ErrForbidden},
		},
		{
			name: "server down", status: http.StatusServiceUnavailable, code: "SERVICE_UNAVAILABLE",
			call: func(r *HTTPRemote) error {
				_, err := r.Changes(context.Background(), time.Time{}, 10)
				return err
			},
			want: []error{ErrUnavailable}, transient: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newHTTPRemote(t, func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, tt.status, tt.code, "nope", tt.details)
			})
			err := tt.call(r)
			if err == nil {
				t.Fatal("expected an error")
			}
			for _, want := range tt.want {
				if !errors.Is(err, want) {
					t.Errorf("error %v does not match %v", err, want)
				}
			}
			if got := transient(err); got != tt.transient {
				t.Errorf("transient = %v, want %v", got, tt.transient)
			}
			if tt.code == "VERSION_CONFLICT" {
				cur := currentCopy(err)
				if cur == nil || cur.ID != current.ID || cur.Version != 7 {
					t.Errorf("current copy = %+v", cur)
				}
			}
		})
	}
}

func TestHTTPRemoteNonEnvelopeError(t *testing.T) {
	r := newHTTPRemote(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	_, err := r.GetTour(context.Background(), "x")
	var re *RemoteError
	if !errors.As(err, &re) || re.Status != http.StatusBadGateway || !re.Transient() {
		t.Errorf("error = %#v", err)
	}
}

func TestHTTPRemoteChunkAndDownload(t *testing.T) {
	payload := []byte("backup archive bytes")
	r := newHTTPRemote(t, func(w http.ResponseWriter, req *http.Request) {
		switch req.Method + " " + req.URL.Path {
		case "PUT /api/v1/uploads/u1/chunks/2":
			if req.Header.Get(chunkChecksumHeader) != "cafe" {
				t.Errorf("checksum header = %q", req.Header.Get(chunkChecksumHeader))
			}
			body, _ := io.ReadAll(req.Body)
			if !bytes.Equal(body, payload) {
				t.Errorf("chunk body = %q", body)
			}
			writeEnvelope(w, http.StatusOK, models.ChunkReceipt{Index: 2})
		case "GET /api/v1/uploads/u1/content":
			w.Header().Set("X-Checksum-SHA256", "feed")
			_, _ = w.Write(payload)
		default:
			t.Errorf("unexpected %s %s", req.Method, req.URL.Path)
		}
	})

	ctx := context.Background()
	if err := r.PutChunk(ctx, "u1", 2, "cafe", payload); err != nil {
		t.Fatalf("PutChunk() error = %v", err)
	}
	var buf bytes.Buffer
	n, sum, err := r.Download(ctx, "u1", &buf)
	if err != nil || n != int64(len(payload)) || sum != "feed" || !bytes.Equal(buf.Bytes(), payload) {
		t.Errorf("Download() = %d %q %v", n, sum, err)
	}
}
