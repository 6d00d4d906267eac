// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response is the envelope of every JSON response.
type Response struct {
	Status   string    `json:"status"`
	Data     any       `json:"data,omitempty"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata describes the response itself.
type Metadata struct {
	Timestamp  time.Time   `json:"timestamp"`
	RequestID  string      `json:"request_id,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination accompanies list responses.
type Pagination struct {
	Total   int  `json:"total"`
	Count   int  `json:"count"`
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
}

// APIError is the error member of the envelope.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func metadataFor(r *http.Request) Metadata {
	return Metadata{
		Timestamp: time.Now().UTC(),
		RequestID: logging.RequestIDFromContext(r.Context()),
	}
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Failed to write JSON response")
	}
}

func respondSuccess(w http.ResponseWriter, r *http.Request, status int, data any) {
	respondJSON(w, r, status, &Response{Status: StatusSuccess, Data: data, Metadata: metadataFor(r)})
}

func respondPage(w http.ResponseWriter, r *http.Request, data any, p Pagination) {
	md := metadataFor(r)
	md.Pagination = &p
	respondJSON(w, r, http.StatusOK, &Response{Status: StatusSuccess, Data: data, Metadata: md})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	respondJSON(w, r, status, &Response{
		Status:   StatusError,
		Metadata: metadataFor(r),
		Error:    &APIError{Code: code, Message: message, Details: details},
	})
}

// respondErr maps err to a status and code and writes it. Server errors
// are logged with the underlying cause; the client sees a generic message.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	m := classify(err)
	if m.status >= http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("API error")
		respondError(w, r, m.status, m.code, m.message, nil)
		return
	}
	msg := m.message
	if msg == "" {
		msg = err.Error()
	}
	respondError(w, r, m.status, m.code, msg, m.details)
}
