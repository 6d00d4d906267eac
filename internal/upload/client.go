// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/config"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

// API is the server's upload RPC surface as seen by a client.
type API interface {
	InitUpload(ctx context.Context, req InitRequest) (*models.UploadSession, error)
	PutChunk(ctx context.Context, id string, index int, checksum string, body []byte) error
	UploadStatus(ctx context.Context, id string) (*models.UploadStatusReport, error)
	CompleteUpload(ctx context.Context, id string) (*models.UploadSession, error)
}

// Source describes one payload to upload.
type Source struct {
	Kind        models.UploadKind
	Filename    string
	ContentType string
	JobID       string
	Data        io.ReaderAt
	Size        int64

	// ResumeID is a session id from an earlier, interrupted attempt.
	ResumeID string

	// OnSession is called once the session is known, before any chunk is
	// sent, so the caller can remember it for a later resume.
	OnSession func(*models.UploadSession) error
}

// ProgressFunc receives bytes acknowledged by the server so far.
type ProgressFunc func(done, total int64)

// Client drives the chunked upload protocol against an API.
type Client struct {
	api          API
	chunkSize    int64
	attempts     int
	retryDelay   time.Duration
	maxDelay     time.Duration
	pollInterval time.Duration
	pollTimeout  time.Duration
	limiter      *rate.Limiter
	logger       zerolog.Logger
}

// NewClient returns a client. limiter may be nil.
func NewClient(api API, cfg config.UploadClientConfig, limiter *rate.Limiter) *Client {
	c := &Client{
		api:          api,
		chunkSize:    cfg.ChunkSize,
		attempts:     cfg.RetryAttempts,
		retryDelay:   500 * time.Millisecond,
		maxDelay:     15 * time.Second,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		limiter:      limiter,
		logger:       logging.WithComponent("upload-client"),
	}
	if c.chunkSize <= 0 {
		c.chunkSize = 4 << 20
	}
	if c.attempts <= 0 {
		c.attempts = 3
	}
	if c.pollInterval <= 0 {
		c.pollInterval = time.Second
	}
	if c.pollTimeout <= 0 {
		c.pollTimeout = 5 * time.Minute
	}
	return c
}

// Upload sends src and waits until the server has assembled it. A failed
// assembly returns the session together with an error wrapping
// ErrUploadFailed.
func (c *Client) Upload(ctx context.Context, src Source, progress ProgressFunc) (*models.UploadSession, error) {
	if src.Data == nil || src.Size <= 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidRequest)
	}
	sum, err := checksumOf(src.Data, src.Size)
	if err != nil {
		return nil, err
	}

	rep, err := c.resume(ctx, &src, sum)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		s, err := c.initSession(ctx, &src, sum)
		if err != nil {
			return nil, err
		}
		rep = &models.UploadStatusReport{Session: *s, Missing: allIndexes(s.TotalChunks)}
	}
	s := rep.Session
	log := c.logger.With().Str("upload_id", s.ID).Logger()

	if src.OnSession != nil {
		if err := src.OnSession(&s); err != nil {
			return nil, err
		}
	}

	if s.Status == models.UploadOpen {
		done := rep.Bytes
		report(progress, done, s.TotalSize)
		if len(rep.Received) > 0 {
			log.Info().Int("received", len(rep.Received)).Int("missing", len(rep.Missing)).Msg("Resuming upload")
		}
		buf := make([]byte, s.ChunkSize)
		for _, idx := range rep.Missing {
			n := s.ExpectedChunkSize(idx)
			chunk := buf[:n]
			if _, err := src.Data.ReadAt(chunk, int64(idx)*s.ChunkSize); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("failed to read chunk %d: %w", idx, err)
			}
			csum := checksumHex(chunk)
			err := c.retry(ctx, fmt.Sprintf("chunk %d", idx), func(ctx context.Context) error {
				return c.api.PutChunk(ctx, s.ID, idx, csum, chunk)
			})
			if err != nil {
				return nil, err
			}
			done += n
			report(progress, done, s.TotalSize)
		}

		var completed *models.UploadSession
		err := c.retry(ctx, "complete", func(ctx context.Context) error {
			var err error
			completed, err = c.api.CompleteUpload(ctx, s.ID)
			return err
		})
		if err != nil {
			return nil, err
		}
		s = *completed
	}
	return c.poll(ctx, &s)
}

// resume returns the server's view of src.ResumeID when that session can
// still be continued, or nil to start over.
func (c *Client) resume(ctx context.Context, src *Source, sum string) (*models.UploadStatusReport, error) {
	if src.ResumeID == "" {
		return nil, nil
	}
	var rep *models.UploadStatusReport
	err := c.retry(ctx, "status", func(ctx context.Context) error {
		var err error
		rep, err = c.api.UploadStatus(ctx, src.ResumeID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s := rep.Session
	if s.Checksum != sum || s.TotalSize != src.Size {
		c.logger.Info().Str("upload_id", s.ID).Msg("Payload changed since last attempt; starting a new upload")
		return nil, nil
	}
	switch s.Status {
	case models.UploadOpen, models.UploadAssembling, models.UploadCompleted:
		return rep, nil
	default:
		return nil, nil
	}
}

func (c *Client) initSession(ctx context.Context, src *Source, sum string) (*models.UploadSession, error) {
	chunk := c.chunkSize
	if src.Size < chunk {
		chunk = src.Size
	}
	req := InitRequest{
		Kind:        src.Kind,
		Filename:    src.Filename,
		ContentType: src.ContentType,
		TotalSize:   src.Size,
		ChunkSize:   chunk,
		Checksum:    sum,
		JobID:       src.JobID,
	}
	var s *models.UploadSession
	err := c.retry(ctx, "init", func(ctx context.Context) error {
		var err error
		s, err = c.api.InitUpload(ctx, req)
		return err
	})
	return s, err
}

// poll waits for the session to leave the assembling state.
func (c *Client) poll(ctx context.Context, s *models.UploadSession) (*models.UploadSession, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		switch s.Status {
		case models.UploadCompleted:
			return s, nil
		case models.UploadAssembling:
		default:
			msg := s.Error
			if msg == "" {
				msg = string(s.Status)
			}
			return s, fmt.Errorf("%w: %s", ErrUploadFailed, msg)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return s, ErrPollTimeout
			}
			return s, ctx.Err()
		case <-ticker.C:
		}
		rep, err := c.api.UploadStatus(ctx, s.ID)
		if err != nil {
			c.logger.Debug().Err(err).Str("upload_id", s.ID).Msg("Status poll failed")
			continue
		}
		s = &rep.Session
	}
}

// retry runs fn up to the configured attempts with exponential backoff.
// Errors the server will repeat unchanged are returned at once.
func (c *Client) retry(ctx context.Context, what string, fn func(context.Context) error) error {
	delay := c.retryDelay
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if c.limiter != nil {
			if werr := c.limiter.Wait(ctx); werr != nil {
				return werr
			}
		}
		if err = fn(ctx); err == nil || !retryable(err) {
			return err
		}
		if attempt == c.attempts {
			break
		}
		c.logger.Debug().Err(err).Str("call", what).Int("attempt", attempt).Dur("backoff", delay).Msg("Retrying upload call")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, c.maxDelay)
	}
	return fmt.Errorf("%s failed after %d attempts: %w", what, c.attempts, err)
}

func retryable(err error) bool {
	for _, permanent := range []error{
		context.Canceled, context.DeadlineExceeded,
		ErrNotFound, ErrInvalidRequest, ErrTooLarge, ErrChunkIndex, ErrChunkSize,
		ErrNotOpen, ErrIncomplete,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}

func checksumOf(r io.ReaderAt, size int64) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, io.NewSectionReader(r, 0, size)); err != nil {
		return "", fmt.Errorf("failed to hash payload: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func allIndexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func report(fn ProgressFunc, done, total int64) {
	if fn != nil {
		fn(done, total)
	}
}
