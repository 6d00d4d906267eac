// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/blobstore"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/config"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/database"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/events"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/metrics"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/models"
)

// Origin tags events published by the server itself.
const Origin = "server"

// SessionStore is the part of the server database the manager needs.
type SessionStore interface {
	CreateUploadSession(ctx context.Context, in *models.UploadSession, ttl time.Duration) (*models.UploadSession, error)
	GetUploadSession(ctx context.Context, tenantID, id string) (*models.UploadSession, error)
	ListExpiredUploadSessions(ctx context.Context, now time.Time) ([]models.UploadSession, error)
	ListUploadSessionsByStatus(ctx context.Context, status models.UploadStatus) ([]models.UploadSession, error)
	TransitionUpload(ctx context.Context, id string, from []models.UploadStatus, to models.UploadStatus, blobKey, errMsg string) (*models.UploadSession, error)
	TouchUpload(ctx context.Context, id string, expiresAt time.Time) error
	RecordChunk(ctx context.Context, sessionID string, r models.ChunkReceipt) error
	ListChunks(ctx context.Context, sessionID string) ([]models.ChunkReceipt, error)
	DeleteChunks(ctx context.Context, sessionID string) error
}

// InitRequest opens a session.
type InitRequest struct {
	Kind        models.UploadKind `json:"kind" validate:"required,oneof=backup photo"`
	Filename    string            `json:"filename" validate:"required,max=255"`
	ContentType string            `json:"content_type,omitempty" validate:"max=255"`
	TotalSize   int64             `json:"total_size" validate:"gt=0"`
	ChunkSize   int64             `json:"chunk_size" validate:"gt=0"`
	Checksum    string            `json:"checksum" validate:"required"`
	JobID       string            `json:"job_id,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Manager is the server side of the chunked upload protocol.
type Manager struct {
	store   SessionStore
	blobs   blobstore.Store
	bus     events.Publisher
	cfg     config.UploadConfig
	staging staging
	queue   chan models.UploadSession
	logger  zerolog.Logger
	now     func() time.Time

	// assembling guards against queueing the same session twice
	mu         sync.Mutex
	assembling map[string]struct{}
}

// NewManager wires the manager. bus may be nil.
func NewManager(store SessionStore, blobs blobstore.Store, bus events.Publisher, cfg config.UploadConfig) *Manager {
	if cfg.AssemblyWorkers <= 0 {
		cfg.AssemblyWorkers = 2
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &Manager{
		store:      store,
		blobs:      blobs,
		bus:        bus,
		cfg:        cfg,
		staging:    staging{root: cfg.StagingDir},
		queue:      make(chan models.UploadSession, 64),
		logger:     logging.WithComponent("upload"),
		now:        func() time.Time { return time.Now().UTC() },
		assembling: make(map[string]struct{}),
	}
}

// Init validates req and opens a session.
func (m *Manager) Init(ctx context.Context, tenantID, userID string, req InitRequest) (*models.UploadSession, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if m.cfg.MaxSize > 0 && req.TotalSize > m.cfg.MaxSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, req.TotalSize, m.cfg.MaxSize)
	}
	if req.ChunkSize < m.cfg.MinChunkSize || (m.cfg.MaxChunkSize > 0 && req.ChunkSize > m.cfg.MaxChunkSize) {
		// a file smaller than the minimum chunk goes up as one chunk
		if req.ChunkSize != req.TotalSize || req.TotalSize >= m.cfg.MinChunkSize {
			return nil, fmt.Errorf("%w: chunk size %d outside [%d, %d]",
				ErrInvalidRequest, req.ChunkSize, m.cfg.MinChunkSize, m.cfg.MaxChunkSize)
		}
	}
	if !validChecksum(req.Checksum) {
		return nil, fmt.Errorf("%w: checksum must be sha256 hex", ErrInvalidRequest)
	}
	if strings.ContainsAny(req.Filename, `/\`) {
		return nil, fmt.Errorf("%w: filename must not contain path separators", ErrInvalidRequest)
	}

	s, err := m.store.CreateUploadSession(ctx, &models.UploadSession{
		TenantID:    tenantID,
		UserID:      userID,
		Kind:        req.Kind,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		TotalSize:   req.TotalSize,
		ChunkSize:   req.ChunkSize,
		TotalChunks: models.ChunkCount(req.TotalSize, req.ChunkSize),
		Checksum:    strings.ToLower(req.Checksum),
		JobID:       req.JobID,
	}, m.cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().
		Str("upload_id", s.ID).
		Str("kind", string(s.Kind)).
		Int64("size", s.TotalSize).
		Int("chunks", s.TotalChunks).
		Msg("Upload session opened")
	return s, nil
}

func (m *Manager) get(ctx context.Context, tenantID, id string) (*models.UploadSession, error) {
	s, err := m.store.GetUploadSession(ctx, tenantID, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	return s, err
}

// PutChunk stores chunk index. Sending a chunk that is already stored with
// the same checksum is a no-op; a different checksum replaces it.
func (m *Manager) PutChunk(ctx context.Context, tenantID, id string, index int, checksum string, body io.Reader) (*models.ChunkReceipt, error) {
	s, err := m.get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if s.Status != models.UploadOpen {
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, s.Status)
	}
	if index < 0 || index >= s.TotalChunks {
		metrics.UploadChunks.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrChunkIndex, index, s.TotalChunks)
	}
	if !validChecksum(checksum) {
		metrics.UploadChunks.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: chunk checksum must be sha256 hex", ErrInvalidRequest)
	}
	checksum = strings.ToLower(checksum)

	receipts, err := m.store.ListChunks(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range receipts {
		if receipts[i].Index == index && receipts[i].Checksum == checksum {
			metrics.UploadChunks.WithLabelValues("duplicate").Inc()
			return &receipts[i], nil
		}
	}

	size := s.ExpectedChunkSize(index)
	if err := m.staging.write(id, index, body, size, checksum); err != nil {
		metrics.UploadChunks.WithLabelValues("rejected").Inc()
		return nil, err
	}
	r := models.ChunkReceipt{Index: index, Size: size, Checksum: checksum, ReceivedAt: m.now()}
	if err := m.store.RecordChunk(ctx, id, r); err != nil {
		return nil, err
	}
	if err := m.store.TouchUpload(ctx, id, m.now().Add(m.cfg.SessionTTL)); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("upload_id", id).Msg("Failed to extend upload expiry")
	}
	metrics.UploadChunks.WithLabelValues("stored").Inc()
	metrics.UploadBytes.Add(float64(size))

	received := len(receipts) + 1
	for i := range receipts {
		if receipts[i].Index == index {
			received-- // replaced
			break
		}
	}
	m.publish(ctx, events.UploadProgress, s, events.ProgressPayload{
		Done: int64(received), Total: int64(s.TotalChunks), Stage: "chunks", RefID: id,
	})
	return &r, nil
}

// Status reports which chunks the server holds.
func (m *Manager) Status(ctx context.Context, tenantID, id string) (*models.UploadStatusReport, error) {
	s, err := m.get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	receipts, err := m.store.ListChunks(ctx, id)
	if err != nil {
		return nil, err
	}
	return buildReport(s, receipts), nil
}

func buildReport(s *models.UploadSession, receipts []models.ChunkReceipt) *models.UploadStatusReport {
	have := make([]bool, s.TotalChunks)
	rep := &models.UploadStatusReport{Session: *s, Received: []int{}, Missing: []int{}}
	for _, r := range receipts {
		if r.Index >= 0 && r.Index < s.TotalChunks && !have[r.Index] {
			have[r.Index] = true
			rep.Bytes += r.Size
		}
	}
	for i, ok := range have {
		if ok {
			rep.Received = append(rep.Received, i)
		} else {
			rep.Missing = append(rep.Missing, i)
		}
	}
	return rep
}

// Complete queues a fully received session for reassembly. Completing a
// session that is already assembling or completed returns it unchanged.
func (m *Manager) Complete(ctx context.Context, tenantID, id string) (*models.UploadSession, error) {
	rep, err := m.Status(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	s := &rep.Session
	switch s.Status {
	case models.UploadOpen:
	case models.UploadAssembling:
		// possibly left behind by a restart; enqueue ignores sessions
		// already queued here
		if err := m.enqueue(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	case models.UploadCompleted:
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, s.Status)
	}
	if !rep.Complete() {
		return nil, fmt.Errorf("%w: %d of %d chunks missing", ErrIncomplete, len(rep.Missing), s.TotalChunks)
	}

	s, err = m.store.TransitionUpload(ctx, id, []models.UploadStatus{models.UploadOpen}, models.UploadAssembling, "", "")
	if err != nil {
		if errors.Is(err, database.ErrInvalidTransition) && s != nil {
			// lost a race with another Complete or Abort
			if s.Status == models.UploadAssembling || s.Status == models.UploadCompleted {
				return s, nil
			}
			return nil, fmt.Errorf("%w: %s", ErrNotOpen, s.Status)
		}
		return nil, err
	}
	if err := m.enqueue(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Resume queues every session left in assembling, such as those
// interrupted by a restart. It returns the number queued.
func (m *Manager) Resume(ctx context.Context) (int, error) {
	pending, err := m.store.ListUploadSessionsByStatus(ctx, models.UploadAssembling)
	if err != nil {
		return 0, err
	}
	for i := range pending {
		if err := m.enqueue(ctx, &pending[i]); err != nil {
			return i, err
		}
	}
	if len(pending) > 0 {
		m.logger.Info().Int("sessions", len(pending)).Msg("Resumed interrupted upload assembly")
	}
	return len(pending), nil
}

func (m *Manager) enqueue(ctx context.Context, s *models.UploadSession) error {
	id := s.ID
	m.mu.Lock()
	if _, ok := m.assembling[id]; ok {
		m.mu.Unlock()
		return nil
	}
	m.assembling[id] = struct{}{}
	m.mu.Unlock()

	select {
	case m.queue <- *s:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		delete(m.assembling, id)
		m.mu.Unlock()
		return ctx.Err()
	}
}

// Abort cancels an open session and drops its staged chunks.
func (m *Manager) Abort(ctx context.Context, tenantID, id string) (*models.UploadSession, error) {
	if _, err := m.get(ctx, tenantID, id); err != nil {
		return nil, err
	}
	s, err := m.store.TransitionUpload(ctx, id, []models.UploadStatus{models.UploadOpen}, models.UploadAborted, "", "aborted by client")
	if err != nil {
		if errors.Is(err, database.ErrInvalidTransition) && s != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotOpen, s.Status)
		}
		return nil, err
	}
	m.cleanup(ctx, id)
	metrics.UploadSessions.WithLabelValues(string(s.Kind), string(s.Status)).Inc()
	logging.Ctx(ctx).Info().Str("upload_id", id).Msg("Upload aborted")
	return s, nil
}

// Open streams the assembled file of a completed session.
func (m *Manager) Open(ctx context.Context, tenantID, id string) (io.ReadCloser, *models.UploadSession, error) {
	s, err := m.get(ctx, tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	if s.Status != models.UploadCompleted {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotCompleted, s.Status)
	}
	rc, err := m.blobs.Get(ctx, s.BlobKey)
	if err != nil {
		return nil, nil, err
	}
	return rc, s, nil
}

// ExpireStale marks every open or assembling session past its expiry as
// expired and drops its chunks. It returns the number expired.
func (m *Manager) ExpireStale(ctx context.Context) (int, error) {
	stale, err := m.store.ListExpiredUploadSessions(ctx, m.now())
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range stale {
		id := stale[i].ID
		m.mu.Lock()
		_, busy := m.assembling[id]
		m.mu.Unlock()
		if busy {
			continue
		}
		s, err := m.store.TransitionUpload(ctx, id,
			[]models.UploadStatus{models.UploadOpen, models.UploadAssembling}, models.UploadExpired, "", "session expired")
		if errors.Is(err, database.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return n, err
		}
		m.cleanup(ctx, id)
		metrics.UploadSessions.WithLabelValues(string(s.Kind), string(s.Status)).Inc()
		n++
	}
	if n > 0 {
		m.logger.Info().Int("expired", n).Msg("Expired stale upload sessions")
	}
	return n, nil
}

// Serve runs the reassembly workers and the expiry sweeper until ctx is
// done. It fits suture.Service.
func (m *Manager) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < m.cfg.AssemblyWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.worker(ctx)
		}()
	}

	if _, err := m.Resume(ctx); err != nil && ctx.Err() == nil {
		m.logger.Warn().Err(err).Msg("Failed to resume upload assembly")
	}

	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.ExpireStale(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn().Err(err).Msg("Upload sweep failed")
			}
		}
	}
}

func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-m.queue:
			m.assemble(ctx, &s)
			m.mu.Lock()
			delete(m.assembling, s.ID)
			m.mu.Unlock()
		}
	}
}

// blobKey places uploads under tenant/kind/session/filename.
func blobKey(s *models.UploadSession) string {
	return path.Join(s.TenantID, string(s.Kind), s.ID, s.Filename)
}

func (m *Manager) assemble(ctx context.Context, s *models.UploadSession) {
	start := time.Now()
	id := s.ID
	log := m.logger.With().Str("upload_id", id).Logger()

	// a session can be queued again after another worker finished it
	if cur, err := m.store.GetUploadSession(ctx, s.TenantID, id); err != nil || cur.Status != models.UploadAssembling {
		return
	}

	key := blobKey(s)
	err := m.storeAssembled(ctx, s, key)
	metrics.UploadAssemblyDuration.Observe(time.Since(start).Seconds())

	to, errMsg, finalKey := models.UploadCompleted, "", key
	if err != nil {
		if ctx.Err() != nil {
			// shutting down; Serve resumes the session on the next start
			return
		}
		to, errMsg, finalKey = models.UploadFailed, err.Error(), ""
	}
	done, terr := m.store.TransitionUpload(ctx, id, []models.UploadStatus{models.UploadAssembling}, to, finalKey, errMsg)
	if terr != nil {
		log.Error().Err(terr).Msg("Failed to record assembly outcome")
		if err == nil && (done == nil || done.Status != models.UploadCompleted) {
			_ = m.blobs.Delete(ctx, key)
		}
		return
	}
	m.cleanup(ctx, id)
	metrics.UploadSessions.WithLabelValues(string(done.Kind), string(done.Status)).Inc()

	if err != nil {
		log.Warn().Err(err).Msg("Upload assembly failed")
	} else {
		log.Info().Str("blob_key", key).Dur("took", time.Since(start)).Msg("Upload completed")
	}
	m.publish(ctx, events.UploadCompleted, done, done)
}

func (m *Manager) storeAssembled(ctx context.Context, s *models.UploadSession, key string) error {
	r := m.staging.reader(s.ID, s.TotalChunks)
	defer r.Close()

	h := newHashingReader(r)
	if err := m.blobs.Put(ctx, key, h, s.TotalSize, s.ContentType); err != nil {
		return fmt.Errorf("failed to store assembled file: %w", err)
	}
	if got := h.Sum(); got != s.Checksum {
		_ = m.blobs.Delete(ctx, key)
		return fmt.Errorf("%w: got %s", ErrFileChecksum, got)
	}
	return nil
}

func (m *Manager) cleanup(ctx context.Context, id string) {
	if err := m.staging.remove(id); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("upload_id", id).Msg("Failed to remove staged chunks")
	}
	if err := m.store.DeleteChunks(ctx, id); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("upload_id", id).Msg("Failed to delete chunk receipts")
	}
}

func (m *Manager) publish(ctx context.Context, typ events.Type, s *models.UploadSession, payload any) {
	if m.bus == nil {
		return
	}
	ev, err := events.New(typ, s.TenantID, "", Origin, 0, payload)
	if err == nil {
		err = m.bus.Publish(ctx, ev)
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("type", string(typ)).Str("upload_id", s.ID).Msg("Failed to publish upload event")
	}
}
