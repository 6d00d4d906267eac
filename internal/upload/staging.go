// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package upload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// staging keeps received chunks on local disk, one directory per session.
type staging struct {
	root string
}

func (s staging) dir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

func (s staging) chunkPath(sessionID string, index int) string {
	return filepath.Join(s.dir(sessionID), fmt.Sprintf("%06d.part", index))
}

// write stores one chunk. The body is hashed while it is copied to a temp
// file, and the temp file only replaces the chunk when both size and
// checksum match.
func (s staging) write(sessionID string, index int, r io.Reader, size int64, checksum string) error {
	dir := s.dir(sessionID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create staging dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, fmt.Sprintf("%06d-*.tmp", index))
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp.Name())
		}
	}()

	h := sha256.New()
	// one extra byte is enough to notice an oversized body
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(r, size+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to stage chunk %d: %w", index, err)
	}
	if n != size {
		return fmt.Errorf("%w: chunk %d is %d bytes, want %d", ErrChunkSize, index, n, size)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != strings.ToLower(checksum) {
		return fmt.Errorf("%w: chunk %d", ErrChunkChecksum, index)
	}

	if err := os.Rename(tmp.Name(), s.chunkPath(sessionID, index)); err != nil {
		return fmt.Errorf("failed to commit chunk %d: %w", index, err)
	}
	committed = true
	return nil
}

// reader concatenates the chunks of a session in index order. Files are
// opened lazily so a session with many chunks holds one descriptor at a
// time.
func (s staging) reader(sessionID string, chunks int) io.ReadCloser {
	return &chunkReader{s: s, sessionID: sessionID, total: chunks}
}

func (s staging) remove(sessionID string) error {
	return os.RemoveAll(s.dir(sessionID))
}

type chunkReader struct {
	s         staging
	sessionID string
	total     int
	next      int
	cur       *os.File
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for {
		if c.cur == nil {
			if c.next >= c.total {
				return 0, io.EOF
			}
			f, err := os.Open(c.s.chunkPath(c.sessionID, c.next))
			if err != nil {
				return 0, fmt.Errorf("failed to open chunk %d: %w", c.next, err)
			}
			c.cur = f
			c.next++
		}
		n, err := c.cur.Read(p)
		if err == io.EOF {
			_ = c.cur.Close()
			c.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *chunkReader) Close() error {
	if c.cur == nil {
		return nil
	}
	err := c.cur.Close()
	c.cur = nil
	return err
}

func checksumHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func validChecksum(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// hashingReader computes the SHA-256 of everything read through it.
type hashingReader struct {
	r io.Reader
	h hash.Hash
}

func newHashingReader(r io.Reader) *hashingReader {
	return &hashingReader{r: r, h: sha256.New()}
}

func (h *hashingReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	h.h.Write(p[:n])
	return n, err
}

func (h *hashingReader) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}
