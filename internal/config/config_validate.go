// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// minJWTSecretLength matches the HS256 key size.
const minJWTSecretLength = 32

// Validate checks field constraints, then cross-field rules per section.
func (c *Config) Validate() error {
	if err := structErrors(validate.Struct(c)); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateUploads(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateAudit(); err != nil {
		return err
	}
	return c.validateSecurity()
}

func (c *Config) validateAudit() error {
	a := c.Audit
	if a.Enabled && a.Retention > 0 && a.CleanupInterval <= 0 {
		return fmt.Errorf("AUDIT_CLEANUP_INTERVAL must be positive when AUDIT_RETENTION is set")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if c.Events.Transport != "nats" {
		return nil
	}
	if !c.Events.NATS.Embedded && c.Events.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when EVENTS_TRANSPORT=nats and NATS_EMBEDDED=false")
	}
	if c.Events.NATS.Subject == "" {
		return fmt.Errorf("NATS_SUBJECT must not be empty")
	}
	return nil
}

func (c *Config) validateUploads() error {
	u := c.Uploads
	if u.MaxChunkSize > u.MaxSize {
		return fmt.Errorf("UPLOAD_MAX_CHUNK_SIZE (%d) must not exceed UPLOAD_MAX_SIZE (%d)", u.MaxChunkSize, u.MaxSize)
	}
	if u.SessionTTL <= 0 {
		return fmt.Errorf("UPLOAD_SESSION_TTL must be positive, got %s", u.SessionTTL)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("STORAGE_LOCAL_DIR is required when STORAGE_BACKEND=local")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
	}
	return nil
}

func (c *Config) validateSecurity() error {
	s := c.Security
	if s.AuthMode == "jwt" && len(s.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters when AUTH_MODE=jwt", minJWTSecretLength)
	}
	if c.IsProduction() {
		if s.AuthMode == "none" {
			return fmt.Errorf("AUTH_MODE=none is not allowed in production")
		}
		for _, o := range s.CORSOrigins {
			if o == "*" {
				return fmt.Errorf("CORS_ORIGINS must not contain '*' in production")
			}
		}
	}
	if !s.RateLimitDisabled && (s.RateLimitReqs <= 0 || s.RateLimitWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

// Validate checks the client configuration.
func (c *ClientConfig) Validate() error {
	if err := structErrors(validate.Struct(c)); err != nil {
		return err
	}
	if !c.Local.InMemory && c.Local.DataDir == "" {
		return fmt.Errorf("TOURCTL_DATA_DIR is required unless the store is in memory")
	}
	if c.Sync.MaxRetryDelay < c.Sync.RetryDelay {
		return fmt.Errorf("sync.max_retry_delay (%s) must be >= sync.retry_delay (%s)", c.Sync.MaxRetryDelay, c.Sync.RetryDelay)
	}
	return nil
}

// structErrors flattens validator errors into one readable error.
func structErrors(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += " (" + fe.Param() + ")"
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
