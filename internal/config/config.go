// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

// Package config loads layered configuration for the sync server and for
// the tourctl client: struct defaults, then an optional YAML file, then
// environment variables.
package config

import "time"

// Config is the sync server configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Events   EventsConfig   `koanf:"events"`
	Uploads  UploadConfig   `koanf:"uploads"`
	Storage  StorageConfig  `koanf:"storage"`
	Security SecurityConfig `koanf:"security"`
	Audit    AuditConfig    `koanf:"audit"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// Environment is development or production. Production turns on
	// stricter validation of secrets and CORS.
	Environment string `koanf:"environment" validate:"oneof=development production"`
}

// DatabaseConfig configures the DuckDB store. Path ":memory:" keeps
// everything in memory.
type DatabaseConfig struct {
	Path         string `koanf:"path" validate:"required"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"min=1"`
}

// EventsConfig selects the SyncEvents transport.
type EventsConfig struct {
	Transport  string     `koanf:"transport" validate:"oneof=memory nats"`
	BufferSize int64      `koanf:"buffer_size" validate:"min=1"`
	NATS       NATSConfig `koanf:"nats"`
}

type NATSConfig struct {
	URL      string `koanf:"url"`
	Embedded bool   `koanf:"embedded"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Subject  string `koanf:"subject"`
	// BreakerThreshold is the number of consecutive publish failures that
	// open the publish circuit.
	BreakerThreshold uint32        `koanf:"breaker_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
}

// UploadConfig bounds the chunked upload protocol.
type UploadConfig struct {
	StagingDir      string        `koanf:"staging_dir" validate:"required"`
	MaxSize         int64         `koanf:"max_size" validate:"min=1"`
	MinChunkSize    int64         `koanf:"min_chunk_size" validate:"min=1"`
	MaxChunkSize    int64         `koanf:"max_chunk_size" validate:"gtefield=MinChunkSize"`
	SessionTTL      time.Duration `koanf:"session_ttl"`
	SweepInterval   time.Duration `koanf:"sweep_interval"`
	AssemblyWorkers int           `koanf:"assembly_workers" validate:"min=1"`
}

type StorageConfig struct {
	Backend  string   `koanf:"backend" validate:"oneof=local s3"`
	LocalDir string   `koanf:"local_dir"`
	S3       S3Config `koanf:"s3"`
}

// S3Config also covers S3-compatible stores such as MinIO via Endpoint
// and UsePathStyle.
type S3Config struct {
	Bucket       string `koanf:"bucket"`
	Region       string `koanf:"region"`
	Endpoint     string `koanf:"endpoint"`
	Prefix       string `koanf:"prefix"`
	UsePathStyle bool   `koanf:"use_path_style"`
}

type SecurityConfig struct {
	// AuthMode is jwt or none. With none every request runs as the
	// development principal below.
	AuthMode          string        `koanf:"auth_mode" validate:"oneof=jwt none"`
	JWTSecret         string        `koanf:"jwt_secret"`
	JWTIssuer         string        `koanf:"jwt_issuer"`
	DevTenant         string        `koanf:"dev_tenant"`
	DevUser           string        `koanf:"dev_user"`
	DevRole           string        `koanf:"dev_role"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// PolicyPath points at a Casbin policy CSV. Empty uses the built-in
	// viewer/editor/admin policy.
	PolicyPath string `koanf:"policy_path"`
}

// AuditConfig controls the server's audit trail of writes and denials.
type AuditConfig struct {
	Enabled         bool          `koanf:"enabled"`
	BufferSize      int           `koanf:"buffer_size" validate:"min=1"`
	Retention       time.Duration `koanf:"retention"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	// LogToStdout mirrors every audit event into the application log.
	LogToStdout bool `koanf:"log_to_stdout"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// ClientConfig is the tourctl configuration.
type ClientConfig struct {
	Remote  RemoteConfig       `koanf:"remote"`
	Local   LocalConfig        `koanf:"local"`
	Sync    SyncConfig         `koanf:"sync"`
	Upload  UploadClientConfig `koanf:"upload"`
	Logging LoggingConfig      `koanf:"logging"`
}

type RemoteConfig struct {
	URL     string        `koanf:"url" validate:"required,url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
}

// LocalConfig locates the local-first store. ClientID identifies this
// device in SyncEvents so it can ignore its own echoes; it is generated
// and persisted in the store when empty.
type LocalConfig struct {
	DataDir  string `koanf:"data_dir"`
	InMemory bool   `koanf:"in_memory"`
	ClientID string `koanf:"client_id"`

	// TenantID is used for imports and backups. When empty it is taken
	// from tours already in the local store.
	TenantID string `koanf:"tenant_id"`
}

type SyncConfig struct {
	Interval         time.Duration `koanf:"interval"`
	ConflictPolicy   string        `koanf:"conflict_policy" validate:"oneof=manual local_wins remote_wins merge"`
	PageSize         int           `koanf:"page_size" validate:"min=1,max=500"`
	RetryAttempts    int           `koanf:"retry_attempts" validate:"min=1"`
	RetryDelay       time.Duration `koanf:"retry_delay"`
	MaxRetryDelay    time.Duration `koanf:"max_retry_delay"`
	RateLimit        float64       `koanf:"rate_limit" validate:"gt=0"`
	RateBurst        int           `koanf:"rate_burst" validate:"min=1"`
	BreakerThreshold uint32        `koanf:"breaker_threshold" validate:"min=1"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
}

type UploadClientConfig struct {
	ChunkSize     int64         `koanf:"chunk_size" validate:"min=1"`
	RetryAttempts int           `koanf:"retry_attempts" validate:"min=1"`
	PollInterval  time.Duration `koanf:"poll_interval"`
	PollTimeout   time.Duration `koanf:"poll_timeout"`
}
