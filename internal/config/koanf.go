// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/planpoint/config.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8420,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
		},
		Database: DatabaseConfig{
			Path:         "/data/planpoint.duckdb",
			MaxOpenConns: 4,
		},
		Events: EventsConfig{
			Transport:  "memory",
			BufferSize: 256,
			NATS: NATSConfig{
				URL:              "nats://127.0.0.1:4222",
				Embedded:         false,
				Host:             "127.0.0.1",
				Port:             4222,
				Subject:          "planpoint.sync.events",
				BreakerThreshold: 5,
				BreakerTimeout:   30 * time.Second,
			},
		},
		Uploads: UploadConfig{
			StagingDir:      "/data/uploads/staging",
			MaxSize:         2 << 30,
			MinChunkSize:    64 << 10,
			MaxChunkSize:    16 << 20,
			SessionTTL:      24 * time.Hour,
			SweepInterval:   10 * time.Minute,
			AssemblyWorkers: 2,
		},
		Storage: StorageConfig{
			Backend:  "local",
			LocalDir: "/data/blobs",
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "planpoint/",
			},
		},
		Security: SecurityConfig{
			AuthMode:        "jwt",
			DevTenant:       "dev",
			DevUser:         "dev",
			DevRole:         "admin",
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:         true,
			BufferSize:      1000,
			Retention:       90 * 24 * time.Hour,
			CleanupInterval: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func defaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Remote: RemoteConfig{
			URL:     "http://127.0.0.1:8420",
			Timeout: 30 * time.Second,
		},
		Local: LocalConfig{
			DataDir: defaultDataDir(),
		},
		Sync: SyncConfig{
			Interval:         2 * time.Minute,
			ConflictPolicy:   "merge",
			PageSize:         100,
			RetryAttempts:    3,
			RetryDelay:       500 * time.Millisecond,
			MaxRetryDelay:    10 * time.Second,
			RateLimit:        20,
			RateBurst:        5,
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		Upload: UploadClientConfig{
			ChunkSize:     1 << 20,
			RetryAttempts: 3,
			PollInterval:  time.Second,
			PollTimeout:   5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + string(os.PathSeparator) + "planpoint"
	}
	return ".planpoint"
}

// Load reads the server configuration. Precedence: env > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", serverEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := splitSliceFields(k, "security.cors_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadClient reads the tourctl configuration from path (optional) and the
// TOURCTL_* environment.
func LoadClient(path string) (*ClientConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultClientConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", clientEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &ClientConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// splitSliceFields turns comma separated env values into string slices.
func splitSliceFields(k *koanf.Koanf, paths ...string) error {
	for _, path := range paths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		var out []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var serverEnv = map[string]string{
	"http_host":              "server.host",
	"http_port":              "server.port",
	"http_read_timeout":      "server.read_timeout",
	"http_write_timeout":     "server.write_timeout",
	"shutdown_timeout":       "server.shutdown_timeout",
	"environment":            "server.environment",
	"duckdb_path":            "database.path",
	"duckdb_max_open_conns":  "database.max_open_conns",
	"events_transport":       "events.transport",
	"events_buffer_size":     "events.buffer_size",
	"nats_url":               "events.nats.url",
	"nats_embedded":          "events.nats.embedded",
	"nats_host":              "events.nats.host",
	"nats_port":              "events.nats.port",
	"nats_subject":           "events.nats.subject",
	"upload_staging_dir":     "uploads.staging_dir",
	"upload_max_size":        "uploads.max_size",
	"upload_min_chunk_size":  "uploads.min_chunk_size",
	"upload_max_chunk_size":  "uploads.max_chunk_size",
	"upload_session_ttl":     "uploads.session_ttl",
	"upload_sweep_interval":  "uploads.sweep_interval",
	"upload_workers":         "uploads.assembly_workers",
	"storage_backend":        "storage.backend",
	"storage_local_dir":      "storage.local_dir",
	"s3_bucket":              "storage.s3.bucket",
	"s3_region":              "storage.s3.region",
	"s3_endpoint":            "storage.s3.endpoint",
	"s3_prefix":              "storage.s3.prefix",
	"s3_use_path_style":      "storage.s3.use_path_style",
	"auth_mode":              "security.auth_mode",
	"jwt_secret":             "security.jwt_secret",
	"jwt_issuer":             "security.jwt_issuer",
	"dev_tenant":             "security.dev_tenant",
	"dev_user":               "security.dev_user",
	"dev_role":               "security.dev_role",
	"cors_origins":           "security.cors_origins",
	"rate_limit_requests":    "security.rate_limit_requests",
	"rate_limit_window":      "security.rate_limit_window",
	"disable_rate_limit":     "security.rate_limit_disabled",
	"authz_policy_path":      "security.policy_path",
	"audit_enabled":          "audit.enabled",
	"audit_buffer_size":      "audit.buffer_size",
	"audit_retention":        "audit.retention",
	"audit_cleanup_interval": "audit.cleanup_interval",
	"audit_log_stdout":       "audit.log_to_stdout",
	"log_level":              "logging.level",
	"log_format":             "logging.format",
	"log_caller":             "logging.caller",
}

// serverEnvKey maps an environment variable to a config path. Unknown
// variables map to "" and are skipped by the provider.
func serverEnvKey(key string) string {
	return serverEnv[strings.ToLower(key)]
}

var clientEnv = map[string]string{
	"tourctl_server_url":      "remote.url",
	"tourctl_token":           "remote.token",
	"tourctl_timeout":         "remote.timeout",
	"tourctl_data_dir":        "local.data_dir",
	"tourctl_in_memory":       "local.in_memory",
	"tourctl_client_id":       "local.client_id",
	"tourctl_tenant":          "local.tenant_id",
	"tourctl_sync_interval":   "sync.interval",
	"tourctl_conflict_policy": "sync.conflict_policy",
	"tourctl_chunk_size":      "upload.chunk_size",
	"log_level":               "logging.level",
	"log_format":              "logging.format",
}

func clientEnvKey(key string) string {
	return clientEnv[strings.ToLower(key)]
}
