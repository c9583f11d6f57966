// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"time"
)

// Options is the top-level configuration container for the data core. It
// is populated by merging values from environment variables and an
// optional JSON file over built-in defaults; earlier sources win for
// non-zero fields.
//
// All environment variables carry the DATACORE_ prefix, e.g.
// DATACORE_SYNC_POLICY or DATACORE_STORAGE_DRIVER.
type Options struct {
	// Device identifies this installation to the sync protocol.
	Device Device `envPrefix:"DEVICE_" json:"device,omitempty"`

	// Cache bounds the in-memory read cache.
	Cache Cache `envPrefix:"CACHE_" json:"cache,omitempty"`

	// Sync tunes the reconciliation engine.
	Sync Sync `envPrefix:"SYNC_" json:"sync,omitempty"`

	// Remote configures the HTTP replica adapter.
	Remote Remote `envPrefix:"REMOTE_" json:"remote,omitempty"`

	// Backup configures snapshot storage and retention.
	Backup Backup `envPrefix:"BACKUP_" json:"backup,omitempty"`

	// Storage selects and configures the durable store backend.
	Storage Storage `envPrefix:"STORAGE_" json:"storage,omitempty"`

	// JSONFilePath is the optional path to a JSON configuration file.
	// When non-empty, the file is parsed and merged underneath the values
	// already loaded from the environment.
	// Env: DATACORE_CONFIG
	JSONFilePath string `env:"CONFIG" json:"-"`
}

// Device identifies this installation.
type Device struct {
	// ID is the stable device identifier stamped onto every local
	// mutation. Required.
	// Env: DATACORE_DEVICE_ID
	ID string `env:"ID" json:"id"`
}

// Cache bounds the in-memory read cache.
type Cache struct {
	// MaxEntries caps the number of cached entries. Zero means the
	// default.
	// Env: DATACORE_CACHE_MAX_ENTRIES
	MaxEntries int `env:"MAX_ENTRIES" json:"max_entries"`

	// MaxBytes caps the total cached payload cost in bytes.
	// Env: DATACORE_CACHE_MAX_BYTES
	MaxBytes int64 `env:"MAX_BYTES" json:"max_bytes"`
}

// Sync tunes the reconciliation engine.
type Sync struct {
	// Interval is how often the background sync job runs.
	// Env: DATACORE_SYNC_INTERVAL
	Interval time.Duration `env:"INTERVAL" json:"interval"`

	// Timeout bounds each individual replica call.
	// Env: DATACORE_SYNC_TIMEOUT
	Timeout time.Duration `env:"TIMEOUT" json:"timeout"`

	// Policy is the default conflict policy: useLocal, useRemote, merge
	// or manual.
	// Env: DATACORE_SYNC_POLICY
	Policy string `env:"POLICY" json:"policy"`

	// RetryBudget is the number of backoff retries after connectivity
	// failures before the engine reports itself offline.
	// Env: DATACORE_SYNC_RETRY_BUDGET
	RetryBudget int `env:"RETRY_BUDGET" json:"retry_budget"`

	// BackoffMin and BackoffMax bound the exponential retry delay.
	// Env: DATACORE_SYNC_BACKOFF_MIN, DATACORE_SYNC_BACKOFF_MAX
	BackoffMin time.Duration `env:"BACKOFF_MIN" json:"backoff_min"`
	BackoffMax time.Duration `env:"BACKOFF_MAX" json:"backoff_max"`
}

// Remote configures the HTTP replica adapter.
type Remote struct {
	// BaseURL is the replica's base address, e.g. "https://sync.example.com".
	// Empty means no remote; the engine is not started.
	// Env: DATACORE_REMOTE_BASE_URL
	BaseURL string `env:"BASE_URL" json:"base_url"`

	// Token is the bearer token presented on every replica call.
	// Env: DATACORE_REMOTE_TOKEN
	Token string `env:"TOKEN" json:"token"`

	// Timeout bounds each HTTP round trip.
	// Env: DATACORE_REMOTE_TIMEOUT
	Timeout time.Duration `env:"TIMEOUT" json:"timeout"`
}

// Backup configures snapshot storage and retention.
type Backup struct {
	// Dir is the directory snapshot files are written to.
	// Env: DATACORE_BACKUP_DIR
	Dir string `env:"DIR" json:"dir"`

	// Retention is how many snapshots to keep; older ones are pruned
	// after each successful backup.
	// Env: DATACORE_BACKUP_RETENTION
	Retention int `env:"RETENTION" json:"retention"`

	// Interval is how often the background backup job runs. Zero
	// disables scheduled backups.
	// Env: DATACORE_BACKUP_INTERVAL
	Interval time.Duration `env:"INTERVAL" json:"interval"`
}

// Storage selects the durable store backend.
type Storage struct {
	// Driver is one of "file", "sqlite3" or "postgres".
	// Env: DATACORE_STORAGE_DRIVER
	Driver string `env:"DRIVER" json:"driver"`

	// DSN is the database connection string for the sqlite3 and postgres
	// drivers.
	// Env: DATACORE_STORAGE_DSN
	DSN string `env:"DSN" json:"dsn"`

	// Path is the store file location for the file driver.
	// Env: DATACORE_STORAGE_PATH
	Path string `env:"PATH" json:"path"`
}

// Storage driver names.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// defaults returns the built-in configuration every load starts from.
func defaults() *Options {
	return &Options{
		Cache: Cache{
			MaxEntries: 1024,
			MaxBytes:   64 << 20,
		},
		Sync: Sync{
			Interval:    5 * time.Minute,
			Timeout:     15 * time.Second,
			Policy:      "merge",
			RetryBudget: 5,
			BackoffMin:  time.Second,
			BackoffMax:  5 * time.Minute,
		},
		Remote: Remote{
			Timeout: 15 * time.Second,
		},
		Backup: Backup{
			Dir:       "backups",
			Retention: 5,
		},
		Storage: Storage{
			Driver: DriverFile,
			Path:   "datacore.json",
		},
	}
}

// Load builds the effective configuration: environment variables win over
// the optional JSON file, which wins over the built-in defaults. The
// result is validated before it is returned.
func Load() (*Options, error) {
	return newOptionsBuilder().
		withEnv().
		withJSON().
		withDefaults().
		build()
}
