// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"fmt"

	"github.com/denster32/dogtv-datacore/syncer"
)

// validate checks that the final merged [Options] satisfies all invariants
// before it is used at startup.
func (cfg *Options) validate() error {
	if cfg.Device.ID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidDeviceConfigs)
	}

	if cfg.Cache.MaxEntries < 0 || cfg.Cache.MaxBytes < 0 {
		return fmt.Errorf("%w: cache bounds must not be negative", ErrInvalidCacheConfigs)
	}

	if cfg.Sync.Interval <= 0 || cfg.Sync.Timeout <= 0 {
		return fmt.Errorf("%w: sync interval and timeout must be positive", ErrInvalidSyncConfigs)
	}
	if cfg.Sync.BackoffMin <= 0 || cfg.Sync.BackoffMax < cfg.Sync.BackoffMin {
		return fmt.Errorf("%w: backoff bounds must be positive and ordered", ErrInvalidSyncConfigs)
	}
	if cfg.Sync.RetryBudget < 1 {
		return fmt.Errorf("%w: retry budget must be at least 1", ErrInvalidSyncConfigs)
	}
	if _, err := syncer.ParsePolicy(cfg.Sync.Policy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSyncConfigs, err)
	}

	if cfg.Backup.Dir == "" {
		return fmt.Errorf("%w: backup dir is required", ErrInvalidBackupConfigs)
	}
	if cfg.Backup.Retention < 1 {
		return fmt.Errorf("%w: retention must be at least 1", ErrInvalidBackupConfigs)
	}

	switch cfg.Storage.Driver {
	case DriverFile:
		if cfg.Storage.Path == "" {
			return fmt.Errorf("%w: file driver needs a path", ErrInvalidStorageConfigs)
		}
	case DriverSQLite, DriverPostgres:
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("%w: %s driver needs a DSN", ErrInvalidStorageConfigs, cfg.Storage.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalidStorageConfigs, cfg.Storage.Driver)
	}

	return nil
}
