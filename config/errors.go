package config

import "errors"

// Validation errors returned by [Options.validate] when required
// configuration groups are incomplete or invalid.
var (
	// ErrInvalidDeviceConfigs indicates missing device identity settings.
	ErrInvalidDeviceConfigs = errors.New("invalid device configuration")
	// ErrInvalidCacheConfigs indicates invalid cache bound settings.
	ErrInvalidCacheConfigs = errors.New("invalid cache configuration")
	// ErrInvalidSyncConfigs indicates invalid sync engine settings
	// (for example, a zero interval or an unknown conflict policy).
	ErrInvalidSyncConfigs = errors.New("invalid sync configuration")
	// ErrInvalidBackupConfigs indicates invalid backup settings
	// (for example, a missing directory or zero retention).
	ErrInvalidBackupConfigs = errors.New("invalid backup configuration")
	// ErrInvalidStorageConfigs indicates invalid storage settings
	// (for example, an empty DSN or an unknown driver).
	ErrInvalidStorageConfigs = errors.New("invalid storage configuration")
)
