package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithDeviceFromEnv(t *testing.T) {
	t.Setenv("DATACORE_DEVICE_ID", "living-room-tv")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "living-room-tv", cfg.Device.ID)
	assert.Equal(t, 1024, cfg.Cache.MaxEntries)
	assert.Equal(t, int64(64<<20), cfg.Cache.MaxBytes)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "merge", cfg.Sync.Policy)
	assert.Equal(t, DriverFile, cfg.Storage.Driver)
	assert.Equal(t, "datacore.json", cfg.Storage.Path)
	assert.Equal(t, 5, cfg.Backup.Retention)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("DATACORE_DEVICE_ID", "bedroom-tv")
	t.Setenv("DATACORE_SYNC_POLICY", "useRemote")
	t.Setenv("DATACORE_SYNC_INTERVAL", "30s")
	t.Setenv("DATACORE_CACHE_MAX_ENTRIES", "16")
	t.Setenv("DATACORE_STORAGE_DRIVER", "postgres")
	t.Setenv("DATACORE_STORAGE_DSN", "postgres://localhost:5432/datacore")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "useRemote", cfg.Sync.Policy)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 16, cfg.Cache.MaxEntries)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
}

func TestLoad_JSONFileMergedUnderEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"device": {"id": "from-json"},
		"sync": {"policy": "useLocal", "timeout": "45s"},
		"backup": {"dir": "/var/backups/datacore", "retention": 3}
	}`), 0o644))

	t.Setenv("DATACORE_CONFIG", path)
	t.Setenv("DATACORE_SYNC_POLICY", "manual")

	cfg, err := Load()
	require.NoError(t, err)

	// env wins over JSON, JSON wins over defaults
	assert.Equal(t, "manual", cfg.Sync.Policy)
	assert.Equal(t, "from-json", cfg.Device.ID)
	assert.Equal(t, 45*time.Second, cfg.Sync.Timeout)
	assert.Equal(t, "/var/backups/datacore", cfg.Backup.Dir)
	assert.Equal(t, 3, cfg.Backup.Retention)
}

func TestLoad_MissingJSONFileFails(t *testing.T) {
	t.Setenv("DATACORE_DEVICE_ID", "tv")
	t.Setenv("DATACORE_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	_, err := Load()
	require.Error(t, err)
}

func TestOptions_Validate(t *testing.T) {
	valid := func() *Options {
		cfg := defaults()
		cfg.Device.ID = "tv"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr error
	}{
		{
			name:   "defaults with a device id are valid",
			mutate: func(*Options) {},
		},
		{
			name:    "missing device id",
			mutate:  func(cfg *Options) { cfg.Device.ID = "" },
			wantErr: ErrInvalidDeviceConfigs,
		},
		{
			name:    "negative cache bound",
			mutate:  func(cfg *Options) { cfg.Cache.MaxBytes = -1 },
			wantErr: ErrInvalidCacheConfigs,
		},
		{
			name:    "zero sync interval",
			mutate:  func(cfg *Options) { cfg.Sync.Interval = 0 },
			wantErr: ErrInvalidSyncConfigs,
		},
		{
			name:    "backoff max below min",
			mutate:  func(cfg *Options) { cfg.Sync.BackoffMax = cfg.Sync.BackoffMin / 2 },
			wantErr: ErrInvalidSyncConfigs,
		},
		{
			name:    "unknown policy",
			mutate:  func(cfg *Options) { cfg.Sync.Policy = "newest-wins" },
			wantErr: ErrInvalidSyncConfigs,
		},
		{
			name:    "zero retention",
			mutate:  func(cfg *Options) { cfg.Backup.Retention = 0 },
			wantErr: ErrInvalidBackupConfigs,
		},
		{
			name:    "unknown storage driver",
			mutate:  func(cfg *Options) { cfg.Storage.Driver = "redis" },
			wantErr: ErrInvalidStorageConfigs,
		},
		{
			name: "sql driver without DSN",
			mutate: func(cfg *Options) {
				cfg.Storage.Driver = DriverSQLite
				cfg.Storage.DSN = ""
			},
			wantErr: ErrInvalidStorageConfigs,
		},
		{
			name: "file driver without path",
			mutate: func(cfg *Options) {
				cfg.Storage.Path = ""
			},
			wantErr: ErrInvalidStorageConfigs,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1h30m"`), &d))
	assert.Equal(t, 90*time.Minute, time.Duration(d))

	require.NoError(t, json.Unmarshal([]byte(`1000000000`), &d))
	assert.Equal(t, time.Second, time.Duration(d))

	require.Error(t, json.Unmarshal([]byte(`"not-a-duration"`), &d))
}
