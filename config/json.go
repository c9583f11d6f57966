package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// jsonOptions mirrors Options for JSON decoding; duration fields accept
// strings like "30s" or "5m" in addition to raw nanosecond numbers.
type jsonOptions struct {
	Device struct {
		ID string `json:"id"`
	} `json:"device,omitempty"`

	Cache struct {
		MaxEntries int   `json:"max_entries"`
		MaxBytes   int64 `json:"max_bytes"`
	} `json:"cache,omitempty"`

	Sync struct {
		Interval    Duration `json:"interval"`
		Timeout     Duration `json:"timeout"`
		Policy      string   `json:"policy"`
		RetryBudget int      `json:"retry_budget"`
		BackoffMin  Duration `json:"backoff_min"`
		BackoffMax  Duration `json:"backoff_max"`
	} `json:"sync,omitempty"`

	Remote struct {
		BaseURL string   `json:"base_url"`
		Token   string   `json:"token"`
		Timeout Duration `json:"timeout"`
	} `json:"remote,omitempty"`

	Backup struct {
		Dir       string   `json:"dir"`
		Retention int      `json:"retention"`
		Interval  Duration `json:"interval"`
	} `json:"backup,omitempty"`

	Storage struct {
		Driver string `json:"driver"`
		DSN    string `json:"dsn"`
		Path   string `json:"path"`
	} `json:"storage,omitempty"`
}

func parseJSON(jsonFilePath string) (*Options, error) {
	jsonFile, err := os.Open(jsonFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading a json file: %w", err)
	}
	defer jsonFile.Close()

	var jsonCfg jsonOptions
	if err := json.NewDecoder(jsonFile).Decode(&jsonCfg); err != nil {
		return nil, fmt.Errorf("error decoding json configs: %w", err)
	}

	cfg := &Options{
		Device: Device{
			ID: jsonCfg.Device.ID,
		},
		Cache: Cache{
			MaxEntries: jsonCfg.Cache.MaxEntries,
			MaxBytes:   jsonCfg.Cache.MaxBytes,
		},
		Sync: Sync{
			Interval:    time.Duration(jsonCfg.Sync.Interval),
			Timeout:     time.Duration(jsonCfg.Sync.Timeout),
			Policy:      jsonCfg.Sync.Policy,
			RetryBudget: jsonCfg.Sync.RetryBudget,
			BackoffMin:  time.Duration(jsonCfg.Sync.BackoffMin),
			BackoffMax:  time.Duration(jsonCfg.Sync.BackoffMax),
		},
		Remote: Remote{
			BaseURL: jsonCfg.Remote.BaseURL,
			Token:   jsonCfg.Remote.Token,
			Timeout: time.Duration(jsonCfg.Remote.Timeout),
		},
		Backup: Backup{
			Dir:       jsonCfg.Backup.Dir,
			Retention: jsonCfg.Backup.Retention,
			Interval:  time.Duration(jsonCfg.Backup.Interval),
		},
		Storage: Storage{
			Driver: jsonCfg.Storage.Driver,
			DSN:    jsonCfg.Storage.DSN,
			Path:   jsonCfg.Storage.Path,
		},
	}

	return cfg, nil
}

// Duration is a wrapper around time.Duration that supports JSON
// unmarshaling from strings like "1h", "30s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return json.Unmarshal(b, (*time.Duration)(d))
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
