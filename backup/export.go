// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/denster32/dogtv-datacore/models"
	"github.com/denster32/dogtv-datacore/store"
)

// exportDocument is the portable export layout. Unlike a snapshot it
// carries decoded records rather than raw store entries, so a receiving
// application can read it without knowing the store's key scheme.
type exportDocument struct {
	ExportedAt time.Time       `json:"exported_at"`
	DeviceID   string          `json:"device_id"`
	Records    []models.Record `json:"records"`
}

// Export writes every live record to w as a single JSON document, sorted
// by record ID. Tombstones and store bookkeeping are left out. The sweep
// shares the gate with other readers, so the exported set is consistent
// with respect to concurrent sync cycles.
func (m *Manager) Export(ctx context.Context, w io.Writer) error {
	entries, err := m.sweep(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}

	records := make([]models.Record, 0, len(entries))
	for key, value := range entries {
		if _, ok := store.RecordIDFromKey(key); !ok {
			continue
		}
		rec, err := store.DecodeRecord(value)
		if err != nil {
			return fmt.Errorf("%w: decode key %q: %w", ErrExportFailed, key, err)
		}
		if rec.Tombstone {
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	doc := exportDocument{
		ExportedAt: time.Now().UTC(),
		DeviceID:   m.deviceID,
		Records:    records,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}

	m.log.Info().Int("records", len(records)).Msg("store exported")
	return nil
}
