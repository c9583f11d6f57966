// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package backup produces and restores full snapshots of the durable
// store. A sweep is all-or-nothing: a restore point exists only for
// snapshots that were captured, checksummed and stored without a single
// failure, and a restore either brings the store byte-identical to the
// snapshot or rolls it back to the pre-restore contents.
package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/denster32/dogtv-datacore/logger"
	"github.com/denster32/dogtv-datacore/models"
	"github.com/denster32/dogtv-datacore/store"
)

// snapshot is the stored blob layout.
type snapshot struct {
	ID         string              `json:"id"`
	CreatedAt  time.Time           `json:"created_at"`
	DeviceID   string              `json:"device_id"`
	Entries    map[string][]byte   `json:"entries"`
	DataTypes  []models.DataType   `json:"data_types"`
	Checksum   string              `json:"checksum"`
	IsComplete bool                `json:"is_complete"`
}

// Manager creates, lists and restores snapshots of one durable store.
type Manager struct {
	store     store.DurableStore
	storage   Storage
	gate      *store.Gate
	deviceID  string
	retention int
	log       *logger.Logger
}

// NewManager wires a Manager. gate must be the Gate instance shared with
// the sync engine of the same store. retention <= 0 disables pruning.
func NewManager(st store.DurableStore, storage Storage, gate *store.Gate, deviceID string, retention int, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	if gate == nil {
		gate = store.NewGate()
	}
	return &Manager{
		store:     st,
		storage:   storage,
		gate:      gate,
		deviceID:  deviceID,
		retention: retention,
		log:       log,
	}
}

// Create captures a consistent snapshot of the whole store. The sweep
// shares the store gate with other readers but excludes writers, so no
// sync cycle can mutate the store mid-sweep. Any failure aborts without
// storing anything.
func (m *Manager) Create(ctx context.Context) (models.RestorePoint, error) {
	entries, err := m.sweep(ctx)
	if err != nil {
		return models.RestorePoint{}, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}

	snap := snapshot{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		DeviceID:   m.deviceID,
		Entries:    entries,
		DataTypes:  dataTypesOf(entries),
		Checksum:   entriesChecksum(entries),
		IsComplete: true,
	}

	blob, err := json.Marshal(snap)
	if err != nil {
		return models.RestorePoint{}, fmt.Errorf("%w: encode snapshot: %w", ErrBackupFailed, err)
	}

	handle, err := m.storage.Store(ctx, blob)
	if err != nil {
		return models.RestorePoint{}, fmt.Errorf("%w: store snapshot: %w", ErrBackupFailed, err)
	}

	point := models.RestorePoint{
		ID:         snap.ID,
		Handle:     handle,
		Timestamp:  snap.CreatedAt,
		Size:       int64(len(blob)),
		KeyCount:   len(entries),
		DataTypes:  snap.DataTypes,
		Checksum:   snap.Checksum,
		IsComplete: true,
	}

	m.log.Info().
		Str("handle", handle).
		Int("keys", point.KeyCount).
		Int64("bytes", point.Size).
		Msg("backup created")

	// prune only after the new point is safely stored
	if err = m.prune(ctx); err != nil {
		m.log.Err(err).Msg("backup retention pruning failed")
	}

	return point, nil
}

// sweep reads every key under the shared gate.
func (m *Manager) sweep(ctx context.Context) (map[string][]byte, error) {
	m.gate.LockShared()
	defer m.gate.UnlockShared()

	keys, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list store keys: %w", err)
	}

	entries := make(map[string][]byte, len(keys))
	for _, key := range keys {
		value, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read key %q: %w", key, err)
		}
		entries[key] = value
	}
	return entries, nil
}

// Points rebuilds the restore point list from storage, newest first.
// Blobs that do not decode as finalized snapshots are skipped.
func (m *Manager) Points(ctx context.Context) ([]models.RestorePoint, error) {
	handles, err := m.storage.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	points := make([]models.RestorePoint, 0, len(handles))
	for _, handle := range handles {
		snap, blobSize, err := m.fetchSnapshot(ctx, handle)
		if err != nil {
			m.log.Warn().Str("handle", handle).Err(err).Msg("skipping unreadable snapshot")
			continue
		}
		points = append(points, models.RestorePoint{
			ID:         snap.ID,
			Handle:     handle,
			Timestamp:  snap.CreatedAt,
			Size:       blobSize,
			KeyCount:   len(snap.Entries),
			DataTypes:  snap.DataTypes,
			Checksum:   snap.Checksum,
			IsComplete: snap.IsComplete,
		})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.After(points[j].Timestamp) })
	return points, nil
}

// Restore replaces the store's entire contents with the snapshot behind
// point. The checksum is re-verified before anything is touched; any
// failure past that rolls the store back to its pre-restore contents.
// Cancellation is honored only before the first mutation.
func (m *Manager) Restore(ctx context.Context, point models.RestorePoint) error {
	snap, _, err := m.fetchSnapshot(ctx, point.Handle)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRestoreFailed, err)
	}
	if snap.Checksum != point.Checksum {
		return fmt.Errorf("%w: snapshot checksum does not match restore point", ErrRestoreFailed)
	}

	m.gate.LockExclusive()
	defer m.gate.UnlockExclusive()

	preImage, err := m.sweepLocked(ctx)
	if err != nil {
		return fmt.Errorf("%w: capture pre-image: %w", ErrRestoreFailed, err)
	}

	if err = ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRestoreFailed, err)
	}

	if err = m.overwrite(snap.Entries, preImage); err != nil {
		m.rollback(preImage)
		return fmt.Errorf("%w: %w", ErrRestoreFailed, err)
	}

	if err = m.verify(snap.Entries); err != nil {
		m.rollback(preImage)
		return fmt.Errorf("%w: %w", ErrRestoreFailed, err)
	}

	m.log.Info().
		Str("handle", point.Handle).
		Int("keys", len(snap.Entries)).
		Msg("store restored from backup")
	return nil
}

// fetchSnapshot loads, decodes and checksum-verifies one stored blob.
func (m *Manager) fetchSnapshot(ctx context.Context, handle string) (snapshot, int64, error) {
	blob, err := m.storage.Fetch(ctx, handle)
	if err != nil {
		return snapshot{}, 0, err
	}

	var snap snapshot
	if err = json.Unmarshal(blob, &snap); err != nil {
		return snapshot{}, 0, fmt.Errorf("decode snapshot: %w", err)
	}
	if !snap.IsComplete {
		return snapshot{}, 0, fmt.Errorf("snapshot was never finalized")
	}
	if snap.Entries == nil {
		snap.Entries = make(map[string][]byte)
	}
	if got := entriesChecksum(snap.Entries); got != snap.Checksum {
		return snapshot{}, 0, fmt.Errorf("snapshot checksum mismatch: stored %s, computed %s", snap.Checksum, got)
	}
	return snap, int64(len(blob)), nil
}

// sweepLocked reads every key. Caller holds the gate.
func (m *Manager) sweepLocked(ctx context.Context) (map[string][]byte, error) {
	keys, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	entries := make(map[string][]byte, len(keys))
	for _, key := range keys {
		value, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		entries[key] = value
	}
	return entries, nil
}

// overwrite makes the store hold exactly target: keys absent from the
// snapshot are deleted, all snapshot keys written.
func (m *Manager) overwrite(target, current map[string][]byte) error {
	ctx := context.Background()
	for key := range current {
		if _, keep := target[key]; keep {
			continue
		}
		if err := m.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete key %q: %w", key, err)
		}
	}
	for key, value := range target {
		if err := m.store.Put(ctx, key, value); err != nil {
			return fmt.Errorf("write key %q: %w", key, err)
		}
	}
	return nil
}

// verify re-reads the whole store and byte-compares it against want.
func (m *Manager) verify(want map[string][]byte) error {
	ctx := context.Background()
	keys, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if len(keys) != len(want) {
		return fmt.Errorf("verify: store holds %d keys, snapshot %d", len(keys), len(want))
	}
	for _, key := range keys {
		wantValue, ok := want[key]
		if !ok {
			return fmt.Errorf("verify: unexpected key %q", key)
		}
		got, err := m.store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("verify: read key %q: %w", key, err)
		}
		if !bytes.Equal(got, wantValue) {
			return fmt.Errorf("verify: key %q differs from snapshot", key)
		}
	}
	return nil
}

// rollback restores the pre-image on a best-effort basis after a failed
// restore. Individual errors are logged, not returned: the caller already
// has the restore failure.
func (m *Manager) rollback(preImage map[string][]byte) {
	ctx := context.Background()

	keys, err := m.store.List(ctx)
	if err != nil {
		m.log.Err(err).Msg("rollback: listing store failed")
		keys = nil
	}
	for _, key := range keys {
		if _, keep := preImage[key]; keep {
			continue
		}
		if err := m.store.Delete(ctx, key); err != nil {
			m.log.Err(err).Str("key", key).Msg("rollback: delete failed")
		}
	}
	for key, value := range preImage {
		if err := m.store.Put(ctx, key, value); err != nil {
			m.log.Err(err).Str("key", key).Msg("rollback: write failed")
		}
	}
	m.log.Warn().Int("keys", len(preImage)).Msg("store rolled back after failed restore")
}

// prune deletes the oldest snapshots beyond the retention count.
func (m *Manager) prune(ctx context.Context) error {
	if m.retention <= 0 {
		return nil
	}

	handles, err := m.storage.List(ctx)
	if err != nil {
		return err
	}
	if len(handles) <= m.retention {
		return nil
	}

	// handles sort oldest first
	for _, handle := range handles[:len(handles)-m.retention] {
		if err := m.storage.Delete(ctx, handle); err != nil {
			return err
		}
		m.log.Debug().Str("handle", handle).Msg("pruned expired snapshot")
	}
	return nil
}

// entriesChecksum is the hex SHA-256 over all entries in sorted key order.
// Key and value are length-prefixed so no two distinct entry sets collide
// by concatenation.
func entriesChecksum(entries map[string][]byte) string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, key := range keys {
		fmt.Fprintf(h, "%d:%s", len(key), key)
		fmt.Fprintf(h, "%d:", len(entries[key]))
		h.Write(entries[key])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// dataTypesOf collects the distinct record families present in a sweep.
func dataTypesOf(entries map[string][]byte) []models.DataType {
	seen := make(map[models.DataType]struct{})
	for key, value := range entries {
		if _, ok := store.RecordIDFromKey(key); !ok {
			continue
		}
		rec, err := store.DecodeRecord(value)
		if err != nil {
			continue
		}
		seen[rec.DataType] = struct{}{}
	}

	types := make([]models.DataType, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
