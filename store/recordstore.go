// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/denster32/dogtv-datacore/logger"
	"github.com/denster32/dogtv-datacore/models"
)

// Key layout inside the durable store. Records live under "record/<id>";
// sync bookkeeping lives under "meta/".
const (
	recordKeyPrefix = "record/"
	cursorKey       = "meta/cursor"
	dirtyIndexKey   = "meta/dirty"
)

// RecordKey returns the storage key for a record identifier.
func RecordKey(id string) string {
	return recordKeyPrefix + id
}

// RecordIDFromKey extracts the record identifier from a storage key.
// The second return value is false for non-record keys.
func RecordIDFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, recordKeyPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, recordKeyPrefix), true
}

// CursorKey returns the meta key holding the persisted sync cursor.
func CursorKey() string { return cursorKey }

// DirtyIndexKey returns the meta key holding the dirty-record index.
func DirtyIndexKey() string { return dirtyIndexKey }

// EncodeRecord serializes a record for storage.
func EncodeRecord(rec models.Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	return data, nil
}

// DecodeRecord deserializes a stored record value.
func DecodeRecord(value []byte) (models.Record, error) {
	var rec models.Record
	if err := json.Unmarshal(value, &rec); err != nil {
		return models.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// RecordStore layers record semantics over any DurableStore: versioned
// saves, idempotent remote applies, tombstoned deletions, the dirty index
// of locally mutated records, and the persisted sync cursor.
//
// The durable store only guarantees per-key atomicity, so composite
// operations (record write + dirty index update) are serialized behind an
// internal mutex.
type RecordStore struct {
	store    DurableStore
	deviceID string
	log      *logger.Logger

	mu sync.Mutex
}

// NewRecordStore constructs a RecordStore writing on behalf of deviceID.
func NewRecordStore(store DurableStore, deviceID string, log *logger.Logger) *RecordStore {
	if log == nil {
		log = logger.Nop()
	}
	return &RecordStore{store: store, deviceID: deviceID, log: log}
}

// DeviceID returns the device identity local mutations are stamped with.
func (s *RecordStore) DeviceID() string { return s.deviceID }

// Get returns the record stored under id, or ErrRecordNotFound.
func (s *RecordStore) Get(ctx context.Context, id string) (models.Record, error) {
	value, err := s.store.Get(ctx, RecordKey(id))
	if errors.Is(err, ErrKeyNotFound) {
		return models.Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return models.Record{}, err
	}
	return DecodeRecord(value)
}

// SaveLocal records a local mutation: the version is bumped, the payload
// hash recomputed, the mutation stamped with this device and the current
// time, and the record added to the dirty index so the next sync cycle
// offers it to the replica.
func (s *RecordStore) SaveLocal(ctx context.Context, id string, dataType models.DataType, payload []byte) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec := models.Record{
		ID:        id,
		DataType:  dataType,
		Payload:   payload,
		Version:   1,
		DeviceID:  s.deviceID,
		Hash:      models.PayloadHash(payload),
		Timestamp: now,
		CreatedAt: &now,
		UpdatedAt: &now,
	}

	prev, err := s.Get(ctx, id)
	switch {
	case err == nil:
		rec.Version = prev.Version + 1
		rec.CreatedAt = prev.CreatedAt
	case errors.Is(err, ErrRecordNotFound):
		// first write
	default:
		return models.Record{}, err
	}

	if err = s.putRecord(ctx, rec); err != nil {
		return models.Record{}, err
	}
	if err = s.setDirty(ctx, id, true); err != nil {
		return models.Record{}, err
	}
	return rec, nil
}

// ApplyRemote applies a pulled change. Applying the same envelope twice is
// a no-op: the change lands only when its version is strictly newer than
// the local one. A remote apply supersedes any local dirtiness for the
// record.
func (s *RecordStore) ApplyRemote(ctx context.Context, env models.ChangeEnvelope) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := env.Record()
	now := time.Now().UTC()
	rec.UpdatedAt = &now
	rec.CreatedAt = &now

	prev, err := s.Get(ctx, env.RecordID)
	switch {
	case err == nil:
		if prev.Version >= env.Version {
			return false, nil
		}
		rec.CreatedAt = prev.CreatedAt
	case errors.Is(err, ErrRecordNotFound):
		// new record from the replica
	default:
		return false, err
	}

	if err = s.putRecord(ctx, rec); err != nil {
		return false, err
	}
	if err = s.setDirty(ctx, env.RecordID, false); err != nil {
		return false, err
	}
	return true, nil
}

// SaveResolved stores a conflict winner exactly as decided, version
// included, and marks it dirty so the next cycle pushes it to the replica.
func (s *RecordStore) SaveResolved(ctx context.Context, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec.UpdatedAt = &now
	if rec.CreatedAt == nil {
		if prev, err := s.Get(ctx, rec.ID); err == nil {
			rec.CreatedAt = prev.CreatedAt
		} else {
			rec.CreatedAt = &now
		}
	}

	if err := s.putRecord(ctx, rec); err != nil {
		return err
	}
	return s.setDirty(ctx, rec.ID, true)
}

// SoftDelete tombstones the record. The tombstone stays in the store and
// keeps syncing until the replica acknowledges the deletion; only Purge
// removes it physically.
func (s *RecordStore) SoftDelete(ctx context.Context, id string) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.Get(ctx, id)
	if err != nil {
		return models.Record{}, err
	}

	now := time.Now().UTC()
	rec := prev
	rec.Tombstone = true
	rec.Payload = nil
	rec.Hash = models.PayloadHash(nil)
	rec.Version = prev.Version + 1
	rec.DeviceID = s.deviceID
	rec.Timestamp = now
	rec.UpdatedAt = &now

	if err = s.putRecord(ctx, rec); err != nil {
		return models.Record{}, err
	}
	if err = s.setDirty(ctx, id, true); err != nil {
		return models.Record{}, err
	}
	return rec, nil
}

// Purge physically deletes an acknowledged tombstone. Purging a live
// record is refused; deleting data that never synchronized would let a
// stale replica resurrect it.
func (s *RecordStore) Purge(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Tombstone {
		return fmt.Errorf("%w: %s", ErrNotTombstoned, id)
	}

	if err = s.store.Delete(ctx, RecordKey(id)); err != nil {
		return err
	}
	return s.setDirty(ctx, id, false)
}

// States returns the planner projection of every stored record, dirty
// flags included.
func (s *RecordStore) States(ctx context.Context) ([]models.RecordState, error) {
	keys, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	dirty, err := s.dirtyIndex(ctx)
	if err != nil {
		return nil, err
	}

	states := make([]models.RecordState, 0, len(keys))
	for _, key := range keys {
		id, ok := RecordIDFromKey(key)
		if !ok {
			continue
		}
		value, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		rec, err := DecodeRecord(value)
		if err != nil {
			return nil, err
		}
		_, isDirty := dirty[id]
		states = append(states, rec.State(isDirty))
	}

	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states, nil
}

// DirtyRecords returns every record mutated locally since its last
// acknowledged push, ordered by identifier.
func (s *RecordStore) DirtyRecords(ctx context.Context) ([]models.Record, error) {
	dirty, err := s.dirtyIndex(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(dirty))
	for id := range dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if errors.Is(err, ErrRecordNotFound) {
			// index entry without a backing record; integrity scans
			// report these, sync just skips them
			s.log.Warn().Str("record_id", id).Msg("dirty index references missing record")
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// MarkSynced drops the record from the dirty index, but only when the
// acknowledged version is still current; a mutation racing the push keeps
// the record dirty for the next cycle.
func (s *RecordStore) MarkSynced(ctx context.Context, id string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return s.setDirty(ctx, id, false)
		}
		return err
	}
	if rec.Version != version {
		return nil
	}
	return s.setDirty(ctx, id, false)
}

// Cursor returns the persisted sync cursor, or the zero cursor when no
// sync has completed yet.
func (s *RecordStore) Cursor(ctx context.Context) (models.SyncCursor, error) {
	value, err := s.store.Get(ctx, cursorKey)
	if errors.Is(err, ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return models.SyncCursor(value), nil
}

// SetCursor persists the cursor so restarts resume incrementally.
func (s *RecordStore) SetCursor(ctx context.Context, cursor models.SyncCursor) error {
	return s.store.Put(ctx, cursorKey, []byte(cursor))
}

func (s *RecordStore) putRecord(ctx context.Context, rec models.Record) error {
	value, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, RecordKey(rec.ID), value)
}

// dirtyIndex loads the dirty-record identifiers. Missing index means none.
func (s *RecordStore) dirtyIndex(ctx context.Context) (map[string]struct{}, error) {
	value, err := s.store.Get(ctx, dirtyIndexKey)
	if errors.Is(err, ErrKeyNotFound) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, err
	}

	var ids []string
	if err = json.Unmarshal(value, &ids); err != nil {
		return nil, fmt.Errorf("decode dirty index: %w", err)
	}

	index := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		index[id] = struct{}{}
	}
	return index, nil
}

// setDirty updates one entry of the dirty index. Caller must hold s.mu.
func (s *RecordStore) setDirty(ctx context.Context, id string, dirty bool) error {
	index, err := s.dirtyIndex(ctx)
	if err != nil {
		return err
	}

	_, present := index[id]
	if dirty == present {
		return nil
	}
	if dirty {
		index[id] = struct{}{}
	} else {
		delete(index, id)
	}

	ids := make([]string, 0, len(index))
	for indexed := range index {
		ids = append(ids, indexed)
	}
	sort.Strings(ids)

	value, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode dirty index: %w", err)
	}
	return s.store.Put(ctx, dirtyIndexKey, value)
}
