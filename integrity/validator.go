// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package integrity scans the durable store for structural damage.
// Validation is strictly read-only; it produces a report and nothing
// else. Repair is a separate, explicitly invoked operation that fixes
// only what can be fixed without losing data, with an audit entry per
// action taken.
package integrity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/denster32/dogtv-datacore/logger"
	"github.com/denster32/dogtv-datacore/models"
	"github.com/denster32/dogtv-datacore/store"
)

// Validator scans one durable store.
type Validator struct {
	store store.DurableStore
	gate  *store.Gate
	log   *logger.Logger
}

// NewValidator wires a Validator. gate must be the Gate instance shared
// with the sync engine and backup manager of the same store.
func NewValidator(st store.DurableStore, gate *store.Gate, log *logger.Logger) *Validator {
	if log == nil {
		log = logger.Nop()
	}
	if gate == nil {
		gate = store.NewGate()
	}
	return &Validator{store: st, gate: gate, log: log}
}

// Validate scans every key and reports what it finds without mutating
// anything. The scan shares the store gate with other readers, so the
// report describes one consistent snapshot of the store. Issues are
// ordered by storage key; repeated scans of an unchanged store produce
// identical reports.
func (v *Validator) Validate(ctx context.Context) (models.IntegrityReport, error) {
	v.gate.LockShared()
	defer v.gate.UnlockShared()

	keys, err := v.store.List(ctx)
	if err != nil {
		return models.IntegrityReport{}, fmt.Errorf("list store keys: %w", err)
	}
	sort.Strings(keys)

	var issues []models.IntegrityIssue
	present := make(map[string]struct{})  // record IDs with a backing key
	identity := make(map[string][]string) // record ID -> keys claiming it

	for _, key := range keys {
		if err = ctx.Err(); err != nil {
			return models.IntegrityReport{}, err
		}

		keyID, isRecord := store.RecordIDFromKey(key)
		if !isRecord {
			continue
		}
		present[keyID] = struct{}{}

		value, err := v.store.Get(ctx, key)
		if err != nil {
			return models.IntegrityReport{}, fmt.Errorf("read key %q: %w", key, err)
		}

		rec, err := store.DecodeRecord(value)
		if err != nil {
			issues = append(issues, models.IntegrityIssue{
				Type:   models.InvalidData,
				Key:    key,
				Detail: fmt.Sprintf("entry does not decode as a record: %v", err),
			})
			continue
		}

		identity[rec.ID] = append(identity[rec.ID], key)

		if rec.Hash != models.PayloadHash(rec.Payload) {
			issues = append(issues, models.IntegrityIssue{
				Type:     models.CorruptedData,
				Key:      key,
				RecordID: rec.ID,
				Detail:   "stored hash does not match payload",
			})
		}
		if rec.ID != keyID {
			issues = append(issues, models.IntegrityIssue{
				Type:     models.InconsistentData,
				Key:      key,
				RecordID: rec.ID,
				Detail:   fmt.Sprintf("record claims ID %q but is stored under %q", rec.ID, key),
			})
		}
	}

	// one issue per duplicated identity, however many keys claim it
	for id, claimed := range identity {
		if len(claimed) < 2 {
			continue
		}
		sort.Strings(claimed)
		issues = append(issues, models.IntegrityIssue{
			Type:     models.DuplicateData,
			Key:      claimed[0],
			RecordID: id,
			Detail:   fmt.Sprintf("identity claimed by %d keys", len(claimed)),
		})
	}

	dirty, err := v.dirtyIDs(ctx)
	if err != nil {
		return models.IntegrityReport{}, err
	}
	for _, id := range dirty {
		if _, ok := present[id]; ok {
			continue
		}
		issues = append(issues, models.IntegrityIssue{
			Type:     models.MissingData,
			Key:      store.RecordKey(id),
			RecordID: id,
			Detail:   "dirty index references a record absent from storage",
		})
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Key != issues[j].Key {
			return issues[i].Key < issues[j].Key
		}
		return issues[i].Type < issues[j].Type
	})

	report := models.IntegrityReport{
		IsValid:       len(issues) == 0,
		Issues:        issues,
		Scanned:       len(keys),
		LastValidated: time.Now().UTC(),
	}

	v.log.Info().
		Int("scanned", report.Scanned).
		Int("issues", len(issues)).
		Bool("valid", report.IsValid).
		Msg("integrity scan finished")
	return report, nil
}

// RepairOutcome summarizes what Repair did.
type RepairOutcome struct {
	// Repaired counts issues that were fixed.
	Repaired int

	// Declined counts issues Repair will not touch because fixing them
	// would discard data. They are left to the operator.
	Declined int
}

// Repair fixes the repairable subset of a report: orphaned dirty-index
// entries are removed and duplicate keys pruned down to the best copy,
// highest (Version, Timestamp) winning. Invalid and corrupted entries are
// declined; deleting them would be silent data loss. Every action taken
// is logged as an audit entry.
func (v *Validator) Repair(ctx context.Context, report models.IntegrityReport) (RepairOutcome, error) {
	v.gate.LockExclusive()
	defer v.gate.UnlockExclusive()

	var outcome RepairOutcome
	for _, issue := range report.Issues {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		switch issue.Type {
		case models.MissingData:
			if err := v.removeDirtyEntry(ctx, issue.RecordID); err != nil {
				return outcome, err
			}
			v.log.Warn().Str("record_id", issue.RecordID).Msg("repair: removed orphaned dirty-index entry")
			outcome.Repaired++

		case models.DuplicateData:
			pruned, err := v.pruneDuplicates(ctx, issue.RecordID)
			if err != nil {
				return outcome, err
			}
			if pruned > 0 {
				v.log.Warn().Str("record_id", issue.RecordID).Int("pruned", pruned).Msg("repair: pruned duplicate record keys")
				outcome.Repaired++
			}

		default:
			v.log.Warn().
				Str("key", issue.Key).
				Str("type", issue.Type.String()).
				Msg("repair: declined, fixing would discard data")
			outcome.Declined++
		}
	}
	return outcome, nil
}

// dirtyIDs reads the dirty index directly; a missing index means empty.
func (v *Validator) dirtyIDs(ctx context.Context) ([]string, error) {
	value, err := v.store.Get(ctx, store.DirtyIndexKey())
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dirty index: %w", err)
	}

	var ids []string
	if err = json.Unmarshal(value, &ids); err != nil {
		return nil, fmt.Errorf("decode dirty index: %w", err)
	}
	return ids, nil
}

func (v *Validator) removeDirtyEntry(ctx context.Context, id string) error {
	ids, err := v.dirtyIDs(ctx)
	if err != nil {
		return err
	}

	kept := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(ids) {
		return nil
	}
	sort.Strings(kept)

	value, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("encode dirty index: %w", err)
	}
	return v.store.Put(ctx, store.DirtyIndexKey(), value)
}

// pruneDuplicates deletes every key claiming id except the best copy.
func (v *Validator) pruneDuplicates(ctx context.Context, id string) (int, error) {
	keys, err := v.store.List(ctx)
	if err != nil {
		return 0, err
	}

	type copyAt struct {
		key string
		rec models.Record
	}
	var copies []copyAt
	for _, key := range keys {
		if _, isRecord := store.RecordIDFromKey(key); !isRecord {
			continue
		}
		value, err := v.store.Get(ctx, key)
		if err != nil {
			return 0, err
		}
		rec, err := store.DecodeRecord(value)
		if err != nil {
			continue
		}
		if rec.ID == id {
			copies = append(copies, copyAt{key: key, rec: rec})
		}
	}
	if len(copies) < 2 {
		return 0, nil
	}

	best := 0
	for i := 1; i < len(copies); i++ {
		if better(copies[i].rec, copies[best].rec) {
			best = i
		}
	}

	pruned := 0
	for i, c := range copies {
		if i == best {
			continue
		}
		if err := v.store.Delete(ctx, c.key); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// better reports whether a should be kept over b: higher version wins,
// then the later timestamp.
func better(a, b models.Record) bool {
	if a.Version != b.Version {
		return a.Version > b.Version
	}
	return a.Timestamp.After(b.Timestamp)
}
