// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import "time"

// SyncCursor is an opaque token marking the last successfully pulled remote
// position. The zero value means "pull from the beginning of history".
// The cursor is persisted by the local store so that restarts resume
// incrementally instead of re-pulling everything.
type SyncCursor string

// ChangeEnvelope is the wire unit exchanged with a remote replica.
// It mirrors Record minus local-only bookkeeping.
type ChangeEnvelope struct {
	RecordID  string    `json:"record_id"`
	DataType  DataType  `json:"data_type"`
	Payload   []byte    `json:"payload"`
	Version   int64     `json:"version"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Tombstone bool      `json:"tombstone"`
}

// Envelope converts a record into its wire form.
func (r *Record) Envelope() ChangeEnvelope {
	return ChangeEnvelope{
		RecordID:  r.ID,
		DataType:  r.DataType,
		Payload:   r.Payload,
		Version:   r.Version,
		DeviceID:  r.DeviceID,
		Timestamp: r.Timestamp,
		Tombstone: r.Tombstone,
	}
}

// Record converts a pulled envelope into a local record.
func (e ChangeEnvelope) Record() Record {
	return Record{
		ID:        e.RecordID,
		DataType:  e.DataType,
		Payload:   e.Payload,
		Version:   e.Version,
		DeviceID:  e.DeviceID,
		Hash:      PayloadHash(e.Payload),
		Tombstone: e.Tombstone,
		Timestamp: e.Timestamp,
	}
}

// Ack is the replica's per-record answer to a push. A push batch never
// fails wholesale on record-level problems; each envelope is acknowledged
// independently so the caller can retry only what did not land.
type Ack struct {
	RecordID string `json:"record_id"`

	// Version is the version the replica now holds for the record.
	Version int64 `json:"version"`

	// Applied is true when the pushed change was accepted.
	Applied bool `json:"applied"`

	// Conflict is true when the push was rejected because the replica
	// holds a version the pushing side has not seen yet.
	Conflict bool `json:"conflict"`

	// Reason carries a human-readable rejection cause when Applied is false.
	Reason string `json:"reason,omitempty"`
}

// SyncStatus is the externally observable state of the sync engine.
type SyncStatus int

const (
	// SyncIdle means no cycle is in flight and the last one (if any)
	// finished in a terminal state that has already been reported.
	SyncIdle SyncStatus = iota

	// SyncSyncing means a cycle is currently in flight.
	SyncSyncing

	// SyncCompleted means the last cycle finished successfully.
	SyncCompleted

	// SyncFailed means the last cycle aborted on a non-retryable error.
	SyncFailed

	// SyncOffline means the retry budget for connectivity failures is
	// exhausted; the engine retries on its own backoff schedule.
	SyncOffline
)

// String returns the lowercase status name used in logs and events.
func (s SyncStatus) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncSyncing:
		return "syncing"
	case SyncCompleted:
		return "completed"
	case SyncFailed:
		return "failed"
	case SyncOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// SyncStats summarizes one sync cycle.
type SyncStats struct {
	Pulled      int `json:"pulled"`
	Applied     int `json:"applied"`
	Pushed      int `json:"pushed"`
	Conflicts   int `json:"conflicts"`
	Failures    int `json:"failures"`
	Invalidated int `json:"invalidated"`
}

// SyncEvent is emitted on every engine state transition over an explicit
// event channel so presentation layers can observe progress without the
// core depending on any UI framework.
type SyncEvent struct {
	Status SyncStatus `json:"status"`
	At     time.Time  `json:"at"`
	Err    string     `json:"err,omitempty"`
	Stats  SyncStats  `json:"stats"`
}
