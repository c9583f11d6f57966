// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Record is the logical unit synchronized between the local durable store
// and the remote replica. The payload is opaque to the data core; all
// synchronization decisions are made on the bookkeeping fields.
type Record struct {
	// ID is the stable, caller-assigned identifier of the record.
	ID string `json:"id"`

	// DataType is the semantic family of the payload.
	DataType DataType `json:"data_type"`

	// Payload is the opaque record content. Stored and transmitted as-is.
	Payload []byte `json:"payload"`

	// Version is a monotonic per-record logical clock. Every local
	// mutation increments it; remote applies adopt the remote value.
	Version int64 `json:"version"`

	// DeviceID identifies the device that produced the current version.
	DeviceID string `json:"device_id"`

	// Hash is the hex-encoded SHA-256 of Payload, used for cheap
	// equality checks during planning and for corruption detection.
	Hash string `json:"hash"`

	// Tombstone marks the record as deleted. A tombstoned record stays
	// in the store until the remote replica acknowledges the deletion;
	// purging it earlier would let a stale replica resurrect it.
	Tombstone bool `json:"tombstone"`

	// Timestamp is the wall-clock time of the last mutation. Together
	// with DeviceID it forms the deterministic conflict tie-break.
	Timestamp time.Time `json:"timestamp"`

	// CreatedAt is the timestamp when the record was first created.
	CreatedAt *time.Time `json:"created_at,omitempty"`

	// UpdatedAt is the timestamp of the last modification.
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// RecordState is the lightweight projection of a Record used when planning
// a synchronization cycle. It carries everything the planner needs without
// the payload.
type RecordState struct {
	ID        string   `json:"id"`
	DataType  DataType `json:"data_type"`
	Version   int64    `json:"version"`
	Hash      string   `json:"hash"`
	Tombstone bool     `json:"tombstone"`

	// Dirty is true when the record was mutated locally after the last
	// acknowledged push and therefore must be offered to the replica.
	Dirty bool `json:"dirty"`
}

// State returns the planner projection of the record. Dirty is supplied by
// the store, which owns the dirty index.
func (r *Record) State(dirty bool) RecordState {
	return RecordState{
		ID:        r.ID,
		DataType:  r.DataType,
		Version:   r.Version,
		Hash:      r.Hash,
		Tombstone: r.Tombstone,
		Dirty:     dirty,
	}
}

// PayloadHash computes the hex-encoded SHA-256 digest of the given payload.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
