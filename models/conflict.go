// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import "time"

// ConflictType classifies why two versions of a record diverged.
type ConflictType int

const (
	// VersionMismatch means both sides mutated the record since the last
	// common sync point.
	VersionMismatch ConflictType = iota + 1

	// DataCorruption means one side's payload failed its hash check and
	// the other side's copy was used to decide the conflict.
	DataCorruption

	// MergeConflict means a field-level merge was requested but the
	// payloads could not be merged, so a whole-record winner was chosen.
	MergeConflict
)

func (t ConflictType) String() string {
	switch t {
	case VersionMismatch:
		return "versionMismatch"
	case DataCorruption:
		return "dataCorruption"
	case MergeConflict:
		return "mergeConflict"
	default:
		return "unknown"
	}
}

// ResolutionKind is the decision a resolver reached for a conflict.
type ResolutionKind int

const (
	// ResolutionUseLocal keeps the local version and pushes it out.
	ResolutionUseLocal ResolutionKind = iota + 1

	// ResolutionUseRemote adopts the remote version.
	ResolutionUseRemote

	// ResolutionMerge combines both versions field-by-field.
	ResolutionMerge

	// ResolutionManual means the resolver declined to decide; the
	// conflict is surfaced unresolved for an explicit caller decision.
	ResolutionManual
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionUseLocal:
		return "useLocal"
	case ResolutionUseRemote:
		return "useRemote"
	case ResolutionMerge:
		return "merge"
	case ResolutionManual:
		return "manual"
	default:
		return "unknown"
	}
}

// ConflictRecord is the audit entry produced for every detected divergence,
// whether it was resolved automatically or left for manual decision.
// It is immutable once resolved and retained for audit; no conflict is ever
// silently absorbed.
type ConflictRecord struct {
	// ID uniquely identifies the conflict occurrence itself.
	ID string `json:"id"`

	// RecordID is the identity both divergent versions claim.
	RecordID string `json:"record_id"`

	DataType      DataType     `json:"data_type"`
	LocalVersion  int64        `json:"local_version"`
	RemoteVersion int64        `json:"remote_version"`
	ConflictType  ConflictType `json:"conflict_type"`

	// Resolution is how the conflict was decided. ResolutionManual means
	// it is still pending an explicit caller decision.
	Resolution ResolutionKind `json:"resolution"`

	// WinnerDeviceID is the device whose version won, empty for merges
	// and unresolved conflicts.
	WinnerDeviceID string `json:"winner_device_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
