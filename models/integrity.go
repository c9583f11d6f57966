package models

import "time"

// IntegrityIssueType classifies a single problem found by a validation scan.
type IntegrityIssueType int

const (
	// MissingData: an index references a record that is absent from storage.
	MissingData IntegrityIssueType = iota + 1

	// InvalidData: a storage entry could not be decoded as a record.
	InvalidData

	// DuplicateData: two storage entries claim the same logical identity.
	DuplicateData

	// CorruptedData: a record's stored hash does not match its payload.
	CorruptedData

	// InconsistentData: a record disagrees with the key it is stored under.
	InconsistentData
)

func (t IntegrityIssueType) String() string {
	switch t {
	case MissingData:
		return "missingData"
	case InvalidData:
		return "invalidData"
	case DuplicateData:
		return "duplicateData"
	case CorruptedData:
		return "corruptedData"
	case InconsistentData:
		return "inconsistentData"
	default:
		return "unknown"
	}
}

// IntegrityIssue is one finding in an integrity report.
type IntegrityIssue struct {
	Type IntegrityIssueType `json:"type"`

	// Key is the storage key the issue was found at, when applicable.
	Key string `json:"key,omitempty"`

	// RecordID is the logical identity involved, when applicable.
	RecordID string `json:"record_id,omitempty"`

	Detail string `json:"detail"`
}

// IntegrityReport is the read-only artifact of a validation scan.
// Producing a report never mutates the store; any repair is a separate,
// explicitly invoked operation with its own audit trail.
type IntegrityReport struct {
	IsValid bool `json:"is_valid"`

	// Issues is ordered by storage key so repeated scans of the same
	// store produce identical reports.
	Issues []IntegrityIssue `json:"issues"`

	// Scanned is the number of storage keys examined.
	Scanned int `json:"scanned"`

	LastValidated time.Time `json:"last_validated"`
}
