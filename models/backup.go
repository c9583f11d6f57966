package models

import "time"

// RestorePoint describes one immutable, verified-complete snapshot of the
// durable store. A RestorePoint exists only after a backup sweep finished
// without error; an aborted snapshot produces no RestorePoint at all.
type RestorePoint struct {
	// ID uniquely identifies the snapshot.
	ID string `json:"id"`

	// Handle is the backup-storage handle the snapshot blob was stored
	// under. Opaque to everything but the storage that issued it.
	Handle string `json:"handle"`

	Timestamp time.Time `json:"timestamp"`

	// Size is the encoded snapshot blob size in bytes.
	Size int64 `json:"size"`

	// KeyCount is the number of store keys captured.
	KeyCount int `json:"key_count"`

	// DataTypes lists the record families present in the snapshot.
	DataTypes []DataType `json:"data_types"`

	// Checksum is the hex SHA-256 over the snapshot entries, verified
	// again before any restore is allowed to touch the store.
	Checksum string `json:"checksum"`

	// IsComplete is always true for points returned by the manager;
	// it exists so a decoded snapshot that was never finalized can be
	// recognized and rejected.
	IsComplete bool `json:"is_complete"`
}
