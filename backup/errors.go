package backup

import "errors"

var (
	// ErrBackupFailed is returned when a snapshot sweep aborts. No
	// restore point exists for an aborted sweep.
	ErrBackupFailed = errors.New("backup failed")

	// ErrRestoreFailed is returned when a restore could not complete.
	// The store is rolled back to its pre-restore contents.
	ErrRestoreFailed = errors.New("restore failed")

	// ErrSnapshotNotFound is returned for a handle the storage does not
	// hold.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrExportFailed is returned when a portable export aborts. Nothing
	// usable has been written to the destination.
	ErrExportFailed = errors.New("export failed")
)
