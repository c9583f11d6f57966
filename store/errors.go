package store

import "errors"

// Sentinel errors returned by store implementations. Callers should use
// [errors.Is] to match against these values.
var (
	// ErrKeyNotFound is returned by Get when the key is not occupied.
	ErrKeyNotFound = errors.New("key not found")

	// ErrRecordNotFound is returned by the record layer when no record
	// exists for the requested identifier.
	ErrRecordNotFound = errors.New("record not found")

	// ErrNotTombstoned is returned by Purge when asked to physically
	// delete a record that has not been soft-deleted first. Purging a
	// live record would bypass deletion synchronization entirely.
	ErrNotTombstoned = errors.New("record is not tombstoned")

	// ErrPersistence wraps any underlying storage failure surfaced by a
	// store implementation. It is never swallowed silently.
	ErrPersistence = errors.New("persistence failure")

	// ErrTransient additionally marks a persistence failure the dialect's
	// classifier judged retryable: a busy database file, a dropped
	// connection, a deadlock rollback. Callers may retry with backoff.
	ErrTransient = errors.New("transient storage failure")
)

// Low-level database operation errors returned (or wrapped) by the SQL
// store when an operation fails before any domain logic applies.
var (
	// ErrBuildingSQLQuery is returned when constructing a parameterised
	// SQL query fails.
	ErrBuildingSQLQuery = errors.New("error building sql query")

	// ErrExecutingQuery is returned when executing a query against the
	// database fails.
	ErrExecutingQuery = errors.New("error executing sql query")

	// ErrScanningRows is returned when scanning column values during
	// result iteration fails.
	ErrScanningRows = errors.New("failed to scan rows")
)
