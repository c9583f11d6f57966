package syncer

import "errors"

var (
	// ErrEngineClosed is returned by Sync after Close.
	ErrEngineClosed = errors.New("sync engine is closed")

	// ErrUnknownConflict is returned by ResolveManual for a conflict ID
	// that is not pending.
	ErrUnknownConflict = errors.New("unknown or already resolved conflict")

	// ErrManualDecisionRequired is returned by ResolveManual when the
	// supplied decision is not useLocal or useRemote.
	ErrManualDecisionRequired = errors.New("manual resolution must choose useLocal or useRemote")
)
