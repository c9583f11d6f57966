package backup

import "context"

//go:generate mockgen -source=interfaces.go -destination=../mock/backup_mock.go -package=mock

// Storage is the abstract blob store snapshots live in. Handles are opaque
// to the manager; only the storage that issued one can interpret it.
type Storage interface {
	// Store persists one snapshot blob and returns its handle.
	Store(ctx context.Context, blob []byte) (string, error)

	// List returns the handles of every stored snapshot.
	List(ctx context.Context) ([]string, error)

	// Fetch returns the blob stored under handle.
	Fetch(ctx context.Context, handle string) ([]byte, error)

	// Delete removes the blob stored under handle.
	Delete(ctx context.Context, handle string) error
}
