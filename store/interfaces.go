package store

import "context"

//go:generate mockgen -source=interfaces.go -destination=../mock/store_mock.go -package=mock

// DurableStore is the abstract persistent key/value storage backing the
// cache, the sync engine, backups, and integrity scans. Implementations
// must make each individual operation atomic; no cross-key transactional
// behavior is assumed.
type DurableStore interface {
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List enumerates every occupied key in unspecified order.
	List(ctx context.Context) ([]string, error)
}
