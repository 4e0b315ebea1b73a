// Package storage defines the persistence collaborator shared by the key
// record store, the event queue, and the window registry. The contract is
// deliberately weak: eventually consistent across contexts, last write
// wins per key, and no cross-key transactions. Components built on it use
// idempotent upserts and reconcile-on-read instead of locking.
package storage

import "context"

// Store is a durable string-keyed byte store.
//
// SetMany commits the whole batch or none of it where the backend supports
// atomic batches; callers that need all-or-nothing bulk writes (bulk
// re-encryption) depend on this and must be wired to such a backend.
// Concurrent writes to the same key from independently scheduled contexts
// are resolved last-writer-wins and are not linearizable.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	SetMany(ctx context.Context, values map[string][]byte) error
	Remove(ctx context.Context, keys ...string) error
	GetAll(ctx context.Context, prefix string) (map[string][]byte, error)
}
