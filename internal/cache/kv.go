package cache

import "context"

// KV is a persistent content-addressed key-value table. Implementations must
// tolerate concurrent readers and writers; a write race on the same key is
// last-write-wins.
type KV interface {
	// FetchMany returns only the subset of keys present in the store.
	FetchMany(ctx context.Context, keys []string) (map[string][]byte, error)
	// UpsertMany inserts all items, overwriting existing keys.
	UpsertMany(ctx context.Context, items map[string][]byte) error
	Close() error
}
