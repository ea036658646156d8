// Package store provides durable key-value snapshot storage for the session
// and registry actors. Keys are namespaced per actor instance
// ("session:<roomId>", "registry:rooms").
package store

import "context"

// Store is the durable put/get surface. Writes are awaited by callers before
// their triggering handler returns, giving read-after-write consistency for
// subsequent messages to the same actor.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
}
