// Package kv defines the key-value storage collaborators used by the
// persisted and ephemeral stores, plus an in-memory implementation and a
// session-scoped namespace over any backend.
//
// Values are opaque strings; callers choose non-colliding keys. No locking is
// provided across keys, and concurrent writers to one key race with
// last-write-wins semantics.
package kv

import "context"

// Storage is a synchronous string key-value store.
//
// Backends live in sub-packages (sqlstore, redisstore) so the core does not
// pull in their drivers.
type Storage interface {
	// Get returns the stored value. ok is false if the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}
