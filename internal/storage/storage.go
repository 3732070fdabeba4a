package storage

import "context"

// KV is the durable key-value storage used for cart snapshots.
// Implementations must be safe for concurrent use and write each key atomically.
type KV interface {
	// Get returns the value stored at key. found is false when the key does not exist.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}
