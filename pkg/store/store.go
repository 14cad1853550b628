package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("store: key not found")

// Store is the shared key-value store abstraction. All values are strings;
// callers own their serialization (JSON for structured values).
//
// Implementations must be safe for concurrent use. A ttl of zero means the
// key does not expire.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key with the given ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Increment atomically increments the integer value at key by one and
	// returns the new value. A missing key counts as zero.
	Increment(ctx context.Context, key string) (int64, error)

	// Expire sets the remaining ttl of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// PushHistory prepends value to the list at key and trims the list to
	// maxLen entries, keeping the most recent first.
	PushHistory(ctx context.Context, key, value string, maxLen int64) error

	// History returns up to limit entries from the list at key, most recent
	// first. A missing key yields an empty slice.
	History(ctx context.Context, key string, limit int64) ([]string, error)
}
