// -----------------------------------------------------------------------
// Key/Value Storage Interface - Durable settings plus a TTL byte cache
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a key is not found in the key/value store
var ErrKeyNotFound = errors.New("key not found")

// KeyValuePair represents a single key/value pair with metadata
type KeyValuePair struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KeyValueStorage defines operations for generic key/value storage. The
// settings half holds operator-managed values (mailbox credentials, API
// keys). The cache half holds TTL-bound bytes: the structural graph handed
// between build stages and memoized embedding vectors.
type KeyValueStorage interface {
	// Get retrieves a value by key, returns ErrKeyNotFound if missing
	Get(ctx context.Context, key string) (string, error)

	// GetPair retrieves a full KeyValuePair by key
	GetPair(ctx context.Context, key string) (*KeyValuePair, error)

	// Set inserts or updates a key/value pair with optional description
	Set(ctx context.Context, key string, value string, description string) error

	// Upsert inserts or updates a key/value pair with explicit logging of the operation
	// Returns true if a new key was created, false if an existing key was updated
	Upsert(ctx context.Context, key string, value string, description string) (bool, error)

	// Delete removes a key/value pair, returns ErrKeyNotFound if missing
	Delete(ctx context.Context, key string) error

	// ListByPrefix returns all pairs with keys starting with the prefix
	ListByPrefix(ctx context.Context, prefix string) ([]KeyValuePair, error)

	// CacheGet returns the cached bytes and whether the key was present
	CacheGet(ctx context.Context, key string) ([]byte, bool, error)

	// CacheSet stores bytes that expire after ttl (zero means no expiry)
	CacheSet(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// CacheDelete removes a cache entry; absent keys are not an error
	CacheDelete(ctx context.Context, key string) error
}
