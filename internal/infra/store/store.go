// Package store provides the keyed persistence layer shared by sessions,
// tokens and one-time auth state.
package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrKeyNotFound is returned when the requested key does not exist or has
// expired.
var ErrKeyNotFound = errors.New("key not found")

// Store is a keyed byte store with optional per-entry expiry.
type Store interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Take returns the value stored under key and removes it in the same
	// transaction, so concurrent callers observe at most one success.
	Take(ctx context.Context, key string) ([]byte, error)
	// Close releases backend resources.
	Close() error
}

// New creates a Store for the named backend. Backend specific settings are
// decoded from the settings map by each backend's constructor.
func New(backend string, settings map[string]any) (Store, error) {
	switch backend {
	case "badger":
		return newBadgerStore(settings)
	case "memory":
		return newMemoryStore(), nil
	default:
		return nil, errors.Newf("unknown store backend: %s", backend)
	}
}
