// Package kv defines the durable per-user document store used for
// notification suppression state, with memory and redis implementations.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no document is stored under the key.
var ErrNotFound = errors.New("kv: document not found")

// Store persists small opaque documents keyed by (user, key).
type Store interface {
	Get(ctx context.Context, userID, key string) ([]byte, error)
	Put(ctx context.Context, userID, key string, value []byte) error
}
