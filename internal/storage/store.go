// Package storage provides abstractions for the local durable mirror, the
// client-side counterpart of browser local storage.
package storage

import "context"

// Keys used in the local durable mirror.
const (
	KeyToken     = "token"
	KeyCartItems = "cartItems"
)

// Store is a string key/value store.
// This abstraction allows swapping backends (SQLite, in-memory, etc.)
// without changing the cart reconciler.
type Store interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
