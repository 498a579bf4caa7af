// Package document defines the persistence port of the ledger: whole
// documents addressed by a fixed key, read and replaced as a unit.
package document

import (
	"context"
	"errors"
)

// Keys of the two documents the ledger persists.
const (
	UsersKey    = "users"
	TaxonomyKey = "types"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("document store closed")

// Ports for storage backends.
type (
	// Store loads and replaces whole documents.
	Store interface {
		// Load returns the document stored under key, or nil if none exists yet.
		Load(ctx context.Context, key string) ([]byte, error)

		// Save replaces the document under key. Readers never observe a
		// partially written document.
		Save(ctx context.Context, key string, doc []byte) error

		// Update runs a load-mutate-save cycle while holding an exclusive
		// lock on key. fn receives the current document (nil if absent); if
		// it returns an error nothing is written and the error is returned.
		// Optimistic backends may call fn more than once, so fn must derive
		// everything it records from the document it is given. fn must not
		// call back into the store.
		Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error

		Close() error
	}

	// Watcher is implemented by stores that can report writes made by other
	// processes.
	Watcher interface {
		Watch(ctx context.Context, onChange func(key string)) error
	}
)
