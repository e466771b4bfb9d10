// Package kv defines the key-value persistence port the ledger and the
// theme preference are stored in. Each key holds one opaque blob that is
// rewritten in full on every save.
package kv

import (
	"context"
	"errors"
)

// Well known keys.
const (
	LedgerKey = "transactions"
	ThemeKey  = "theme"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("key not found")

// Ports for persistence adapters.
type (
	Reader interface {
		// Get returns the blob stored under key or ErrNotFound.
		Get(ctx context.Context, key string) ([]byte, error)
	}

	Writer interface {
		// Put replaces the blob stored under key.
		Put(ctx context.Context, key string, value []byte) error
	}

	Store interface {
		Reader
		Writer
	}
)
