package securestore

import (
	"context"
	"errors"
)

// ErrCorrupted is returned by Get when a stored value cannot be decrypted,
// e.g. after the device key changed.
var ErrCorrupted = errors.New("secure entry corrupted")

// Tx is the set of operations available inside Update.
type Tx interface {
	// Get returns (nil, nil) when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type Repository interface {
	Tx

	// SetMany writes all pairs or none.
	SetMany(ctx context.Context, values map[string][]byte) error
	// DeleteMany removes all keys or none.
	DeleteMany(ctx context.Context, keys ...string) error
	// Update runs fn in one transaction; a non-nil error rolls everything back.
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
