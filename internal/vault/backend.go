// Package vault implements the tiered secure storage for wallet secrets.
//
// A Vault holds an ordered list of backends (tiers). Reads consult tiers in
// strict priority order and return the first hit; writes go to the first
// available tier and short-circuit on success. A present-but-corrupt record
// is treated as absent, never surfaced as a distinct error, so callers
// cannot distinguish ciphertext states.
package vault

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a backend when no record exists for the key.
var ErrNotFound = errors.New("vault: record not found")

// ErrUnavailable is returned by a backend that cannot serve requests at all
// (missing configuration, unreachable keystore). The vault skips unavailable
// tiers; it never escalates tier unavailability into a crash.
var ErrUnavailable = errors.New("vault: backend unavailable")

// Backend is one storage tier in the priority-ordered fallback chain.
// Implementations own their encryption; secret bytes cross this interface
// only in plaintext form and must never be logged.
type Backend interface {
	// Store persists the secret under (ownerID, key). Ciphertext and IV are
	// written atomically as a pair.
	Store(ctx context.Context, ownerID, key string, secret []byte) error

	// Retrieve returns the secret stored under (ownerID, key), or
	// ErrNotFound. Decryption failures are reported as errors distinct from
	// ErrNotFound so the vault can log them before mapping them to absence.
	Retrieve(ctx context.Context, ownerID, key string) ([]byte, error)

	// Remove deletes the record. Removing an absent record is not an error.
	Remove(ctx context.Context, ownerID, key string) error

	// Name identifies the tier in logs.
	Name() string

	// Available reports whether the tier can currently serve requests.
	Available() bool
}
