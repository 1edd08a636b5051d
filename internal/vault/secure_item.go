package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const secureItemTierName = "secure-item"

// SecureItemBackend is the last-resort tier: an opaque per-item store
// standing in for the platform secure-item API. The platform is trusted to
// protect items at rest, so this tier stores the secret as a single blob
// with restrictive permissions and no envelope of its own. Reaching this
// tier at all means the keystore tier was entirely unavailable, which the
// vault logs as a warning on every use.
type SecureItemBackend struct {
	dir       string
	namespace string
	available bool
}

// NewSecureItemBackend opens the secure-item tier rooted at dir.
func NewSecureItemBackend(dir, namespace string) *SecureItemBackend {
	available := true
	if err := os.MkdirAll(dir, 0700); err != nil {
		available = false
	}
	return &SecureItemBackend{dir: dir, namespace: namespace, available: available}
}

// Store writes the secret as a single opaque item.
func (b *SecureItemBackend) Store(_ context.Context, ownerID, key string, secret []byte) error {
	if !b.available {
		return ErrUnavailable
	}
	if err := atomicWrite(b.itemPath(ownerID, key), secret); err != nil {
		return fmt.Errorf("failed to write secure item: %w", err)
	}
	return nil
}

// Retrieve reads the item, or returns ErrNotFound.
func (b *SecureItemBackend) Retrieve(_ context.Context, ownerID, key string) ([]byte, error) {
	if !b.available {
		return nil, ErrUnavailable
	}
	secret, err := os.ReadFile(b.itemPath(ownerID, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read secure item: %w", err)
	}
	if len(secret) == 0 {
		return nil, ErrNotFound
	}
	return secret, nil
}

// Remove deletes the item. A missing item is not an error.
func (b *SecureItemBackend) Remove(_ context.Context, ownerID, key string) error {
	if !b.available {
		return ErrUnavailable
	}
	err := os.Remove(b.itemPath(ownerID, key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove secure item: %w", err)
	}
	return nil
}

// Name identifies the tier in logs.
func (b *SecureItemBackend) Name() string {
	return secureItemTierName
}

// Available reports whether the backing directory could be created.
func (b *SecureItemBackend) Available() bool {
	return b.available
}

func (b *SecureItemBackend) itemPath(ownerID, key string) string {
	sum := sha256.Sum256([]byte(b.namespace + "\x00" + ownerID + "\x00" + key))
	return filepath.Join(b.dir, hex.EncodeToString(sum[:])+".item")
}

var _ Backend = (*SecureItemBackend)(nil)
