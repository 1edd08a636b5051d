package vault

import (
	"context"
	"errors"

	"github.com/split-wallet/split-wallet/internal/logger"
)

// Vault is the tiered secret store. Tiers are consulted in strict priority
// order; the first tier in the list is the preferred one.
type Vault struct {
	tiers []Backend
}

// New creates a vault over the given tiers, highest priority first.
func New(tiers ...Backend) *Vault {
	return &Vault{tiers: tiers}
}

// Store writes the secret to the highest-priority available tier. A
// successful preferred-tier write returns immediately and never also falls
// through to a lower tier. Store returns false only when every tier failed;
// total unavailability is reported, not escalated.
func (v *Vault) Store(ctx context.Context, ownerID, key string, secret []byte) bool {
	tag := logger.OwnerTag(ownerID)

	for i, tier := range v.tiers {
		if !tier.Available() {
			continue
		}
		if err := tier.Store(ctx, ownerID, key, secret); err != nil {
			logger.Warn(ctx, "vault tier store failed, cascading",
				"tier", tier.Name(), "owner", tag, "error", err)
			continue
		}
		if i > 0 {
			logger.Warn(ctx, "secret stored in fallback tier",
				"tier", tier.Name(), "owner", tag)
		}
		return true
	}

	logger.Error(ctx, "all vault tiers failed to store secret", "owner", tag)
	return false
}

// Retrieve returns the first hit walking tiers in priority order, or nil
// when the secret is absent everywhere. A present-but-corrupt record
// (decryption failure) is logged and treated as absent; callers cannot
// distinguish corruption from absence.
func (v *Vault) Retrieve(ctx context.Context, ownerID, key string) []byte {
	tag := logger.OwnerTag(ownerID)

	for i, tier := range v.tiers {
		if !tier.Available() {
			continue
		}
		secret, err := tier.Retrieve(ctx, ownerID, key)
		if err == nil {
			if i > 0 {
				logger.Warn(ctx, "secret retrieved from fallback tier",
					"tier", tier.Name(), "owner", tag)
			}
			return secret
		}
		if errors.Is(err, ErrNotFound) {
			continue
		}
		logger.Warn(ctx, "vault tier retrieve failed, treating as absent",
			"tier", tier.Name(), "owner", tag, "error", err)
	}

	return nil
}

// Remove deletes the record from every tier. It returns true when at least
// one tier acknowledged the removal.
func (v *Vault) Remove(ctx context.Context, ownerID, key string) bool {
	removed := false
	for _, tier := range v.tiers {
		if !tier.Available() {
			continue
		}
		if err := tier.Remove(ctx, ownerID, key); err != nil {
			logger.Warn(ctx, "vault tier remove failed",
				"tier", tier.Name(), "owner", logger.OwnerTag(ownerID), "error", err)
			continue
		}
		removed = true
	}
	return removed
}
