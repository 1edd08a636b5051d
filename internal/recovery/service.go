// Package recovery finds and re-establishes wallet secrets across identifier
// changes. The primary identifier (auth-provider user id) is not stable
// across reinstall/restore paths; a hashed, normalized email is a weaker but
// more durable correlation key. Routing recovery through both prevents
// unnecessary credential regeneration, which would orphan a funded address.
package recovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/split-wallet/split-wallet/internal/logger"
	apperrors "github.com/split-wallet/split-wallet/pkg/errors"
)

// credentialKey is the logical vault key under which the wallet credential
// is stored for every owner identifier.
const credentialKey = "wallet-credential"

// RecoveredVia tags which identifier produced a recovery hit.
const (
	ViaPrimary   = "primary"
	ViaSecondary = "secondary"
)

// SecretStore is the subset of the vault used by the recovery service.
type SecretStore interface {
	Store(ctx context.Context, ownerID, key string, secret []byte) bool
	Retrieve(ctx context.Context, ownerID, key string) []byte
	Remove(ctx context.Context, ownerID, key string) bool
}

// Result is a successful recovery outcome.
type Result struct {
	Credential   []byte
	RecoveredVia string
}

// Service orchestrates store/find/recover of wallet credentials.
type Service struct {
	store SecretStore
	group singleflight.Group
}

// NewService creates a recovery service over the given secret store.
func NewService(store SecretStore) *Service {
	return &Service{store: store}
}

// SecondaryID derives the stable secondary identifier from an email address:
// normalized (trimmed, lower-cased) and hashed, so the raw address is never
// used as a storage key.
func SecondaryID(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := sha256.Sum256([]byte(normalized))
	return "email:" + hex.EncodeToString(sum[:])
}

// StoreWallet writes the credential under the primary identifier and, when
// an email is available, a second copy under the email hash. The secondary
// write is best effort: the primary copy already satisfies durability for
// the common case, so its failure is logged and does not fail the store.
func (s *Service) StoreWallet(ctx context.Context, primaryID, email string, credential []byte) bool {
	if !s.store.Store(ctx, primaryID, credentialKey, credential) {
		return false
	}

	if email != "" {
		secondaryID := SecondaryID(email)
		if !s.store.Store(ctx, secondaryID, credentialKey, credential) {
			logger.Warn(ctx, "secondary credential copy failed",
				"owner", logger.OwnerTag(primaryID))
		}
	}

	return true
}

// RecoverWallet attempts recovery under the primary identifier first, then
// under the email hash. A secondary hit re-links the credential under the
// current primary identifier so the next recovery is a primary hit.
//
// Recovery for a given primary identifier is single-flight: concurrent calls
// coalesce onto one storage read sequence. Two racing calls that each
// decided "not found" would each trigger independent credential generation,
// so racing is never allowed.
func (s *Service) RecoverWallet(ctx context.Context, primaryID, email string) (*Result, error) {
	v, err, _ := s.group.Do(primaryID, func() (interface{}, error) {
		return s.recover(ctx, primaryID, email)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (s *Service) recover(ctx context.Context, primaryID, email string) (*Result, error) {
	if credential := s.store.Retrieve(ctx, primaryID, credentialKey); credential != nil {
		return &Result{Credential: credential, RecoveredVia: ViaPrimary}, nil
	}

	if email == "" {
		return nil, apperrors.ErrRecoveryNotFound
	}

	secondaryID := SecondaryID(email)
	credential := s.store.Retrieve(ctx, secondaryID, credentialKey)
	if credential == nil {
		return nil, apperrors.ErrRecoveryNotFound
	}

	// Self-healing re-link: restore the primary copy so the unstable
	// identifier resolves directly next time.
	if !s.store.Store(ctx, primaryID, credentialKey, credential) {
		logger.Warn(ctx, "credential re-link under primary identifier failed",
			"owner", logger.OwnerTag(primaryID))
	} else {
		logger.Info(ctx, "credential re-linked under primary identifier",
			"owner", logger.OwnerTag(primaryID))
	}

	return &Result{Credential: credential, RecoveredVia: ViaSecondary}, nil
}

// WipeWallet removes the credential under both identifiers. Only ever
// invoked for an explicit user-initiated wipe.
func (s *Service) WipeWallet(ctx context.Context, primaryID, email string) bool {
	removed := s.store.Remove(ctx, primaryID, credentialKey)
	if email != "" {
		if s.store.Remove(ctx, SecondaryID(email), credentialKey) {
			removed = true
		}
	}
	return removed
}
