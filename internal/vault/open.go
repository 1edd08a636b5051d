package vault

import (
	"context"

	"github.com/split-wallet/split-wallet/internal/logger"
)

// Options describe the tiers to open.
type Options struct {
	KeystoreDir   string
	SecureItemDir string
	Namespace     string
	Cipher        *CipherConfig
}

// Open builds the tiered vault for a device. A keystore tier that cannot be
// initialized (no master key on a constrained runtime, unreachable KMS) is
// logged and skipped, leaving the secure-item tier to carry the secrets;
// initialization never fails outright. Total unavailability surfaces later,
// per operation, as the false/nil results of Store and Retrieve.
func Open(ctx context.Context, opts Options) *Vault {
	var tiers []Backend

	provider, err := NewCipherProvider(opts.Cipher)
	if err != nil {
		logger.Warn(ctx, "keystore tier unavailable, falling back to secure-item tier",
			"error", err)
	} else {
		keystore, err := NewKeystoreBackend(opts.KeystoreDir, opts.Namespace, provider)
		if err != nil {
			logger.Warn(ctx, "keystore tier unavailable, falling back to secure-item tier",
				"provider", provider.Provider(), "error", err)
		} else {
			tiers = append(tiers, keystore)
		}
	}

	tiers = append(tiers, NewSecureItemBackend(opts.SecureItemDir, opts.Namespace))
	return New(tiers...)
}
