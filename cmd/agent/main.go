// The agent binary exercises the device-side path end to end: it builds the
// tiered vault, ensures a wallet exists for the configured user and prints
// the address and balances.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/split-wallet/split-wallet/internal/config"
	"github.com/split-wallet/split-wallet/internal/logger"
	"github.com/split-wallet/split-wallet/internal/network"
	"github.com/split-wallet/split-wallet/internal/recovery"
	"github.com/split-wallet/split-wallet/internal/vault"
	"github.com/split-wallet/split-wallet/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if cfg.AgentUserID == "" {
		slog.Error("AGENT_USER_ID is required")
		os.Exit(1)
	}

	ctx := context.Background()

	secureVault := vault.Open(ctx, vault.Options{
		KeystoreDir:   cfg.VaultCacheDir,
		SecureItemDir: cfg.VaultSecureItemDir,
		Namespace:     "wallet",
		Cipher: &vault.CipherConfig{
			Provider:          cfg.KeystoreProvider,
			LocalMasterKeyHex: cfg.KeystoreMasterKey,
			AWSKMSKeyID:       cfg.AWSKMSKeyID,
			AWSKMSRegion:      cfg.AWSKMSRegion,
			VaultAddress:      cfg.VaultAddress,
			VaultToken:        cfg.VaultToken,
			VaultTransitKey:   cfg.VaultTransitKey,
		},
	})

	resolver := network.NewResolver(network.Options{
		BuildRelease:    cfg.IsRelease(),
		Override:        cfg.NetworkOverride,
		DevOverridePath: cfg.DevOverridePath,
		HeliusAPIKey:    cfg.HeliusAPIKey,
		QuickNodeAPIKey: cfg.QuickNodeAPIKey,
		QuickNodeHost:   cfg.QuickNodeHost,
	})

	walletService := wallet.NewService(
		recovery.NewService(secureVault),
		resolver,
		wallet.NewSponsorClient(cfg.BackendURL),
	)

	info, err := walletService.EnsureWallet(ctx, cfg.AgentUserID, cfg.AgentEmail)
	if err != nil {
		slog.Error("failed to ensure wallet", "error", err)
		os.Exit(1)
	}

	if info.Created {
		slog.Info("created new wallet", "owner", logger.OwnerTag(cfg.AgentUserID))
	} else {
		slog.Info("recovered existing wallet",
			"owner", logger.OwnerTag(cfg.AgentUserID), "via", info.RecoveredVia)
	}

	balance, err := walletService.GetBalance(ctx, info.Address)
	if err != nil {
		slog.Error("failed to fetch balances", "error", err)
		os.Exit(1)
	}

	fmt.Printf("network:  %s\n", resolver.Network(ctx))
	fmt.Printf("address:  %s\n", info.Address)
	fmt.Printf("sol:      %.9f\n", float64(balance.Lamports)/1e9)
	fmt.Printf("usdc:     %.6f\n", float64(balance.TokenMicro)/1e6)
}
