package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/split-wallet/split-wallet/internal/api"
	"github.com/split-wallet/split-wallet/internal/config"
	"github.com/split-wallet/split-wallet/internal/logger"
	"github.com/split-wallet/split-wallet/internal/metrics"
	"github.com/split-wallet/split-wallet/internal/network"
	"github.com/split-wallet/split-wallet/internal/signer"
	"github.com/split-wallet/split-wallet/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := context.Background()

	resolver := network.NewResolver(network.Options{
		BuildRelease:    cfg.IsRelease(),
		Override:        cfg.NetworkOverride,
		DevOverridePath: cfg.DevOverridePath,
		HeliusAPIKey:    cfg.HeliusAPIKey,
		QuickNodeAPIKey: cfg.QuickNodeAPIKey,
		QuickNodeHost:   cfg.QuickNodeHost,
	})
	slog.Info("resolved network", "network", resolver.Network(ctx))

	// The audit store is optional: without a DSN the signer runs without
	// persistence.
	var audit signer.AuditLog
	if cfg.PostgresDSN != "" {
		store, err := storage.New(ctx, cfg.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		audit = storage.NewSigningLogRepo(store.DB())
		slog.Info("connected to database")
	} else {
		slog.Warn("POSTGRES_DSN not set, signing outcomes will not be persisted")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	signingMetrics := metrics.NewSigning(registry)

	sponsor, err := signer.LoadSponsor(ctx, &signer.SponsorConfig{
		Source:       cfg.SponsorKeySource,
		KeyBase58:    cfg.SponsorKeyBase58,
		KeyFile:      cfg.SponsorKeyFile,
		VaultAddress: cfg.VaultAddress,
		VaultToken:   cfg.VaultToken,
		VaultKVPath:  cfg.SponsorKeyVaultPath,
		KMSRegion:    cfg.AWSKMSRegion,
		KMSKeyBlob:   cfg.SponsorKeyKMSBlob,
	})
	if err != nil {
		slog.Error("failed to load sponsor key", "error", err)
		os.Exit(1)
	}
	slog.Info("sponsor loaded", "address", sponsor.Address().String())

	signingService := signer.NewService(sponsor, resolver, audit, signingMetrics)
	if cfg.SubmitTimeout > 0 {
		signingService.SetSubmitTimeout(cfg.SubmitTimeout)
	}

	server := api.NewServer(cfg, signingService, registry)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		slog.Info("received shutdown signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("error during shutdown", "error", err)
			slog.Warn("forcing shutdown")
		}

		slog.Info("server stopped")
	}
}
