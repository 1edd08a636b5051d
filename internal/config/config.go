// Package config loads process configuration from environment variables.
// Configuration is resolved once at startup and treated as immutable for the
// process lifetime; the only runtime-mutable piece is the dev-only network
// override file, which internal/network gates separately.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/split-wallet/split-wallet/internal/network"
)

// Config holds infrastructure-level configuration for both the backend
// co-signer (cmd/server) and the device agent (cmd/agent).
type Config struct {
	// Server
	Port             int  `envconfig:"PORT" default:"8080"`
	RateLimitRPS     int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst   int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	RateLimitEnabled bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`

	// Build type: "release" or "debug". Release builds always resolve the
	// production network regardless of any non-authoritative override.
	BuildType string `envconfig:"BUILD_TYPE" default:"release"`

	// Network selection
	NetworkOverride string `envconfig:"SOLANA_NETWORK"`
	// DevOverridePath points at the dev-only runtime override file. It is
	// only honored in debug builds.
	DevOverridePath string `envconfig:"DEV_NETWORK_OVERRIDE_PATH"`

	// Paid RPC providers. Endpoints for providers with a key present are
	// prepended to the public endpoint list, highest trust first.
	HeliusAPIKey    string `envconfig:"HELIUS_API_KEY"`
	QuickNodeAPIKey string `envconfig:"QUICKNODE_API_KEY"`
	QuickNodeHost   string `envconfig:"QUICKNODE_HOST"`

	// Vault (device-side secret storage)
	VaultCacheDir      string `envconfig:"VAULT_CACHE_DIR" default:"/var/lib/split-wallet/keystore"`
	VaultSecureItemDir string `envconfig:"VAULT_SECURE_ITEM_DIR" default:"/var/lib/split-wallet/secure-items"`

	// Keystore cipher provider: "local", "aws-kms" or "vault"
	KeystoreProvider  string `envconfig:"KEYSTORE_PROVIDER" default:"local"`
	KeystoreMasterKey string `envconfig:"KEYSTORE_MASTER_KEY"`
	AWSKMSKeyID       string `envconfig:"AWS_KMS_KEY_ID"`
	AWSKMSRegion      string `envconfig:"AWS_KMS_REGION"`
	VaultAddress      string `envconfig:"VAULT_ADDR"`
	VaultToken        string `envconfig:"VAULT_TOKEN"`
	VaultTransitKey   string `envconfig:"VAULT_TRANSIT_KEY"`

	// Fee sponsor key source: "env", "file", "vault" or "aws-kms"
	SponsorKeySource    string `envconfig:"SPONSOR_KEY_SOURCE" default:"env"`
	SponsorKeyBase58    string `envconfig:"SPONSOR_KEY_BASE58"`
	SponsorKeyFile      string `envconfig:"SPONSOR_KEY_FILE"`
	SponsorKeyVaultPath string `envconfig:"SPONSOR_KEY_VAULT_PATH"`
	SponsorKeyKMSBlob   string `envconfig:"SPONSOR_KEY_KMS_BLOB"`

	// Submission timeout budget. Zero means "use the per-network default"
	// (mainnet is given a longer budget than dev networks because mainnet
	// RPC indexing and cold starts are measurably slower).
	SubmitTimeout time.Duration `envconfig:"SUBMIT_TIMEOUT"`

	// Audit log database. Optional: an empty DSN disables signing-request
	// audit records, it does not disable signing.
	PostgresDSN string `envconfig:"POSTGRES_DSN"`

	// Device agent identity
	AgentUserID string `envconfig:"AGENT_USER_ID"`
	AgentEmail  string `envconfig:"AGENT_EMAIL"`
	BackendURL  string `envconfig:"BACKEND_URL" default:"http://localhost:8080"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BuildType != "release" && c.BuildType != "debug" {
		return fmt.Errorf("BUILD_TYPE must be 'release' or 'debug', got: %s", c.BuildType)
	}

	// The explicit override is authoritative; a typo must stop the process,
	// not silently fall through to the build-type default.
	if c.NetworkOverride != "" {
		if _, err := network.Canonicalize(c.NetworkOverride); err != nil {
			return fmt.Errorf("SOLANA_NETWORK is invalid: %w", err)
		}
	}

	switch c.KeystoreProvider {
	case "local":
		// Master key may be empty at load time; the vault treats an
		// unconfigured tier as unavailable rather than failing startup.
	case "aws-kms":
		if c.AWSKMSKeyID == "" || c.AWSKMSRegion == "" {
			return fmt.Errorf("AWS_KMS_KEY_ID and AWS_KMS_REGION are required when KEYSTORE_PROVIDER is 'aws-kms'")
		}
	case "vault":
		if c.VaultAddress == "" || c.VaultToken == "" || c.VaultTransitKey == "" {
			return fmt.Errorf("VAULT_ADDR, VAULT_TOKEN and VAULT_TRANSIT_KEY are required when KEYSTORE_PROVIDER is 'vault'")
		}
	default:
		return fmt.Errorf("KEYSTORE_PROVIDER must be 'local', 'aws-kms' or 'vault', got: %s", c.KeystoreProvider)
	}

	switch c.SponsorKeySource {
	case "env", "file", "vault", "aws-kms":
	default:
		return fmt.Errorf("SPONSOR_KEY_SOURCE must be 'env', 'file', 'vault' or 'aws-kms', got: %s", c.SponsorKeySource)
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit values must be positive")
	}

	return nil
}

// IsRelease reports whether this process runs as a release build.
func (c *Config) IsRelease() bool {
	return c.BuildType == "release"
}
