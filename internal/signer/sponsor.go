package signer

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/gagliardetto/solana-go"
	vaultapi "github.com/hashicorp/vault/api"
)

// Sponsor holds the fee-sponsor keypair. The private key is loaded once at
// process start from a secrets source, lives only in server memory, and is
// never logged or written to any response. The public address is the single
// piece of sponsor data ever exposed to clients.
type Sponsor struct {
	key solana.PrivateKey
}

// SponsorConfig selects and parameterizes the secrets source.
type SponsorConfig struct {
	// Source: "env", "file", "vault" or "aws-kms"
	Source string

	// env source
	KeyBase58 string

	// file source
	KeyFile string

	// vault source
	VaultAddress string
	VaultToken   string
	VaultKVPath  string

	// aws-kms source: base64 KMS ciphertext of the base58 key
	KMSRegion  string
	KMSKeyBlob string
}

// LoadSponsor loads the sponsor keypair from the configured secrets source.
func LoadSponsor(ctx context.Context, cfg *SponsorConfig) (*Sponsor, error) {
	var base58Key string
	var err error

	switch cfg.Source {
	case "env", "":
		base58Key = cfg.KeyBase58
		if base58Key == "" {
			return nil, fmt.Errorf("SPONSOR_KEY_BASE58 is required for the env source")
		}

	case "file":
		base58Key, err = loadFromFile(cfg.KeyFile)

	case "vault":
		base58Key, err = loadFromVault(ctx, cfg)

	case "aws-kms":
		base58Key, err = loadFromKMS(ctx, cfg)

	default:
		return nil, fmt.Errorf("unsupported sponsor key source: %s", cfg.Source)
	}
	if err != nil {
		return nil, err
	}

	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(base58Key))
	if err != nil {
		return nil, fmt.Errorf("sponsor key is not a valid private key: %w", err)
	}

	return &Sponsor{key: key}, nil
}

// NewSponsorFromKey wraps an existing keypair. Used by tests.
func NewSponsorFromKey(key solana.PrivateKey) *Sponsor {
	return &Sponsor{key: key}
}

// Address returns the sponsor's public address.
func (s *Sponsor) Address() solana.PublicKey {
	return s.key.PublicKey()
}

// signMessage produces the sponsor's signature over serialized message
// bytes. Unexported: signing is only reachable through the service's state
// machine, after network validation.
func (s *Sponsor) signMessage(message []byte) (solana.Signature, error) {
	return s.key.Sign(message)
}

func loadFromFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("SPONSOR_KEY_FILE is required for the file source")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read sponsor key file: %w", err)
	}
	return string(raw), nil
}

func loadFromVault(ctx context.Context, cfg *SponsorConfig) (string, error) {
	if cfg.VaultAddress == "" || cfg.VaultToken == "" || cfg.VaultKVPath == "" {
		return "", fmt.Errorf("VAULT_ADDR, VAULT_TOKEN and SPONSOR_KEY_VAULT_PATH are required for the vault source")
	}

	vaultConfig := vaultapi.DefaultConfig()
	vaultConfig.Address = cfg.VaultAddress
	client, err := vaultapi.NewClient(vaultConfig)
	if err != nil {
		return "", fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(cfg.VaultToken)

	secret, err := client.Logical().ReadWithContext(ctx, cfg.VaultKVPath)
	if err != nil {
		return "", fmt.Errorf("failed to read sponsor key from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no sponsor key at Vault path %s", cfg.VaultKVPath)
	}

	data := secret.Data
	// KV v2 nests the payload under "data".
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}

	key, ok := data["key"].(string)
	if !ok || key == "" {
		return "", fmt.Errorf("Vault secret at %s has no 'key' field", cfg.VaultKVPath)
	}
	return key, nil
}

func loadFromKMS(ctx context.Context, cfg *SponsorConfig) (string, error) {
	if cfg.KMSRegion == "" || cfg.KMSKeyBlob == "" {
		return "", fmt.Errorf("AWS_KMS_REGION and SPONSOR_KEY_KMS_BLOB are required for the aws-kms source")
	}

	blob, err := base64.StdEncoding.DecodeString(cfg.KMSKeyBlob)
	if err != nil {
		return "", fmt.Errorf("failed to decode sponsor key blob: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.KMSRegion))
	if err != nil {
		return "", fmt.Errorf("failed to load AWS config: %w", err)
	}

	out, err := kms.NewFromConfig(awsCfg).Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: blob})
	if err != nil {
		return "", fmt.Errorf("AWS KMS decrypt of sponsor key failed: %w", err)
	}

	return string(out.Plaintext), nil
}
