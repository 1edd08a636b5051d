package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	vaultapi "github.com/hashicorp/vault/api"
)

// CipherProvider wraps and unwraps the keystore's data-encryption key.
// The provider models the hardware-backed keystore: the wrapping key never
// leaves it, and all record encryption happens with a data key that only
// exists unwrapped in process memory.
type CipherProvider interface {
	// Encrypt wraps data under the provider's protected key.
	Encrypt(ctx context.Context, data []byte) ([]byte, error)

	// Decrypt unwraps data previously wrapped by Encrypt.
	Decrypt(ctx context.Context, wrapped []byte) ([]byte, error)

	// Provider returns the provider name (e.g., "local", "aws-kms", "vault")
	Provider() string
}

// CipherProviderType represents supported cipher providers
type CipherProviderType string

const (
	// CipherProviderLocal protects the data key with a local master key
	// (development and constrained runtimes without a reachable KMS)
	CipherProviderLocal CipherProviderType = "local"

	// CipherProviderAWSKMS wraps the data key with AWS KMS
	CipherProviderAWSKMS CipherProviderType = "aws-kms"

	// CipherProviderVault wraps the data key with HashiCorp Vault Transit
	CipherProviderVault CipherProviderType = "vault"
)

// CipherConfig contains configuration for cipher providers
type CipherConfig struct {
	Provider string

	// Local provider config: hex-encoded 32-byte master key
	LocalMasterKeyHex string

	// AWS KMS config
	AWSKMSKeyID  string
	AWSKMSRegion string

	// Vault config
	VaultAddress    string
	VaultToken      string
	VaultTransitKey string
}

// LocalCipherProvider protects the data key with AES-GCM under a local
// master key. It stands in for a hardware keystore on hosts without one.
type LocalCipherProvider struct {
	masterKey []byte
}

// NewLocalCipherProvider creates a local provider from a hex-encoded
// 32-byte master key.
func NewLocalCipherProvider(masterKeyHex string) (*LocalCipherProvider, error) {
	if masterKeyHex == "" {
		return nil, fmt.Errorf("master key is required for local cipher provider")
	}

	masterKey, err := hex.DecodeString(masterKeyHex)
	if err != nil || len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 hex-encoded bytes")
	}

	return &LocalCipherProvider{masterKey: masterKey}, nil
}

// Encrypt wraps data using AES-GCM with the local master key. The nonce is
// prepended to the wrapped blob.
func (p *LocalCipherProvider) Encrypt(_ context.Context, data []byte) ([]byte, error) {
	gcm, err := newGCM(p.masterKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

// Decrypt unwraps an AES-GCM blob produced by Encrypt.
func (p *LocalCipherProvider) Decrypt(_ context.Context, wrapped []byte) ([]byte, error) {
	gcm, err := newGCM(p.masterKey)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(wrapped) < nonceSize {
		return nil, fmt.Errorf("wrapped blob too short")
	}

	nonce, ciphertext := wrapped[:nonceSize], wrapped[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// Provider returns the provider name
func (p *LocalCipherProvider) Provider() string {
	return string(CipherProviderLocal)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// AWSKMSCipherProvider wraps the data key with AWS KMS
type AWSKMSCipherProvider struct {
	keyID  string
	client *kms.Client
}

// NewAWSKMSCipherProvider creates a new AWS KMS cipher provider
func NewAWSKMSCipherProvider(keyID, region string) (*AWSKMSCipherProvider, error) {
	if keyID == "" {
		return nil, fmt.Errorf("AWS KMS key ID is required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS region is required")
	}

	// Default credential chain: env vars, shared config, IAM role.
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSKMSCipherProvider{
		keyID:  keyID,
		client: kms.NewFromConfig(cfg),
	}, nil
}

// Encrypt wraps data using AWS KMS
func (p *AWSKMSCipherProvider) Encrypt(ctx context.Context, data []byte) ([]byte, error) {
	output, err := p.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(p.keyID),
		Plaintext: data,
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS encrypt failed: %w", err)
	}
	return output.CiphertextBlob, nil
}

// Decrypt unwraps data using AWS KMS
func (p *AWSKMSCipherProvider) Decrypt(ctx context.Context, wrapped []byte) ([]byte, error) {
	output, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          aws.String(p.keyID),
		CiphertextBlob: wrapped,
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS decrypt failed: %w", err)
	}
	return output.Plaintext, nil
}

// Provider returns the provider name
func (p *AWSKMSCipherProvider) Provider() string {
	return string(CipherProviderAWSKMS)
}

// VaultCipherProvider wraps the data key with HashiCorp Vault Transit
type VaultCipherProvider struct {
	transitKey string
	client     *vaultapi.Client
}

// NewVaultCipherProvider creates a new Vault Transit cipher provider
func NewVaultCipherProvider(address, token, transitKey string) (*VaultCipherProvider, error) {
	if address == "" {
		return nil, fmt.Errorf("Vault address is required")
	}
	if token == "" {
		return nil, fmt.Errorf("Vault token is required")
	}
	if transitKey == "" {
		return nil, fmt.Errorf("Vault transit key name is required")
	}

	vaultConfig := vaultapi.DefaultConfig()
	vaultConfig.Address = address

	client, err := vaultapi.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultCipherProvider{
		transitKey: transitKey,
		client:     client,
	}, nil
}

// Encrypt wraps data using the Vault Transit engine
func (p *VaultCipherProvider) Encrypt(ctx context.Context, data []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/encrypt/%s", p.transitKey)
	secret, err := p.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, fmt.Errorf("Vault Transit encrypt failed: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("Vault Transit encrypt returned empty response")
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("Vault Transit encrypt: ciphertext not found in response")
	}

	// The ciphertext is a vault:v1:... string
	return []byte(ciphertext), nil
}

// Decrypt unwraps data using the Vault Transit engine
func (p *VaultCipherProvider) Decrypt(ctx context.Context, wrapped []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/decrypt/%s", p.transitKey)
	secret, err := p.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": string(wrapped),
	})
	if err != nil {
		return nil, fmt.Errorf("Vault Transit decrypt failed: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("Vault Transit decrypt returned empty response")
	}

	plaintextB64, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("Vault Transit decrypt: plaintext not found in response")
	}

	plaintext, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("Vault Transit decrypt: failed to decode plaintext: %w", err)
	}

	return plaintext, nil
}

// Provider returns the provider name
func (p *VaultCipherProvider) Provider() string {
	return string(CipherProviderVault)
}

// NewCipherProvider creates a CipherProvider based on the configuration
func NewCipherProvider(cfg *CipherConfig) (CipherProvider, error) {
	switch CipherProviderType(cfg.Provider) {
	case CipherProviderLocal, "": // Default to local
		return NewLocalCipherProvider(cfg.LocalMasterKeyHex)

	case CipherProviderAWSKMS:
		return NewAWSKMSCipherProvider(cfg.AWSKMSKeyID, cfg.AWSKMSRegion)

	case CipherProviderVault:
		return NewVaultCipherProvider(cfg.VaultAddress, cfg.VaultToken, cfg.VaultTransitKey)

	default:
		return nil, fmt.Errorf("unsupported cipher provider: %s (supported: %s, %s, %s)",
			cfg.Provider, CipherProviderLocal, CipherProviderAWSKMS, CipherProviderVault)
	}
}

// Ensure providers implement CipherProvider
var (
	_ CipherProvider = (*LocalCipherProvider)(nil)
	_ CipherProvider = (*AWSKMSCipherProvider)(nil)
	_ CipherProvider = (*VaultCipherProvider)(nil)
)
