package wallet

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	bip39 "github.com/tyler-smith/go-bip39"
)

// Credential is the private key material and derived public address for one
// user. Exactly one credential is active per user at any time.
type Credential struct {
	PrivateKey solana.PrivateKey
	Mnemonic   string
}

// Address returns the public address. It is always recomputed from the
// private key, never read from storage.
func (c *Credential) Address() solana.PublicKey {
	return c.PrivateKey.PublicKey()
}

// Zero wipes the private key material from memory.
func (c *Credential) Zero() {
	for i := range c.PrivateKey {
		c.PrivateKey[i] = 0
	}
	c.Mnemonic = ""
}

// NewCredential generates a fresh mnemonic-derived keypair: 128-bit entropy,
// BIP-39 mnemonic, ed25519 key from the first 32 seed bytes.
func NewCredential() (*Credential, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return nil, fmt.Errorf("failed to generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("failed to generate mnemonic: %w", err)
	}
	return CredentialFromMnemonic(mnemonic)
}

// CredentialFromMnemonic derives the keypair for an existing mnemonic
// (rotate/reimport path).
func CredentialFromMnemonic(mnemonic string) (*Credential, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")
	key := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	return &Credential{
		PrivateKey: solana.PrivateKey(key),
		Mnemonic:   mnemonic,
	}, nil
}

// storedCredential is the serialized shape handed to the vault. The address
// field is a checksum, not a source of truth: decoding recomputes the
// address from the key and rejects any mismatch.
type storedCredential struct {
	PrivateKey string `json:"private_key"`
	Address    string `json:"address"`
	Mnemonic   string `json:"mnemonic,omitempty"`
}

// Encode serializes the credential for vault storage.
func (c *Credential) Encode() ([]byte, error) {
	if len(c.PrivateKey) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key length")
	}
	return json.Marshal(&storedCredential{
		PrivateKey: base64.StdEncoding.EncodeToString(c.PrivateKey),
		Address:    c.Address().String(),
		Mnemonic:   c.Mnemonic,
	})
}

// DecodeCredential deserializes a credential and verifies that the stored
// address matches the address recomputed from the key.
func DecodeCredential(raw []byte) (*Credential, error) {
	var sc storedCredential
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse credential: %w", err)
	}

	key, err := base64.StdEncoding.DecodeString(sc.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key length")
	}

	cred := &Credential{
		PrivateKey: solana.PrivateKey(key),
		Mnemonic:   sc.Mnemonic,
	}

	if cred.Address().String() != sc.Address {
		cred.Zero()
		return nil, errors.New("credential address mismatch")
	}

	return cred, nil
}
