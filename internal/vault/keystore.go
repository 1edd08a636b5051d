package vault

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	keystoreTierName = "keystore"
	dataKeyFileName  = "keystore.key"
	recordNonceLen   = 12
)

// record is the on-disk shape of one encrypted secret. Ciphertext and IV are
// written together in a single atomic rename; a record missing either half
// fails validation and is treated as absent.
type record struct {
	Namespace  string `json:"namespace"`
	OwnerID    string `json:"owner_id"`
	Key        string `json:"key"`
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	BackendTag string `json:"backend_tag"`
}

func (r *record) valid() bool {
	return r.Ciphertext != "" && r.IV != ""
}

// wrappedDataKey is the persisted envelope around the data-encryption key.
type wrappedDataKey struct {
	Wrapped  string `json:"wrapped"`
	Provider string `json:"provider"`
}

// KeystoreBackend is the preferred tier: a hardware-backed (or KMS-backed)
// cipher provider protects a data-encryption key, and records are encrypted
// with AES-GCM under that key using a fresh random IV per write. The
// wrapping key never leaves the provider; the data key exists unwrapped only
// in process memory.
type KeystoreBackend struct {
	dir       string
	namespace string
	provider  CipherProvider
	dataKey   []byte
	aead      cipher.AEAD
}

// NewKeystoreBackend opens (or initializes) the keystore tier rooted at dir.
// The wrapped data key is loaded from disk and unwrapped through the cipher
// provider; on first use a fresh data key is generated and wrapped.
func NewKeystoreBackend(dir, namespace string, provider CipherProvider) (*KeystoreBackend, error) {
	if provider == nil {
		return nil, fmt.Errorf("cipher provider is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keystore dir: %w", err)
	}

	b := &KeystoreBackend{
		dir:       dir,
		namespace: namespace,
		provider:  provider,
	}

	if err := b.loadOrCreateDataKey(); err != nil {
		return nil, err
	}

	aead, err := newGCM(b.dataKey)
	if err != nil {
		return nil, err
	}
	b.aead = aead

	return b, nil
}

func (b *KeystoreBackend) loadOrCreateDataKey() error {
	keyPath := filepath.Join(b.dir, dataKeyFileName)

	raw, err := os.ReadFile(keyPath)
	if err == nil {
		var wdk wrappedDataKey
		if err := json.Unmarshal(raw, &wdk); err != nil {
			return fmt.Errorf("failed to parse wrapped data key: %w", err)
		}
		wrapped, err := base64.StdEncoding.DecodeString(wdk.Wrapped)
		if err != nil {
			return fmt.Errorf("failed to decode wrapped data key: %w", err)
		}
		dataKey, err := b.provider.Decrypt(context.Background(), wrapped)
		if err != nil {
			return fmt.Errorf("failed to unwrap data key: %w", err)
		}
		b.dataKey = dataKey
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read wrapped data key: %w", err)
	}

	dataKey := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, dataKey); err != nil {
		return fmt.Errorf("failed to generate data key: %w", err)
	}

	wrapped, err := b.provider.Encrypt(context.Background(), dataKey)
	if err != nil {
		return fmt.Errorf("failed to wrap data key: %w", err)
	}

	raw, err = json.Marshal(wrappedDataKey{
		Wrapped:  base64.StdEncoding.EncodeToString(wrapped),
		Provider: b.provider.Provider(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal wrapped data key: %w", err)
	}

	if err := atomicWrite(keyPath, raw); err != nil {
		return fmt.Errorf("failed to persist wrapped data key: %w", err)
	}

	b.dataKey = dataKey
	return nil
}

// Store encrypts the secret with a fresh random IV and writes the record
// atomically.
func (b *KeystoreBackend) Store(_ context.Context, ownerID, key string, secret []byte) error {
	iv := make([]byte, recordNonceLen)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return fmt.Errorf("failed to generate IV: %w", err)
	}

	ciphertext := b.aead.Seal(nil, iv, secret, b.aad(ownerID, key))

	rec := record{
		Namespace:  b.namespace,
		OwnerID:    ownerID,
		Key:        key,
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(iv),
		BackendTag: b.provider.Provider(),
	}

	raw, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := atomicWrite(b.recordPath(ownerID, key), raw); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Retrieve reads and decrypts a record. An invalid record (missing
// ciphertext or IV) is reported as ErrNotFound; a decryption failure is
// reported as a distinct error so the vault can log it before treating the
// record as absent.
func (b *KeystoreBackend) Retrieve(_ context.Context, ownerID, key string) ([]byte, error) {
	raw, err := os.ReadFile(b.recordPath(ownerID, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil || !rec.valid() {
		// Half-written or unparseable records are absent, not partially valid.
		return nil, ErrNotFound
	}

	ciphertext, err := base64.StdEncoding.DecodeString(rec.Ciphertext)
	if err != nil {
		return nil, ErrNotFound
	}
	iv, err := base64.StdEncoding.DecodeString(rec.IV)
	if err != nil || len(iv) != recordNonceLen {
		return nil, ErrNotFound
	}

	secret, err := b.aead.Open(nil, iv, ciphertext, b.aad(ownerID, key))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt record: %w", err)
	}

	return secret, nil
}

// Remove deletes the record file. A missing record is not an error.
func (b *KeystoreBackend) Remove(_ context.Context, ownerID, key string) error {
	err := os.Remove(b.recordPath(ownerID, key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove record: %w", err)
	}
	return nil
}

// Name identifies the tier in logs.
func (b *KeystoreBackend) Name() string {
	return keystoreTierName
}

// Available reports whether the data key was successfully unwrapped.
func (b *KeystoreBackend) Available() bool {
	return b.aead != nil
}

// aad binds each ciphertext to its namespace, owner and key so that records
// cannot be swapped between owners on disk.
func (b *KeystoreBackend) aad(ownerID, key string) []byte {
	return []byte(b.namespace + "\x00" + ownerID + "\x00" + key)
}

func (b *KeystoreBackend) recordPath(ownerID, key string) string {
	sum := sha256.Sum256([]byte(b.namespace + "\x00" + ownerID + "\x00" + key))
	return filepath.Join(b.dir, hex.EncodeToString(sum[:])+".json")
}

// atomicWrite writes data to a temp file and renames it into place so that a
// crash never leaves a half-written record.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

var _ Backend = (*KeystoreBackend)(nil)
