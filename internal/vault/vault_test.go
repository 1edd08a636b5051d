package vault

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMasterKeyHex() string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return hex.EncodeToString(key)
}

func newTestKeystore(t *testing.T) *KeystoreBackend {
	t.Helper()
	provider, err := NewLocalCipherProvider(testMasterKeyHex())
	require.NoError(t, err)
	backend, err := NewKeystoreBackend(t.TempDir(), "wallet", provider)
	require.NoError(t, err)
	return backend
}

func TestLocalCipherProvider(t *testing.T) {
	t.Run("rejects empty key", func(t *testing.T) {
		_, err := NewLocalCipherProvider("")
		assert.Error(t, err)
	})

	t.Run("rejects short key", func(t *testing.T) {
		_, err := NewLocalCipherProvider("abcd")
		assert.Error(t, err)
	})

	t.Run("round trips", func(t *testing.T) {
		provider, err := NewLocalCipherProvider(testMasterKeyHex())
		require.NoError(t, err)

		plaintext := []byte("secret key material")
		wrapped, err := provider.Encrypt(context.Background(), plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, wrapped)

		unwrapped, err := provider.Decrypt(context.Background(), wrapped)
		require.NoError(t, err)
		assert.Equal(t, plaintext, unwrapped)
	})

	t.Run("fresh nonce per wrap", func(t *testing.T) {
		provider, err := NewLocalCipherProvider(testMasterKeyHex())
		require.NoError(t, err)

		a, err := provider.Encrypt(context.Background(), []byte("same"))
		require.NoError(t, err)
		b, err := provider.Encrypt(context.Background(), []byte("same"))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestKeystoreBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips a secret", func(t *testing.T) {
		backend := newTestKeystore(t)

		secret := []byte{0xde, 0xad, 0xbe, 0xef}
		require.NoError(t, backend.Store(ctx, "user-1", "credential", secret))

		got, err := backend.Retrieve(ctx, "user-1", "credential")
		require.NoError(t, err)
		assert.Equal(t, secret, got)
	})

	t.Run("absent record returns ErrNotFound", func(t *testing.T) {
		backend := newTestKeystore(t)

		_, err := backend.Retrieve(ctx, "nobody", "credential")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		backend := newTestKeystore(t)

		require.NoError(t, backend.Store(ctx, "user-1", "credential", []byte("x")))
		require.NoError(t, backend.Remove(ctx, "user-1", "credential"))
		require.NoError(t, backend.Remove(ctx, "user-1", "credential"))

		_, err := backend.Retrieve(ctx, "user-1", "credential")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("record with missing IV is absent", func(t *testing.T) {
		backend := newTestKeystore(t)
		require.NoError(t, backend.Store(ctx, "user-1", "credential", []byte("x")))

		path := backend.recordPath("user-1", "credential")
		raw, err := os.ReadFile(path)
		require.NoError(t, err)

		var rec record
		require.NoError(t, json.Unmarshal(raw, &rec))
		rec.IV = ""
		raw, err = json.Marshal(&rec)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, raw, 0600))

		_, err = backend.Retrieve(ctx, "user-1", "credential")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("data key survives reopen", func(t *testing.T) {
		dir := t.TempDir()
		provider, err := NewLocalCipherProvider(testMasterKeyHex())
		require.NoError(t, err)

		first, err := NewKeystoreBackend(dir, "wallet", provider)
		require.NoError(t, err)
		require.NoError(t, first.Store(ctx, "user-1", "credential", []byte("persisted")))

		second, err := NewKeystoreBackend(dir, "wallet", provider)
		require.NoError(t, err)
		got, err := second.Retrieve(ctx, "user-1", "credential")
		require.NoError(t, err)
		assert.Equal(t, []byte("persisted"), got)
	})

	t.Run("record cannot be swapped between owners", func(t *testing.T) {
		backend := newTestKeystore(t)
		require.NoError(t, backend.Store(ctx, "user-1", "credential", []byte("mine")))

		// Copy user-1's record file into user-2's slot.
		src, err := os.ReadFile(backend.recordPath("user-1", "credential"))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(backend.recordPath("user-2", "credential"), src, 0600))

		// AAD mismatch makes it a decryption failure, not user-2's secret.
		_, err = backend.Retrieve(ctx, "user-2", "credential")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestSecureItemBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips", func(t *testing.T) {
		backend := NewSecureItemBackend(t.TempDir(), "wallet")
		require.True(t, backend.Available())

		require.NoError(t, backend.Store(ctx, "user-1", "credential", []byte("blob")))
		got, err := backend.Retrieve(ctx, "user-1", "credential")
		require.NoError(t, err)
		assert.Equal(t, []byte("blob"), got)
	})

	t.Run("absent item returns ErrNotFound", func(t *testing.T) {
		backend := NewSecureItemBackend(t.TempDir(), "wallet")
		_, err := backend.Retrieve(ctx, "user-1", "credential")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

// failingBackend simulates a tier whose writes and reads always fail.
type failingBackend struct{ name string }

func (f *failingBackend) Store(context.Context, string, string, []byte) error {
	return ErrUnavailable
}
func (f *failingBackend) Retrieve(context.Context, string, string) ([]byte, error) {
	return nil, ErrUnavailable
}
func (f *failingBackend) Remove(context.Context, string, string) error { return ErrUnavailable }
func (f *failingBackend) Name() string                                 { return f.name }
func (f *failingBackend) Available() bool                              { return true }

func TestVaultTierOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("preferred tier write does not fall through", func(t *testing.T) {
		keystore := newTestKeystore(t)
		secureDir := t.TempDir()
		secure := NewSecureItemBackend(secureDir, "wallet")
		v := New(keystore, secure)

		require.True(t, v.Store(ctx, "user-1", "credential", []byte("s")))

		// Tier 1 has it, tier 2 must not.
		_, err := keystore.Retrieve(ctx, "user-1", "credential")
		require.NoError(t, err)
		_, err = secure.Retrieve(ctx, "user-1", "credential")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("write cascades on preferred-tier failure", func(t *testing.T) {
		secure := NewSecureItemBackend(t.TempDir(), "wallet")
		v := New(&failingBackend{name: "keystore"}, secure)

		require.True(t, v.Store(ctx, "user-1", "credential", []byte("s")))
		got, err := secure.Retrieve(ctx, "user-1", "credential")
		require.NoError(t, err)
		assert.Equal(t, []byte("s"), got)
	})

	t.Run("retrieve walks tiers in order", func(t *testing.T) {
		keystore := newTestKeystore(t)
		secure := NewSecureItemBackend(t.TempDir(), "wallet")
		v := New(keystore, secure)

		// Only the fallback tier has the secret (simulates an app update
		// that wiped the keystore cache).
		require.NoError(t, secure.Store(ctx, "user-1", "credential", []byte("old")))

		assert.Equal(t, []byte("old"), v.Retrieve(ctx, "user-1", "credential"))
	})

	t.Run("corrupt record is absent, not fatal", func(t *testing.T) {
		keystore := newTestKeystore(t)
		v := New(keystore)

		require.NoError(t, keystore.Store(ctx, "user-1", "credential", []byte("s")))

		// Flip ciphertext bytes on disk.
		path := keystore.recordPath("user-1", "credential")
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		var rec record
		require.NoError(t, json.Unmarshal(raw, &rec))
		rec.Ciphertext = "AAAA" + rec.Ciphertext[4:]
		raw, err = json.Marshal(&rec)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, raw, 0600))

		assert.Nil(t, v.Retrieve(ctx, "user-1", "credential"))
	})

	t.Run("total unavailability returns false, not panic", func(t *testing.T) {
		v := New(&failingBackend{name: "a"}, &failingBackend{name: "b"})

		assert.False(t, v.Store(ctx, "user-1", "credential", []byte("s")))
		assert.Nil(t, v.Retrieve(ctx, "user-1", "credential"))
	})
}

func TestAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rec.json")

	require.NoError(t, atomicWrite(path, []byte("one")))
	require.NoError(t, atomicWrite(path, []byte("two")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
