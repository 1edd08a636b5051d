package vault

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("missing master key degrades to the secure-item tier", func(t *testing.T) {
		keystoreDir, itemDir := t.TempDir()+"/ks", t.TempDir()

		v := Open(ctx, Options{
			KeystoreDir:   keystoreDir,
			SecureItemDir: itemDir,
			Namespace:     "wallet",
			Cipher:        &CipherConfig{Provider: "local"}, // no master key
		})
		require.NotNil(t, v)

		// Secrets still round trip through the fallback tier.
		assert.True(t, v.Store(ctx, "u1", "k", []byte("payload")))
		assert.Equal(t, []byte("payload"), v.Retrieve(ctx, "u1", "k"))

		// The keystore tier was never initialized.
		_, err := os.Stat(keystoreDir)
		assert.True(t, os.IsNotExist(err))

		entries, err := os.ReadDir(itemDir)
		require.NoError(t, err)
		assert.NotEmpty(t, entries)
	})

	t.Run("unknown provider degrades instead of failing", func(t *testing.T) {
		v := Open(ctx, Options{
			KeystoreDir:   t.TempDir(),
			SecureItemDir: t.TempDir(),
			Namespace:     "wallet",
			Cipher:        &CipherConfig{Provider: "hsm"},
		})
		require.NotNil(t, v)
		assert.True(t, v.Store(ctx, "u1", "k", []byte("payload")))
	})

	t.Run("configured keystore is the preferred tier", func(t *testing.T) {
		keystoreDir, itemDir := t.TempDir(), t.TempDir()

		v := Open(ctx, Options{
			KeystoreDir:   keystoreDir,
			SecureItemDir: itemDir,
			Namespace:     "wallet",
			Cipher: &CipherConfig{
				Provider:          "local",
				LocalMasterKeyHex: strings.Repeat("ab", 32),
			},
		})
		assert.True(t, v.Store(ctx, "u1", "k", []byte("payload")))
		assert.Equal(t, []byte("payload"), v.Retrieve(ctx, "u1", "k"))

		// The record landed next to the wrapped data key, not in the
		// secure-item tier.
		entries, err := os.ReadDir(keystoreDir)
		require.NoError(t, err)
		assert.Len(t, entries, 2)

		entries, err = os.ReadDir(itemDir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
