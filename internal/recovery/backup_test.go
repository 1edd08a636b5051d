package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupRoundTrip(t *testing.T) {
	credential := []byte("mnemonic-derived key material")

	blob, err := ExportBackup(credential, []byte("correct horse battery"))
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "mnemonic")

	got, err := ImportBackup(blob, []byte("correct horse battery"))
	require.NoError(t, err)
	assert.Equal(t, credential, got)
}

func TestBackupWrongPassword(t *testing.T) {
	blob, err := ExportBackup([]byte("secret"), []byte("right"))
	require.NoError(t, err)

	_, err = ImportBackup(blob, []byte("wrong"))
	assert.ErrorIs(t, err, ErrBackupPassword)
}

func TestBackupRejectsEmptyPassword(t *testing.T) {
	_, err := ExportBackup([]byte("secret"), nil)
	assert.Error(t, err)
}

func TestBackupCorruptBlob(t *testing.T) {
	_, err := ImportBackup([]byte("not json"), []byte("pw"))
	assert.ErrorIs(t, err, ErrBackupPassword)
}
