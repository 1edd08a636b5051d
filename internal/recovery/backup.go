package recovery

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// Password-protected credential backup. This is the manual, user-driven
// last-resort restore path: it sits outside the single-flight recovery guard
// because it is invoked explicitly with a password, never automatically for
// an identifier.

const (
	// scrypt parameters chosen to stay inside mobile per-app memory limits
	// (~256MB) while keeping brute force expensive. N=2^17 needs ~128MB.
	backupScryptN      = 1 << 17
	backupScryptR      = 8
	backupScryptP      = 1
	backupScryptKeyLen = 32
	backupSaltLen      = 32
	backupNonceLen     = 12

	backupVersion = 1
)

// ErrBackupPassword is returned when a backup cannot be opened with the
// supplied password (or the blob is corrupt; the two are indistinguishable).
var ErrBackupPassword = errors.New("recovery: invalid backup password or corrupt backup")

// backupBlob is the serialized backup format.
type backupBlob struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// ExportBackup encrypts the credential under a password-derived key and
// returns an opaque blob suitable for cloud storage. The password slice is
// not retained; callers should zero it after use.
func ExportBackup(credential, password []byte) ([]byte, error) {
	if len(password) == 0 {
		return nil, errors.New("recovery: backup password must not be empty")
	}

	salt := make([]byte, backupSaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, backupNonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := backupAEAD(password, salt)
	if err != nil {
		return nil, err
	}

	ciphertext := aead.Seal(nil, nonce, credential, nil)

	return json.Marshal(&backupBlob{
		Version:    backupVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	})
}

// ImportBackup decrypts a blob produced by ExportBackup.
func ImportBackup(blob, password []byte) ([]byte, error) {
	var b backupBlob
	if err := json.Unmarshal(blob, &b); err != nil {
		return nil, ErrBackupPassword
	}
	if b.Version != backupVersion {
		return nil, fmt.Errorf("recovery: unsupported backup version %d", b.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(b.Salt)
	if err != nil {
		return nil, ErrBackupPassword
	}
	nonce, err := base64.StdEncoding.DecodeString(b.Nonce)
	if err != nil || len(nonce) != backupNonceLen {
		return nil, ErrBackupPassword
	}
	ciphertext, err := base64.StdEncoding.DecodeString(b.Ciphertext)
	if err != nil {
		return nil, ErrBackupPassword
	}

	aead, err := backupAEAD(password, salt)
	if err != nil {
		return nil, err
	}

	credential, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrBackupPassword
	}
	return credential, nil
}

func backupAEAD(password, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(password, salt, backupScryptN, backupScryptR, backupScryptP, backupScryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
