// Package vault implements the credential vault (spec §4.1): AES-256-GCM
// encryption of IMAP app passwords at rest, keyed by a per-encryption
// scrypt-derived key, plus Microsoft Graph OAuth token rotation.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"

	"github.com/mailmirror/core/internal/mailerr"
)

const (
	saltSize = 16
	nonceSize = 12
	scryptN   = 1 << 15
	scryptR   = 8
	scryptP   = 1
	keyLen    = 32
)

// Vault encrypts and decrypts upstream IMAP app passwords. It never
// stores a usable credential in plaintext; callers must hold a
// decrypted password for the shortest possible duration (the scope of
// one sync call).
type Vault struct {
	masterSecret []byte
}

// New validates the master secret and returns a Vault. A master secret
// under 32 characters is a fatal ConfigError at startup.
func New(masterSecret string) (*Vault, error) {
	if len(masterSecret) < 32 {
		return nil, fmt.Errorf("%w: master secret must be at least 32 characters", mailerr.ErrConfig)
	}
	return &Vault{masterSecret: []byte(masterSecret)}, nil
}

// Encrypt returns "salt:iv:tag:ct", each segment base64-encoded, using
// a fresh salt and nonce per call so repeated encryption of the same
// plaintext never yields the same ciphertext.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key, err := scrypt.Key(v.masterSecret, salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return "", fmt.Errorf("deriving key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	tagStart := len(sealed) - gcm.Overhead()
	ct, tag := sealed[:tagStart], sealed[tagStart:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ct),
	}, ":"), nil
}

// Decrypt reverses Encrypt. A tampered ciphertext or wrong master
// secret yields mailerr.ErrCredentialTampered.
func (v *Vault) Decrypt(encoded string) (string, error) {
	parts := strings.Split(encoded, ":")
	if len(parts) != 4 {
		return "", fmt.Errorf("%w: malformed ciphertext", mailerr.ErrCredentialTampered)
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: %v", mailerr.ErrCredentialTampered, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: %v", mailerr.ErrCredentialTampered, err)
	}
	tag, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: %v", mailerr.ErrCredentialTampered, err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return "", fmt.Errorf("%w: %v", mailerr.ErrCredentialTampered, err)
	}

	key, err := scrypt.Key(v.masterSecret, salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return "", fmt.Errorf("deriving key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating gcm: %w", err)
	}

	sealed := append(ct, tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", mailerr.ErrCredentialTampered, err)
	}

	return string(plaintext), nil
}
