// Package notecipher protects free-text image notes at rest.
//
// The key is derived from the owner's identifier and a static application secret, so anyone holding
// both can read the notes. It keeps notes away from casual inspection of the database and nothing more.
package notecipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingSecret indicates the cipher was constructed without an application secret.
	ErrMissingSecret = errors.New("notecipher: secret required")
	// ErrMissingIdentifier indicates an empty owner identifier was supplied.
	ErrMissingIdentifier = errors.New("notecipher: identifier required")
	// ErrDecryptionFailed reports a ciphertext that could not be opened with the derived key.
	ErrDecryptionFailed = errors.New("failed to decrypt message - invalid key or corrupted data")
)

// Cipher encrypts and decrypts notes with a per-identifier key.
type Cipher struct {
	secret string
}

// New constructs a Cipher bound to the application secret.
func New(secret string) (*Cipher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	return &Cipher{secret: secret}, nil
}

func (c *Cipher) deriveKey(identifier string) ([]byte, error) {
	normalized := strings.ToLower(strings.TrimSpace(identifier))
	if normalized == "" {
		return nil, ErrMissingIdentifier
	}
	sum := sha256.Sum256([]byte(normalized + c.secret))
	return sum[:], nil
}

func (c *Cipher) aead(identifier string) (cipher.AEAD, error) {
	key, err := c.deriveKey(identifier)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext for identifier. Blank input yields an empty ciphertext.
func (c *Cipher) Encrypt(identifier, plaintext string) (string, error) {
	if strings.TrimSpace(plaintext) == "" {
		return "", nil
	}
	gcm, err := c.aead(identifier)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt for the same identifier.
// Blank input yields an empty plaintext.
func (c *Cipher) Decrypt(identifier, ciphertext string) (string, error) {
	trimmed := strings.TrimSpace(ciphertext)
	if trimmed == "" {
		return "", nil
	}
	gcm, err := c.aead(identifier)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil || len(raw) <= gcm.NonceSize() {
		return "", ErrDecryptionFailed
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil || len(plaintext) == 0 {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// CanDecrypt reports whether ciphertext opens to a non-empty note for identifier.
func (c *Cipher) CanDecrypt(identifier, ciphertext string) bool {
	plaintext, err := c.Decrypt(identifier, ciphertext)
	return err == nil && plaintext != ""
}

// Fingerprint returns the hex SHA-256 digest of data.
func Fingerprint(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
