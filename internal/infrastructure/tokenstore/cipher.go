package tokenstore

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrInvalidKey means the configured encryption key is not a 32-byte hex string
	ErrInvalidKey = errors.New("tokenstore: encryption key must be 64 hex characters")
	// ErrCiphertextTooShort means the stored blob is shorter than a nonce
	ErrCiphertextTooShort = errors.New("tokenstore: ciphertext too short")
)

// TokenCipher seals and opens token material with XChaCha20-Poly1305.
// Each Seal draws a fresh random nonce and prefixes it to the ciphertext,
// so identical plaintexts never produce identical blobs.
type TokenCipher struct {
	key []byte
}

// NewTokenCipher creates a cipher from a hex-encoded 32-byte key
func NewTokenCipher(hexKey string) (*TokenCipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	return &TokenCipher{key: key}, nil
}

// Seal encrypts a plaintext token for storage
func (c *TokenCipher) Seal(plaintext string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("tokenstore: %w", err)
	}
	return aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Open decrypts a stored token blob
func (c *TokenCipher) Open(blob []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("tokenstore: %w", err)
	}
	if len(blob) < aead.NonceSize() {
		return "", ErrCiphertextTooShort
	}

	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("tokenstore: failed to open ciphertext: %w", err)
	}
	return string(plaintext), nil
}
