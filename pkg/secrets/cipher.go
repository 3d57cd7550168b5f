// Package secrets encrypts credential fields before they are stored.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const prefix = "enc:v1:"

var ErrNoKey = errors.New("value is encrypted but no secret key is configured")

// Box seals strings with AES-GCM under a key derived from a passphrase.
// A Box without a key stores values as given.
type Box struct {
	aead cipher.AEAD
}

func NewBox(secret string) (*Box, error) {
	if secret == "" {
		return &Box{}, nil
	}

	sum := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return &Box{aead: aead}, nil
}

func (b *Box) Enabled() bool {
	return b != nil && b.aead != nil
}

// Encrypt returns the sealed, text-safe form of plaintext. Empty values stay
// empty.
func (b *Box) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || !b.Enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values stored before encryption was enabled are
// returned unchanged.
func (b *Box) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, prefix) {
		return value, nil
	}
	if !b.Enabled() {
		return "", ErrNoKey
	}

	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	nonceSize := b.aead.NonceSize()
	if len(payload) < nonceSize {
		return "", io.ErrUnexpectedEOF
	}
	plain, err := b.aead.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt secret: %w", err)
	}

	return string(plain), nil
}
