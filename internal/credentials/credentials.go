// Package credentials stores and retrieves the per-user, per-provider LLM
// API keys the LLM Gateway forwards as X-Provider-API-Key (spec.md §4.3),
// encrypting each key at rest with AES-256-GCM before it ever reaches
// storage.
//
// Grounded on the original source's src/core/security.py
// (encrypt_api_key/decrypt_api_key, Fernet symmetric encryption) and
// src/db/models.py's ProviderKey table (provider_name + encrypted_key,
// unique on (user_id, provider_name)) — translated from Fernet (which
// bundles its own versioned token format) to the stdlib's crypto/cipher
// AES-GCM primitive, since no example repo imports a Fernet-equivalent
// library and AES-GCM is the standard Go idiom for authenticated symmetric
// encryption (see DESIGN.md).
package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no key is stored for (userID, provider).
var ErrNotFound = errors.New("credentials: no key stored for this provider")

// Cipher seals and opens provider API keys with a single 32-byte key,
// rotated independently of any single (user, provider) record.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 32-byte AES-256 key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("credentials: encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext, returning a base64 string safe for column
// storage: nonce prefixed to the ciphertext, matching Fernet's
// self-contained token shape without Fernet's own framing.
func (c *Cipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("credentials: generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a token produced by Seal.
func (c *Cipher) Open(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("credentials: decode token: %w", err)
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", errors.New("credentials: token too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("credentials: open token: %w", err)
	}
	return string(plaintext), nil
}

// Store persists and retrieves encrypted provider keys per user.
type Store interface {
	Put(ctx context.Context, userID, provider, apiKey string) error
	Get(ctx context.Context, userID, provider string) (string, error)
	Delete(ctx context.Context, userID, provider string) error
	ListProviders(ctx context.Context, userID string) ([]string, error)
}

// Lookup adapts a Store+Cipher pair into the llmgateway.CredentialLookup
// shape the Gateway expects.
func Lookup(store Store, cipher *Cipher) func(ctx context.Context, userID, provider string) (string, error) {
	return func(ctx context.Context, userID, provider string) (string, error) {
		token, err := store.Get(ctx, userID, provider)
		if err != nil {
			return "", err
		}
		return cipher.Open(token)
	}
}
