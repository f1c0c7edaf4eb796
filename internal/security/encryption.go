package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const nonceSize = 12

// Encryptor turns signed tokens into opaque bearer strings with AES-256-GCM.
// Output is base64url(nonce || ciphertext || tag) without padding.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor derives a 32-byte key from key: 64 hex characters are decoded as-is,
// any other non-empty string is hashed with SHA-256.
func NewEncryptor(key string) (*Encryptor, error) {
	if key == "" {
		return nil, errors.New("encryption key is empty")
	}
	raw, err := hex.DecodeString(key)
	if err != nil || len(raw) != 32 {
		sum := sha256.Sum256([]byte(key))
		raw = sum[:]
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, err
	}
	return &Encryptor{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Any decoding or authentication failure is ErrInvalidToken.
func (e *Encryptor) Decrypt(opaque string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(opaque)
	if err != nil || len(raw) < nonceSize+e.aead.Overhead() {
		return "", ErrInvalidToken
	}
	plain, err := e.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrInvalidToken
	}
	return string(plain), nil
}
