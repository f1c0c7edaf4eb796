package security

import "time"

// Test secrets for unit tests only. Do not use in production.
var testPurposeKeys = map[Purpose]PurposeKey{
	PurposeAccess:            {Secret: []byte("test-access-secret"), TTL: 15 * time.Minute},
	PurposeRefresh:           {Secret: []byte("test-refresh-secret"), TTL: 7 * 24 * time.Hour},
	PurposeEmailVerification: {Secret: []byte("test-email-verification-secret"), TTL: 30 * time.Minute},
	PurposeTwoFactor:         {Secret: []byte("test-twofactor-secret"), TTL: 5 * time.Minute},
	PurposePasswordReset:     {Secret: []byte("test-password-reset-secret"), TTL: 15 * time.Minute},
	PurposeSudo:              {Secret: []byte("test-sudo-secret"), TTL: 10 * time.Minute},
}

// TestEncryptionKey is a fixed 256-bit hex key for tests.
const TestEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// NewTestTokenCodec returns a TokenCodec with fixed per-purpose test secrets. For use in tests only.
func NewTestTokenCodec() *TokenCodec {
	keys := make(map[Purpose]PurposeKey, len(testPurposeKeys))
	for p, k := range testPurposeKeys {
		keys[p] = k
	}
	return NewTokenCodec("test-issuer", keys)
}

// NewTestSealer returns a Sealer over NewTestTokenCodec and a fixed-key Encryptor. For use in tests only.
func NewTestSealer() *Sealer {
	enc, err := NewEncryptor(TestEncryptionKey)
	if err != nil {
		panic(err)
	}
	return NewSealer(NewTestTokenCodec(), enc)
}
