package security

import (
	"testing"
	"time"
)

func TestSealer_SealAndOpen(t *testing.T) {
	s := NewTestSealer()
	sealed, err := s.Seal(PurposePasswordReset, &EmailClaims{Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed.Hash != HashToken(sealed.Token) {
		t.Error("Hash must be the hash of the encrypted token")
	}

	var claims EmailClaims
	hash, err := s.Open(PurposePasswordReset, sealed.Token, &claims)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if hash != sealed.Hash {
		t.Error("Open should return the stored hash for the same token")
	}
	if claims.Email != "a@example.com" {
		t.Errorf("Email = %q", claims.Email)
	}
}

func TestSealer_OpenRawSignedTokenIsInvalid(t *testing.T) {
	s := NewTestSealer()
	signed, _, _ := s.Codec().Sign(PurposePasswordReset, &EmailClaims{Email: "a@example.com"})
	if _, err := s.Open(PurposePasswordReset, signed, &EmailClaims{}); err != ErrInvalidToken {
		t.Errorf("unencrypted token: want ErrInvalidToken, got %v", err)
	}
}

func TestSealer_OpenExpired(t *testing.T) {
	s := NewTestSealer()
	enc, _ := NewEncryptor(TestEncryptionKey)
	past := NewSealer(s.Codec().WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }), enc)
	sealed, err := past.Seal(PurposeEmailVerification, &EmailClaims{Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := s.Open(PurposeEmailVerification, sealed.Token, &EmailClaims{}); err != ErrTokenExpired {
		t.Errorf("want ErrTokenExpired, got %v", err)
	}
}
