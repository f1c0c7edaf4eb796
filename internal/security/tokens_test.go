package security

import (
	"strings"
	"testing"
	"time"
)

func TestTokenCodec_SignAndVerify(t *testing.T) {
	c := NewTestTokenCodec()
	token, exp, err := c.Sign(PurposeEmailVerification, &EmailClaims{Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if token == "" {
		t.Fatal("token empty")
	}
	if exp.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}

	var claims EmailClaims
	if err := c.Verify(PurposeEmailVerification, token, &claims); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Email != "a@example.com" {
		t.Errorf("Email = %q", claims.Email)
	}
	if claims.ID == "" {
		t.Error("jti should be set")
	}
}

func TestTokenCodec_PurposeIsolation(t *testing.T) {
	c := NewTestTokenCodec()
	token, _, err := c.Sign(PurposeEmailVerification, &EmailClaims{Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := c.Verify(PurposeTwoFactor, token, &EmailClaims{}); err != ErrInvalidToken {
		t.Errorf("Verify under another purpose: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenCodec_Expired(t *testing.T) {
	c := NewTestTokenCodec()
	past := c.WithClock(func() time.Time { return time.Now().Add(-time.Hour) })
	token, _, err := past.Sign(PurposeTwoFactor, &EmailClaims{Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := c.Verify(PurposeTwoFactor, token, &EmailClaims{}); err != ErrTokenExpired {
		t.Errorf("want ErrTokenExpired, got %v", err)
	}
}

func TestTokenCodec_Tampered(t *testing.T) {
	c := NewTestTokenCodec()
	token, _, _ := c.Sign(PurposeRefresh, &AccountClaims{AccountID: "acc-1"})
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if err := c.Verify(PurposeRefresh, tampered, &AccountClaims{}); err != ErrInvalidToken {
		t.Errorf("want ErrInvalidToken, got %v", err)
	}
	if err := c.Verify(PurposeRefresh, "", &AccountClaims{}); err != ErrInvalidToken {
		t.Errorf("empty token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenCodec_UnknownPurpose(t *testing.T) {
	c := NewTokenCodec("iss", map[Purpose]PurposeKey{})
	if _, _, err := c.Sign(PurposeAccess, &AccessClaims{}); err != ErrUnknownPurpose {
		t.Errorf("Sign: want ErrUnknownPurpose, got %v", err)
	}
	if err := c.Verify(PurposeAccess, "x", &AccessClaims{}); err != ErrUnknownPurpose {
		t.Errorf("Verify: want ErrUnknownPurpose, got %v", err)
	}
}

func TestTokenCodec_AccessClaimsRoundTrip(t *testing.T) {
	c := NewTestTokenCodec()
	img := "https://cdn.example.com/a.png"
	in := &AccessClaims{
		AccountID: "acc-1", Email: "a@example.com", Role: "admin",
		OrganizationID: "org-1", OrganizationName: "Org", FirstName: "Ada", LastName: "L",
		ProfileImage: &img, DeviceID: "dev-1",
	}
	token, _, err := c.Sign(PurposeAccess, in)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	var out AccessClaims
	if err := c.Verify(PurposeAccess, token, &out); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.AccountID != "acc-1" || out.DeviceID != "dev-1" || out.ProfileImage == nil || *out.ProfileImage != img {
		t.Errorf("claims mismatch: %+v", out)
	}
	if c.TTL(PurposeAccess) != 15*time.Minute {
		t.Errorf("TTL = %v", c.TTL(PurposeAccess))
	}
}
