package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// CookieSigner signs cookie values as "value.signature" where signature is the unpadded
// base64 HMAC-SHA256 of value.
type CookieSigner struct {
	secret []byte
}

// NewCookieSigner returns a CookieSigner keyed by secret.
func NewCookieSigner(secret string) *CookieSigner {
	return &CookieSigner{secret: []byte(secret)}
}

func (s *CookieSigner) mac(value string) string {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(value))
	return base64.RawStdEncoding.EncodeToString(m.Sum(nil))
}

// Sign returns value with its signature appended.
func (s *CookieSigner) Sign(value string) string {
	return value + "." + s.mac(value)
}

// Unsign returns the original value and true if signed carries a valid signature.
func (s *CookieSigner) Unsign(signed string) (string, bool) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 {
		return "", false
	}
	value, sig := signed[:i], signed[i+1:]
	if !hmac.Equal([]byte(sig), []byte(s.mac(value))) {
		return "", false
	}
	return value, true
}
