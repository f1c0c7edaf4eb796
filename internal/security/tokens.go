package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, tampered, or signed for another purpose.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a token is well-formed and correctly signed but past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrUnknownPurpose is returned when no key is configured for a purpose.
	ErrUnknownPurpose = errors.New("unknown token purpose")
)

// Purpose selects the secret and lifetime a token is signed with.
type Purpose string

const (
	PurposeAccess            Purpose = "access"
	PurposeRefresh           Purpose = "refresh"
	PurposeEmailVerification Purpose = "email-verification"
	PurposeTwoFactor         Purpose = "twofactor-verification"
	PurposePasswordReset     Purpose = "password-reset"
	PurposeSudo              Purpose = "sudo"
)

// PurposeKey is the HMAC secret and lifetime for one purpose.
type PurposeKey struct {
	Secret []byte
	TTL    time.Duration
}

// Claims is implemented by the claim types in this package. Sign fills the registered claims.
type Claims interface {
	jwt.Claims
	registered() *jwt.RegisteredClaims
}

// EmailClaims carries an email address; used for verification and reset tokens.
type EmailClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (c *EmailClaims) registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }

// AccountClaims carries an account id; used for refresh and sudo tokens.
type AccountClaims struct {
	AccountID string `json:"accountId"`
	jwt.RegisteredClaims
}

func (c *AccountClaims) registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }

// AccessClaims is the identity payload read by the client and by the permission layer.
type AccessClaims struct {
	AccountID        string  `json:"accountId"`
	Email            string  `json:"email"`
	Role             string  `json:"role"`
	OrganizationID   string  `json:"organizationId,omitempty"`
	OrganizationName string  `json:"organizationName,omitempty"`
	FirstName        string  `json:"firstName"`
	LastName         string  `json:"lastName"`
	ProfileImage     *string `json:"profileImage"`
	DeviceID         string  `json:"deviceId"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }

// TokenCodec issues and verifies HS256 JWTs with one secret and TTL per Purpose.
// The purpose is also written to the aud claim, so a token never verifies under another purpose.
type TokenCodec struct {
	issuer string
	keys   map[Purpose]PurposeKey
	now    func() time.Time
}

// NewTokenCodec returns a TokenCodec for the given issuer and purpose keys.
func NewTokenCodec(issuer string, keys map[Purpose]PurposeKey) *TokenCodec {
	return &TokenCodec{issuer: issuer, keys: keys, now: time.Now}
}

// WithClock returns a copy of c that reads the current time from now.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	cp := *c
	cp.now = now
	return &cp
}

// TTL returns the configured lifetime for p, or 0 if p is unknown.
func (c *TokenCodec) TTL(p Purpose) time.Duration {
	return c.keys[p].TTL
}

// Sign fills the registered claims (jti, iss, aud, iat, exp) and signs claims for purpose p.
// Returns the token and its expiry.
func (c *TokenCodec) Sign(p Purpose, claims Claims) (string, time.Time, error) {
	key, ok := c.keys[p]
	if !ok || len(key.Secret) == 0 {
		return "", time.Time{}, ErrUnknownPurpose
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := c.now().UTC()
	expiresAt := now.Add(key.TTL)
	rc := claims.registered()
	rc.ID = jti
	rc.Issuer = c.issuer
	rc.Audience = jwt.ClaimStrings{string(p)}
	rc.IssuedAt = jwt.NewNumericDate(now)
	rc.ExpiresAt = jwt.NewNumericDate(expiresAt)

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err := t.SignedString(key.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify parses token into claims and validates signature, exp, iss and aud for purpose p.
// Returns ErrTokenExpired for an expired token and ErrInvalidToken for anything else.
func (c *TokenCodec) Verify(p Purpose, token string, claims Claims) error {
	key, ok := c.keys[p]
	if !ok || len(key.Secret) == 0 {
		return ErrUnknownPurpose
	}
	if token == "" {
		return ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return key.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(string(p)),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrInvalidToken
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
