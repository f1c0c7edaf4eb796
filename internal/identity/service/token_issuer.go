package service

import (
	"context"
	"errors"
	"time"

	accountdomain "consultancy-auth/backend/internal/account/domain"
	identitydomain "consultancy-auth/backend/internal/identity/domain"
	"consultancy-auth/backend/internal/platform/errs"
	"consultancy-auth/backend/internal/security"
)

// Cookie names set on the client.
const (
	CookieRefresh = "refresh_token"
	CookieAccess  = "access_token"
	CookieSudo    = "sudo_access_token"
)

// SameSite values for CookieSpec.
const (
	SameSiteLax  = "Lax"
	SameSiteNone = "None"
)

var (
	ErrInvalidRefreshToken = errs.New(errs.Unauthorized, "Invalid refresh token")
	ErrRefreshTokenExpired = errs.New(errs.TokenExpired, "Refresh token has expired, please log in again")
	ErrInvalidAccessToken  = errs.New(errs.Unauthorized, "Invalid access token")
	ErrAccessTokenExpired  = errs.New(errs.TokenExpired, "Access token has expired")
	ErrSudoRequired        = errs.New(errs.StepUpRequired, "Password confirmation required")
)

// CookieSpec describes a cookie for the transport layer to set or clear.
type CookieSpec struct {
	Name     string
	Value    string
	Path     string
	Expires  time.Time
	HTTPOnly bool
	Secure   bool
	SameSite string
}

// Clearing reports whether c deletes the cookie instead of setting it.
func (c CookieSpec) Clearing() bool { return c.Value == "" }

// TokenPair is a freshly issued access and refresh token with their cookies.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Cookies          []CookieSpec
}

// TokenIssuer signs session tokens and describes the cookies that carry them.
type TokenIssuer struct {
	codec   *security.TokenCodec
	cookies *security.CookieSigner
	secure  bool
}

// NewTokenIssuer returns a TokenIssuer. production turns on Secure and SameSite=None.
func NewTokenIssuer(codec *security.TokenCodec, cookies *security.CookieSigner, production bool) *TokenIssuer {
	return &TokenIssuer{codec: codec, cookies: cookies, secure: production}
}

func (t *TokenIssuer) cookie(name, value string, expires time.Time) CookieSpec {
	sameSite := SameSiteLax
	if t.secure {
		sameSite = SameSiteNone
	}
	return CookieSpec{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   t.secure,
		SameSite: sameSite,
	}
}

// Issue signs an access token carrying the account identity and a refresh token carrying
// only the account id.
func (t *TokenIssuer) Issue(_ context.Context, a *accountdomain.Account, sc identitydomain.SessionContext) (*TokenPair, error) {
	access, accessExp, err := t.codec.Sign(security.PurposeAccess, &security.AccessClaims{
		AccountID:        a.ID,
		Email:            a.Email,
		Role:             string(a.Role),
		OrganizationID:   a.OrganizationID,
		OrganizationName: a.OrganizationName,
		FirstName:        a.FirstName,
		LastName:         a.LastName,
		ProfileImage:     a.ProfileImage,
		DeviceID:         sc.DeviceID,
	})
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := t.codec.Sign(security.PurposeRefresh, &security.AccountClaims{AccountID: a.ID})
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		Cookies: []CookieSpec{
			t.cookie(CookieRefresh, t.cookies.Sign(refresh), refreshExp),
			t.cookie(CookieAccess, access, accessExp),
		},
	}, nil
}

// SudoCookie signs a sudo token for accountID and wraps it in a signed cookie.
func (t *TokenIssuer) SudoCookie(accountID string) (CookieSpec, error) {
	token, exp, err := t.codec.Sign(security.PurposeSudo, &security.AccountClaims{AccountID: accountID})
	if err != nil {
		return CookieSpec{}, err
	}
	return t.cookie(CookieSudo, t.cookies.Sign(token), exp), nil
}

// Clear returns a spec that removes the named cookie.
func (t *TokenIssuer) Clear(name string) CookieSpec {
	return t.cookie(name, "", time.Unix(0, 0))
}

// ClearSession returns specs removing both session cookies.
func (t *TokenIssuer) ClearSession() []CookieSpec {
	return []CookieSpec{t.Clear(CookieRefresh), t.Clear(CookieAccess)}
}

// VerifyAccess verifies an access token.
func (t *TokenIssuer) VerifyAccess(token string) (*security.AccessClaims, error) {
	var claims security.AccessClaims
	if err := t.codec.Verify(security.PurposeAccess, token, &claims); err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, ErrInvalidAccessToken
	}
	return &claims, nil
}

// VerifyRefreshCookie unsigns the refresh cookie and verifies the refresh token inside.
// Returns the raw refresh token and the account id it was issued to.
func (t *TokenIssuer) VerifyRefreshCookie(raw string) (token, accountID string, err error) {
	token, ok := t.cookies.Unsign(raw)
	if !ok {
		return "", "", ErrInvalidRefreshToken
	}
	var claims security.AccountClaims
	if err := t.codec.Verify(security.PurposeRefresh, token, &claims); err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return "", "", ErrRefreshTokenExpired
		}
		return "", "", ErrInvalidRefreshToken
	}
	return token, claims.AccountID, nil
}

// VerifySudoCookie unsigns and verifies a sudo cookie, returning the account id it grants.
func (t *TokenIssuer) VerifySudoCookie(raw string) (string, error) {
	token, ok := t.cookies.Unsign(raw)
	if !ok {
		return "", ErrSudoRequired
	}
	var claims security.AccountClaims
	if err := t.codec.Verify(security.PurposeSudo, token, &claims); err != nil {
		return "", ErrSudoRequired
	}
	return claims.AccountID, nil
}
