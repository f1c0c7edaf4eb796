package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	accountdomain "consultancy-auth/backend/internal/account/domain"
	identityservice "consultancy-auth/backend/internal/identity/service"
	"consultancy-auth/backend/internal/platform/errs"
)

const bearerPrefix = "bearer "

var (
	ErrMissingAccessToken  = errs.New(errs.Unauthorized, "Missing access token")
	ErrMissingRefreshToken = errs.New(errs.Unauthorized, "Missing refresh token")
	ErrForbidden           = errs.New(errs.Forbidden, "Insufficient role")
)

// RequireAuth verifies the access token from the access cookie or the Authorization
// header and fills the identity part of the SessionContext.
func RequireAuth(issuer *identityservice.TokenIssuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies(identityservice.CookieAccess)
		if token == "" {
			token = extractBearer(c.Get(fiber.HeaderAuthorization))
		}
		if token == "" {
			return ErrMissingAccessToken
		}
		claims, err := issuer.VerifyAccess(token)
		if err != nil {
			return err
		}
		sc := Session(c)
		sc.AccountID = claims.AccountID
		sc.Email = claims.Email
		sc.Role = claims.Role
		sc.OrganizationID = claims.OrganizationID
		setSession(c, sc)
		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// RequireRefresh accepts only a correctly signed refresh cookie carrying a valid refresh
// token. Whether it is the device's current token is decided by the refresh flow.
func RequireRefresh(issuer *identityservice.TokenIssuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Cookies(identityservice.CookieRefresh)
		if raw == "" {
			return ErrMissingRefreshToken
		}
		token, accountID, err := issuer.VerifyRefreshCookie(raw)
		if err != nil {
			return err
		}
		c.Locals(refreshTokenKey, token)
		c.Locals(refreshOwnerKey, accountID)
		return c.Next()
	}
}

// SudoChecker verifies a raw sudo cookie and returns the account it was granted to.
type SudoChecker interface {
	Check(raw string) (string, error)
}

// RequireSudo admits requests carrying a sudo cookie granted to the authenticated account.
// Mount after RequireAuth.
func RequireSudo(sudo SudoChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accountID, err := sudo.Check(c.Cookies(identityservice.CookieSudo))
		if err != nil {
			return err
		}
		if accountID != Session(c).AccountID {
			return identityservice.ErrSudoRequired
		}
		return c.Next()
	}
}

// RequireRole admits authenticated callers whose role is one of roles.
func RequireRole(roles ...accountdomain.Role) fiber.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[string(r)] = true
	}
	return func(c *fiber.Ctx) error {
		if !allowed[Session(c).Role] {
			return ErrForbidden
		}
		return c.Next()
	}
}

// extractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func extractBearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
