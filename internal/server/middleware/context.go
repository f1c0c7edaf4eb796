// Package middleware builds the per-request SessionContext and guards routes that need an
// access token, a refresh cookie, a sudo cookie or an admin role.
package middleware

import (
	"github.com/gofiber/fiber/v2"

	identitydomain "consultancy-auth/backend/internal/identity/domain"
	"consultancy-auth/backend/internal/security"
)

type localKey struct{ name string }

var (
	sessionKey      = localKey{"session"}
	claimsKey       = localKey{"claims"}
	refreshTokenKey = localKey{"refresh_token"}
	refreshOwnerKey = localKey{"refresh_account_id"}
)

// Session returns the request's SessionContext. Routes mounted behind WithSession always have one.
func Session(c *fiber.Ctx) identitydomain.SessionContext {
	sc, _ := c.Locals(sessionKey).(identitydomain.SessionContext)
	return sc
}

func setSession(c *fiber.Ctx, sc identitydomain.SessionContext) {
	c.Locals(sessionKey, sc)
}

// Claims returns the verified access token claims, or nil on routes without RequireAuth.
func Claims(c *fiber.Ctx) *security.AccessClaims {
	claims, _ := c.Locals(claimsKey).(*security.AccessClaims)
	return claims
}

// RefreshToken returns the refresh token and account id accepted by RequireRefresh.
func RefreshToken(c *fiber.Ctx) (token, accountID string) {
	token, _ = c.Locals(refreshTokenKey).(string)
	accountID, _ = c.Locals(refreshOwnerKey).(string)
	return token, accountID
}

// WithSession derives the device fingerprint from the user agent and client address.
func WithSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ua := c.Get(fiber.HeaderUserAgent)
		ip := c.IP()
		setSession(c, identitydomain.SessionContext{
			DeviceID:  security.DeviceID(ua, ip),
			UserAgent: ua,
			IP:        ip,
		})
		return c.Next()
	}
}
