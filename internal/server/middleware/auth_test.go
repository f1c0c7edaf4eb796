package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountdomain "consultancy-auth/backend/internal/account/domain"
	identitydomain "consultancy-auth/backend/internal/identity/domain"
	identityservice "consultancy-auth/backend/internal/identity/service"
	"consultancy-auth/backend/internal/platform/errs"
	"consultancy-auth/backend/internal/security"
)

func newTestApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		switch errs.KindOf(err) {
		case errs.Unauthorized, errs.TokenExpired:
			status = fiber.StatusUnauthorized
		case errs.Forbidden, errs.StepUpRequired:
			status = fiber.StatusForbidden
		}
		return c.Status(status).SendString(string(errs.KindOf(err)))
	}})
	app.Use(WithSession())
	return app
}

func newTestIssuer() *identityservice.TokenIssuer {
	return identityservice.NewTokenIssuer(security.NewTestTokenCodec(), security.NewCookieSigner("test-cookie-secret"), false)
}

func issue(t *testing.T, issuer *identityservice.TokenIssuer, role accountdomain.Role) *identityservice.TokenPair {
	t.Helper()
	a := &accountdomain.Account{ID: "acc-1", Email: "asha@example.com", Role: role, OrganizationID: "org-1"}
	pair, err := issuer.Issue(context.Background(), a, identitydomain.SessionContext{DeviceID: "dev"})
	require.NoError(t, err)
	return pair
}

func TestWithSession_DeviceFingerprint(t *testing.T) {
	app := newTestApp()
	var got identitydomain.SessionContext
	app.Get("/", func(c *fiber.Ctx) error {
		got = Session(c)
		return nil
	})
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("User-Agent", "agent-a")
	_, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "agent-a", got.UserAgent)
	assert.Equal(t, security.DeviceID("agent-a", got.IP), got.DeviceID)
	assert.False(t, got.Authenticated())
}

func TestRequireAuth(t *testing.T) {
	issuer := newTestIssuer()
	pair := issue(t, issuer, accountdomain.RoleCounselor)
	app := newTestApp()
	var got identitydomain.SessionContext
	app.Get("/", RequireAuth(issuer), func(c *fiber.Ctx) error {
		got = Session(c)
		assert.NotNil(t, Claims(c))
		return nil
	})

	cookieReq := httptest.NewRequest("GET", "/", nil)
	cookieReq.AddCookie(&http.Cookie{Name: identityservice.CookieAccess, Value: pair.AccessToken})
	headerReq := httptest.NewRequest("GET", "/", nil)
	headerReq.Header.Set("Authorization", "bearer "+pair.AccessToken)

	for name, req := range map[string]*http.Request{"cookie": cookieReq, "header": headerReq} {
		got = identitydomain.SessionContext{}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, name)
		assert.Equal(t, "acc-1", got.AccountID, name)
		assert.Equal(t, "org-1", got.OrganizationID, name)
		assert.NotEmpty(t, got.DeviceID, name)
	}

	bad := httptest.NewRequest("GET", "/", nil)
	bad.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	resp, err := app.Test(bad)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireRefresh(t *testing.T) {
	issuer := newTestIssuer()
	pair := issue(t, issuer, accountdomain.RoleUser)
	app := newTestApp()
	app.Post("/", RequireRefresh(issuer), func(c *fiber.Ctx) error {
		token, accountID := RefreshToken(c)
		return c.SendString(accountID + "|" + token)
	})

	req := httptest.NewRequest("POST", "/", nil)
	req.AddCookie(&http.Cookie{Name: identityservice.CookieRefresh, Value: pair.Cookies[0].Value})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// The bare refresh JWT lacks the cookie signature.
	req = httptest.NewRequest("POST", "/", nil)
	req.AddCookie(&http.Cookie{Name: identityservice.CookieRefresh, Value: pair.RefreshToken})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

type sudoFunc func(raw string) (string, error)

func (f sudoFunc) Check(raw string) (string, error) { return f(raw) }

func TestRequireSudoAndRole(t *testing.T) {
	issuer := newTestIssuer()
	pair := issue(t, issuer, accountdomain.RoleCounselor)
	sudo := sudoFunc(func(raw string) (string, error) {
		if raw == "" {
			return "", identityservice.ErrSudoRequired
		}
		return raw, nil
	})
	app := newTestApp()
	app.Get("/sudo", RequireAuth(issuer), RequireSudo(sudo), func(c *fiber.Ctx) error { return nil })
	app.Get("/admin", RequireAuth(issuer), RequireRole(accountdomain.RoleAdmin, accountdomain.RoleSuperAdmin), func(c *fiber.Ctx) error { return nil })

	cases := []struct {
		path string
		sudo string
		want int
	}{
		{"/sudo", "", fiber.StatusForbidden},
		{"/sudo", "acc-2", fiber.StatusForbidden},
		{"/sudo", "acc-1", fiber.StatusOK},
		{"/admin", "", fiber.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", tc.path, nil)
		req.AddCookie(&http.Cookie{Name: identityservice.CookieAccess, Value: pair.AccessToken})
		if tc.sudo != "" {
			req.AddCookie(&http.Cookie{Name: identityservice.CookieSudo, Value: tc.sudo})
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tc.want, resp.StatusCode, "%s sudo=%q", tc.path, tc.sudo)
	}

	admin := issue(t, issuer, accountdomain.RoleAdmin)
	req := httptest.NewRequest("GET", "/admin", nil)
	req.AddCookie(&http.Cookie{Name: identityservice.CookieAccess, Value: admin.AccessToken})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestExtractBearer(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bear":         "",
		"":             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, extractBearer(in), in)
	}
}
