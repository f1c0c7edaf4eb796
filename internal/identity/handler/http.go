// Package handler exposes the auth flows over HTTP under /auth.
package handler

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"

	identitydomain "consultancy-auth/backend/internal/identity/domain"
	"consultancy-auth/backend/internal/identity/service"
	"consultancy-auth/backend/internal/platform/httpx"
	"consultancy-auth/backend/internal/server/middleware"
)

// Auth is the part of service.AuthService served here.
type Auth interface {
	Login(ctx context.Context, email, password string, sc identitydomain.SessionContext) (*service.LoginResult, error)
	Refresh(ctx context.Context, presented, accountID string, sc identitydomain.SessionContext) (*service.TokenPair, error)
	Logout(ctx context.Context, sc identitydomain.SessionContext) error
	VerifyEmail(ctx context.Context, code, token string, sc identitydomain.SessionContext) (string, error)
	VerifyEmailToken(ctx context.Context, token string) (string, error)
	ChangePassword(ctx context.Context, sc identitydomain.SessionContext, current, next string, logoutEverywhere bool) error
	ForgotPassword(ctx context.Context, email string) (string, error)
	VerifyResetToken(ctx context.Context, token string) (string, error)
	ResetPassword(ctx context.Context, token, password string, sc identitydomain.SessionContext) error
	UpdateEmail(ctx context.Context, sc identitydomain.SessionContext, newEmail, password string) error
}

// TwoFactor is the part of service.TwoFactorService served here.
type TwoFactor interface {
	Send(ctx context.Context, email string, sc identitydomain.SessionContext) (*service.TwoFactorChallenge, error)
	Verify(ctx context.Context, code, token string, sc identitydomain.SessionContext) (*service.LoginResult, error)
	Resend(ctx context.Context, token string, sc identitydomain.SessionContext) (*service.TwoFactorChallenge, error)
}

// Sudo is the part of service.SudoService served here.
type Sudo interface {
	Verify(ctx context.Context, sc identitydomain.SessionContext, password string) (*service.SudoGrant, error)
	Clear() service.CookieSpec
	Check(raw string) (string, error)
}

type Handler struct {
	auth   Auth
	twoFA  TwoFactor
	sudo   Sudo
	issuer *service.TokenIssuer
}

func New(auth Auth, twoFA TwoFactor, sudo Sudo, issuer *service.TokenIssuer) *Handler {
	return &Handler{auth: auth, twoFA: twoFA, sudo: sudo, issuer: issuer}
}

// Register mounts the /auth routes. The router must already run middleware.WithSession.
func (h *Handler) Register(r fiber.Router) {
	requireAuth := middleware.RequireAuth(h.issuer)
	requireSudo := middleware.RequireSudo(h.sudo)

	g := r.Group("/auth")
	g.Post("/login", h.Login)
	g.Post("/refresh", middleware.RequireRefresh(h.issuer), h.Refresh)
	g.Post("/logout", requireAuth, h.Logout)
	g.Post("/verify-email", h.VerifyEmail)
	g.Post("/verify-email-token", h.VerifyEmailToken)
	g.Post("/forgot-password", h.ForgotPassword)
	g.Post("/verify-reset-token", h.VerifyResetToken)
	g.Post("/reset-password", h.ResetPassword)
	g.Post("/change-password", requireAuth, requireSudo, h.ChangePassword)
	g.Patch("/email", requireAuth, requireSudo, h.UpdateEmail)
	g.Post("/2fa/send", h.SendTwoFactor)
	g.Post("/2fa/verify", h.VerifyTwoFactor)
	g.Post("/2fa/resend", h.ResendTwoFactor)
	g.Post("/sudo", requireAuth, h.SudoVerify)
	g.Delete("/sudo", requireAuth, h.SudoClear)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type codeRequest struct {
	Code  string `json:"code"`
	Token string `json:"token"`
}

func (r codeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required, validation.Length(6, 6), is.Digit),
		validation.Field(&r.Token, validation.Required),
	)
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (r tokenRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Token, validation.Required))
}

type emailRequest struct {
	Email string `json:"email"`
}

func (r emailRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Email, validation.Required, is.Email))
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type changePasswordRequest struct {
	CurrentPassword  string `json:"currentPassword"`
	NewPassword      string `json:"newPassword"`
	LogoutEverywhere bool   `json:"logoutEverywhere"`
}

func (r changePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
	)
}

type updateEmailRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r updateEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (r passwordRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Password, validation.Required))
}

// LoginResponse is the body of login and 2FA verify.
type LoginResponse struct {
	Status          string     `json:"status"`
	AccessToken     string     `json:"accessToken,omitempty"`
	AccessExpiresAt *time.Time `json:"accessExpiresAt,omitempty"`
	Requires2FA     bool       `json:"requires2FA,omitempty"`
	HasPasskey      bool       `json:"hasPasskey,omitempty"`
	Message         string     `json:"message,omitempty"`
}

const (
	statusAuthenticated    = "authenticated"
	statusRequires2FA      = "requires_2fa"
	statusVerificationSent = "verification_sent"
)

type challengeResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type emailResponse struct {
	Email string `json:"email"`
}

func setCookies(c *fiber.Ctx, specs ...service.CookieSpec) {
	for _, s := range specs {
		c.Cookie(&fiber.Cookie{
			Name:     s.Name,
			Value:    s.Value,
			Path:     s.Path,
			Expires:  s.Expires,
			HTTPOnly: s.HTTPOnly,
			Secure:   s.Secure,
			SameSite: s.SameSite,
		})
	}
}

func (h *Handler) writeLogin(c *fiber.Ctx, res *service.LoginResult) error {
	switch res.Kind {
	case service.LoginRequires2FA:
		return c.JSON(LoginResponse{Status: statusRequires2FA, Requires2FA: true, HasPasskey: res.HasPasskey})
	case service.LoginVerificationSent:
		return c.JSON(LoginResponse{Status: statusVerificationSent, Message: res.Message})
	}
	// A valid refresh cookie from an earlier session is dropped before the new pair is set.
	if raw := c.Cookies(service.CookieRefresh); raw != "" {
		if _, _, err := h.issuer.VerifyRefreshCookie(raw); err == nil {
			setCookies(c, h.issuer.Clear(service.CookieRefresh))
		}
	}
	setCookies(c, res.Tokens.Cookies...)
	exp := res.Tokens.AccessExpiresAt
	return c.JSON(LoginResponse{Status: statusAuthenticated, AccessToken: res.Tokens.AccessToken, AccessExpiresAt: &exp})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.auth.Login(c.UserContext(), req.Email, req.Password, middleware.Session(c))
	if err != nil {
		return err
	}
	return h.writeLogin(c, res)
}

// Refresh handles POST /auth/refresh. A rejected refresh clears the session cookies.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	token, accountID := middleware.RefreshToken(c)
	pair, err := h.auth.Refresh(c.UserContext(), token, accountID, middleware.Session(c))
	if err != nil {
		setCookies(c, h.issuer.ClearSession()...)
		return err
	}
	setCookies(c, pair.Cookies...)
	exp := pair.AccessExpiresAt
	return c.JSON(LoginResponse{Status: statusAuthenticated, AccessToken: pair.AccessToken, AccessExpiresAt: &exp})
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	if err := h.auth.Logout(c.UserContext(), middleware.Session(c)); err != nil {
		return err
	}
	setCookies(c, h.issuer.ClearSession()...)
	setCookies(c, h.sudo.Clear())
	return c.SendStatus(fiber.StatusNoContent)
}

// VerifyEmail handles POST /auth/verify-email.
func (h *Handler) VerifyEmail(c *fiber.Ctx) error {
	var req codeRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	msg, err := h.auth.VerifyEmail(c.UserContext(), req.Code, req.Token, middleware.Session(c))
	if err != nil {
		return err
	}
	return c.JSON(messageResponse{Message: msg})
}

// VerifyEmailToken handles POST /auth/verify-email-token.
func (h *Handler) VerifyEmailToken(c *fiber.Ctx) error {
	var req tokenRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	email, err := h.auth.VerifyEmailToken(c.UserContext(), req.Token)
	if err != nil {
		return err
	}
	return c.JSON(emailResponse{Email: email})
}

// ForgotPassword handles POST /auth/forgot-password.
func (h *Handler) ForgotPassword(c *fiber.Ctx) error {
	var req emailRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	msg, err := h.auth.ForgotPassword(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	return c.JSON(messageResponse{Message: msg})
}

// VerifyResetToken handles POST /auth/verify-reset-token.
func (h *Handler) VerifyResetToken(c *fiber.Ctx) error {
	var req tokenRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	email, err := h.auth.VerifyResetToken(c.UserContext(), req.Token)
	if err != nil {
		return err
	}
	return c.JSON(emailResponse{Email: email})
}

// ResetPassword handles POST /auth/reset-password.
func (h *Handler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	if err := h.auth.ResetPassword(c.UserContext(), req.Token, req.Password, middleware.Session(c)); err != nil {
		return err
	}
	return c.JSON(messageResponse{Message: "Password has been reset. Please log in with your new password."})
}

// ChangePassword handles POST /auth/change-password.
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	err := h.auth.ChangePassword(c.UserContext(), middleware.Session(c), req.CurrentPassword, req.NewPassword, req.LogoutEverywhere)
	if err != nil {
		return err
	}
	if req.LogoutEverywhere {
		setCookies(c, h.issuer.ClearSession()...)
		setCookies(c, h.sudo.Clear())
	}
	return c.JSON(messageResponse{Message: "Password changed"})
}

// UpdateEmail handles PATCH /auth/email. Every session ends, this one included.
func (h *Handler) UpdateEmail(c *fiber.Ctx) error {
	var req updateEmailRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	if err := h.auth.UpdateEmail(c.UserContext(), middleware.Session(c), req.Email, req.Password); err != nil {
		return err
	}
	setCookies(c, h.issuer.ClearSession()...)
	setCookies(c, h.sudo.Clear())
	return c.JSON(messageResponse{Message: "Email updated. Please log in again."})
}

// SendTwoFactor handles POST /auth/2fa/send.
func (h *Handler) SendTwoFactor(c *fiber.Ctx) error {
	var req emailRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	ch, err := h.twoFA.Send(c.UserContext(), req.Email, middleware.Session(c))
	if err != nil {
		return err
	}
	return c.JSON(challengeResponse{Token: ch.Token, ExpiresIn: ch.ExpiresInSeconds})
}

// VerifyTwoFactor handles POST /auth/2fa/verify.
func (h *Handler) VerifyTwoFactor(c *fiber.Ctx) error {
	var req codeRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.twoFA.Verify(c.UserContext(), req.Code, req.Token, middleware.Session(c))
	if err != nil {
		return err
	}
	return h.writeLogin(c, res)
}

// ResendTwoFactor handles POST /auth/2fa/resend.
func (h *Handler) ResendTwoFactor(c *fiber.Ctx) error {
	var req tokenRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	ch, err := h.twoFA.Resend(c.UserContext(), req.Token, middleware.Session(c))
	if err != nil {
		return err
	}
	return c.JSON(challengeResponse{Token: ch.Token, ExpiresIn: ch.ExpiresInSeconds})
}

// SudoVerify handles POST /auth/sudo.
func (h *Handler) SudoVerify(c *fiber.Ctx) error {
	var req passwordRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	grant, err := h.sudo.Verify(c.UserContext(), middleware.Session(c), req.Password)
	if err != nil {
		return err
	}
	if grant.Verified {
		setCookies(c, grant.Cookie)
	}
	return c.JSON(fiber.Map{"verified": grant.Verified})
}

// SudoClear handles DELETE /auth/sudo.
func (h *Handler) SudoClear(c *fiber.Ctx) error {
	setCookies(c, h.sudo.Clear())
	return c.SendStatus(fiber.StatusNoContent)
}
