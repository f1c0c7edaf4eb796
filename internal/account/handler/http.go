// Package handler serves the caller's own account settings under /accounts/me and the
// admin invitation endpoint POST /accounts.
package handler

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"

	"consultancy-auth/backend/internal/account/domain"
	"consultancy-auth/backend/internal/account/service"
	devicedomain "consultancy-auth/backend/internal/device/domain"
	identitydomain "consultancy-auth/backend/internal/identity/domain"
	identityservice "consultancy-auth/backend/internal/identity/service"
	"consultancy-auth/backend/internal/platform/httpx"
	"consultancy-auth/backend/internal/server/middleware"
)

// Accounts is the part of service.AccountService served here.
type Accounts interface {
	CreateAccount(ctx context.Context, actor identitydomain.SessionContext, in service.CreateAccountInput) (*domain.Account, error)
	ListDevices(ctx context.Context, sc identitydomain.SessionContext) ([]devicedomain.DeviceView, error)
	RevokeDevice(ctx context.Context, sc identitydomain.SessionContext, deviceID string) error
	TwoFactorStatus(ctx context.Context, sc identitydomain.SessionContext) (*time.Time, error)
	ToggleTwoFactor(ctx context.Context, sc identitydomain.SessionContext, enable bool) (*time.Time, error)
}

type Handler struct {
	accounts Accounts
	issuer   *identityservice.TokenIssuer
	sudo     middleware.SudoChecker
}

func New(accounts Accounts, issuer *identityservice.TokenIssuer, sudo middleware.SudoChecker) *Handler {
	return &Handler{accounts: accounts, issuer: issuer, sudo: sudo}
}

// Register mounts the /accounts routes behind access token authentication.
func (h *Handler) Register(r fiber.Router) {
	requireSudo := middleware.RequireSudo(h.sudo)

	g := r.Group("/accounts", middleware.RequireAuth(h.issuer))
	g.Post("/", middleware.RequireRole(domain.RoleSuperAdmin, domain.RoleAdmin), h.CreateAccount)
	g.Get("/me/devices", h.ListDevices)
	g.Delete("/me/devices/:deviceId", requireSudo, h.RevokeDevice)
	g.Get("/me/2fa", h.TwoFactorStatus)
	g.Put("/me/2fa", requireSudo, h.ToggleTwoFactor)
}

type createAccountRequest struct {
	Email          string `json:"email"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Role           string `json:"role"`
	OrganizationID string `json:"organizationId"`
}

func (r createAccountRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.LastName, validation.Length(0, 100)),
		validation.Field(&r.Role, validation.Required, validation.In(
			string(domain.RoleSuperAdmin), string(domain.RoleAdmin), string(domain.RoleCounselor),
			string(domain.RoleBDE), string(domain.RoleUser),
		)),
		validation.Field(&r.OrganizationID, is.UUID),
	)
}

type toggleTwoFactorRequest struct {
	Enable *bool `json:"enable"`
}

func (r toggleTwoFactorRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Enable, validation.NotNil),
	)
}

type accountResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Role           string `json:"role"`
	OrganizationID string `json:"organizationId"`
	Verified       bool   `json:"verified"`
}

type deviceResponse struct {
	DeviceID   string    `json:"deviceId"`
	UserAgent  string    `json:"userAgent"`
	IsTrusted  bool      `json:"isTrusted"`
	SignedIn   bool      `json:"signedIn"`
	Current    bool      `json:"current"`
	FirstLogin time.Time `json:"firstLogin"`
	LastLogin  time.Time `json:"lastLogin"`
}

type twoFactorResponse struct {
	Enabled   bool       `json:"enabled"`
	EnabledAt *time.Time `json:"enabledAt"`
}

// CreateAccount handles POST /accounts.
func (h *Handler) CreateAccount(c *fiber.Ctx) error {
	var req createAccountRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	a, err := h.accounts.CreateAccount(c.UserContext(), middleware.Session(c), service.CreateAccountInput{
		Email:          req.Email,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Role:           domain.Role(req.Role),
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(accountResponse{
		ID:             a.ID,
		Email:          a.Email,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		Role:           string(a.Role),
		OrganizationID: a.OrganizationID,
		Verified:       a.IsVerified(),
	})
}

// ListDevices handles GET /accounts/me/devices.
func (h *Handler) ListDevices(c *fiber.Ctx) error {
	views, err := h.accounts.ListDevices(c.UserContext(), middleware.Session(c))
	if err != nil {
		return err
	}
	out := make([]deviceResponse, 0, len(views))
	for _, v := range views {
		out = append(out, deviceResponse{
			DeviceID:   v.DeviceID,
			UserAgent:  v.UserAgent,
			IsTrusted:  v.IsTrusted,
			SignedIn:   v.SignedIn,
			Current:    v.Current,
			FirstLogin: v.FirstLogin,
			LastLogin:  v.LastLogin,
		})
	}
	return c.JSON(fiber.Map{"devices": out})
}

// RevokeDevice handles DELETE /accounts/me/devices/:deviceId.
func (h *Handler) RevokeDevice(c *fiber.Ctx) error {
	if err := h.accounts.RevokeDevice(c.UserContext(), middleware.Session(c), c.Params("deviceId")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// TwoFactorStatus handles GET /accounts/me/2fa.
func (h *Handler) TwoFactorStatus(c *fiber.Ctx) error {
	at, err := h.accounts.TwoFactorStatus(c.UserContext(), middleware.Session(c))
	if err != nil {
		return err
	}
	return c.JSON(twoFactorResponse{Enabled: at != nil, EnabledAt: at})
}

// ToggleTwoFactor handles PUT /accounts/me/2fa with body {"enable": bool}.
func (h *Handler) ToggleTwoFactor(c *fiber.Ctx) error {
	var req toggleTwoFactorRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	at, err := h.accounts.ToggleTwoFactor(c.UserContext(), middleware.Session(c), *req.Enable)
	if err != nil {
		return err
	}
	return c.JSON(twoFactorResponse{Enabled: at != nil, EnabledAt: at})
}
