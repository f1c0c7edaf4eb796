// Package handler exposes recorded dev OTP codes over HTTP. Only registered when dev OTP mode
// is enabled and not production.
package handler

import (
	"github.com/gofiber/fiber/v2"

	"consultancy-auth/backend/internal/devotp"
	otpdomain "consultancy-auth/backend/internal/otp/domain"
	"consultancy-auth/backend/internal/platform/errs"
)

const devOTPNote = "DEV MODE ONLY"

type Handler struct {
	store devotp.Store
}

func New(store devotp.Store) *Handler {
	return &Handler{store: store}
}

// Register mounts GET /dev/otp.
func (h *Handler) Register(r fiber.Router) {
	r.Get("/dev/otp", h.GetOTP)
}

// GetOTP returns the latest code for ?email=&type=.
func (h *Handler) GetOTP(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return errs.WithField(errs.BadRequest, "email is required", "email")
	}
	t := otpdomain.Type(c.Query("type", string(otpdomain.TypeTwoFactor)))
	if !t.Valid() {
		return errs.WithField(errs.BadRequest, "unknown verification type", "type")
	}
	code, ok := h.store.Get(c.UserContext(), email, t)
	if !ok {
		return errs.New(errs.NotFound, "OTP not found or expired")
	}
	return c.JSON(fiber.Map{"code": code, "note": devOTPNote})
}
