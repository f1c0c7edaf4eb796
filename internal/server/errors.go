package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"consultancy-auth/backend/internal/platform/errs"
)

var kindStatus = map[errs.Kind]int{
	errs.InvalidCredentials: fiber.StatusUnauthorized,
	errs.AccountUnverified:  fiber.StatusForbidden,
	errs.StepUpRequired:     fiber.StatusForbidden,
	errs.TokenExpired:       fiber.StatusUnauthorized,
	errs.TokenInvalid:       fiber.StatusBadRequest,
	errs.PasswordReused:     fiber.StatusForbidden,
	errs.DuplicateResource:  fiber.StatusConflict,
	errs.NotFound:           fiber.StatusNotFound,
	errs.Unauthorized:       fiber.StatusUnauthorized,
	errs.Forbidden:          fiber.StatusForbidden,
	errs.BadRequest:         fiber.StatusBadRequest,
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// StatusOf returns the HTTP status for err's kind. Unkinded errors are 500.
func StatusOf(err error) int {
	if s, ok := kindStatus[errs.KindOf(err)]; ok {
		return s
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler renders kinded errors as ErrorBody. Anything else is logged and hidden
// behind a generic 500, except fiber's own errors (unknown route, bad method) which keep
// their status.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		if e, ok := errs.As(err); ok {
			return c.Status(StatusOf(e)).JSON(ErrorBody{Error: string(e.Kind), Message: e.Message, Field: e.Field})
		}
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(ErrorBody{Error: "HTTP_" + statusSlug(fe.Code), Message: fe.Message})
		}
		logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorBody{
			Error:   string(errs.Internal),
			Message: "Internal server error",
		})
	}
}

func statusSlug(code int) string {
	switch code {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	}
	return "ERROR"
}
