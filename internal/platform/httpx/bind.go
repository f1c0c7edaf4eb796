// Package httpx holds request helpers shared by the fiber handlers.
package httpx

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"

	"consultancy-auth/backend/internal/platform/errs"
)

// ErrMalformedBody is returned when the request body cannot be decoded.
var ErrMalformedBody = errs.New(errs.BadRequest, "Malformed request body")

// Bind decodes the JSON body into dst and validates it.
func Bind(c *fiber.Ctx, dst validation.Validatable) error {
	if err := c.BodyParser(dst); err != nil {
		return ErrMalformedBody
	}
	return Validate(dst)
}

// Validate runs v.Validate and converts the first failing field, in name order, into a
// BadRequest carrying that field.
func Validate(v validation.Validatable) error {
	err := v.Validate()
	if err == nil {
		return nil
	}
	var fields validation.Errors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return errs.Wrap(errs.BadRequest, "Invalid request", err)
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	first := names[0]
	return errs.WithField(errs.BadRequest, first+": "+fields[first].Error(), first)
}
