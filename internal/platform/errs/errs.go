// Package errs defines the error kinds surfaced by the auth core. Handlers map a Kind to a
// transport status; services declare sentinel values built with New.
package errs

import "errors"

// Kind is a stable, caller-visible error category.
type Kind string

const (
	InvalidCredentials Kind = "INVALID_CREDENTIALS"
	AccountUnverified  Kind = "ACCOUNT_UNVERIFIED"
	StepUpRequired     Kind = "STEP_UP_REQUIRED"
	TokenExpired       Kind = "TOKEN_EXPIRED"
	TokenInvalid       Kind = "TOKEN_INVALID"
	PasswordReused     Kind = "PASSWORD_REUSED"
	DuplicateResource  Kind = "DUPLICATE_RESOURCE"
	NotFound           Kind = "NOT_FOUND"
	Unauthorized       Kind = "UNAUTHORIZED"
	Forbidden          Kind = "FORBIDDEN"
	BadRequest         Kind = "BAD_REQUEST"
	Internal           Kind = "INTERNAL"
)

// Error is a kinded error with a human message and an optional request field it refers to.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Err     error
}

// New returns an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithField returns an *Error of the given kind tagged with a request field.
func WithField(kind Kind, message, field string) *Error {
	return &Error{Kind: kind, Message: message, Field: field}
}

// Wrap returns an *Error of the given kind that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same kind and message. Two sentinels of
// the same kind but different messages are distinct.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// KindOf returns the Kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
