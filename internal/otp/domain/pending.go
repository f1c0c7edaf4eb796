package domain

import "time"

// Type discriminates what a pending verification is for.
type Type string

const (
	TypeEmailVerification Type = "email-verification"
	TypeTwoFactor         Type = "twofactor-verification"
)

// Valid reports whether t is a known verification type.
func (t Type) Valid() bool {
	return t == TypeEmailVerification || t == TypeTwoFactor
}

// Pending is a single-use verification ticket. At most one exists per (Email, Type).
// Its lifetime is bounded by the expiry of the signed token it was issued with.
type Pending struct {
	ID        string
	Email     string
	CodeHash  string
	TokenHash string
	Type      Type
	// DeviceID binds a two-factor ticket to the device that requested it; empty when unbound.
	DeviceID  string
	CreatedAt time.Time
}

// Issued is what Generate hands back to the caller for delivery.
type Issued struct {
	Code      string
	Token     string
	ExpiresAt time.Time
	ExpiresIn time.Duration
}
