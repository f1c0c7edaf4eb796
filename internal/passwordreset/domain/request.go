package domain

import "time"

// Request is a password reset ticket. At most one exists per email; TokenHash is the
// sha256 of the encrypted reset token handed to the user.
type Request struct {
	Email     string
	TokenHash string
	CreatedAt time.Time
}
