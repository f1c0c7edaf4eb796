package domain

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"consultancy-auth/backend/internal/security"
)

// Account is the identity root: one per unique email.
type Account struct {
	ID    string
	Email string
	// PasswordHash starts as the hash of a generated placeholder the owner never sees;
	// email verification replaces it with a fresh generated password mailed to them.
	PasswordHash string
	Role         Role
	FirstName    string
	LastName     string
	ProfileImage *string

	OrganizationID   string
	OrganizationName string

	VerifiedAt     *time.Time
	TwoFaEnabledAt *time.Time
	// PrevPasswords holds previous password hashes, most recent last. The live password is always the last entry.
	PrevPasswords     []string
	PasswordUpdatedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleCounselor  Role = "counselor"
	RoleBDE        Role = "bde"
	RoleUser       Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleCounselor, RoleBDE, RoleUser:
		return true
	}
	return false
}

// IsAdmin reports whether r may manage other accounts.
func (r Role) IsAdmin() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// IsVerified reports whether the email address was confirmed.
func (a *Account) IsVerified() bool { return a != nil && a.VerifiedAt != nil }

// TwoFactorEnabled reports whether 2FA is switched on.
func (a *Account) TwoFactorEnabled() bool { return a != nil && a.TwoFaEnabledAt != nil }

// FullName joins first and last name.
func (a *Account) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// UsedPassword reports whether matches accepts any hash in the password history.
func (a *Account) UsedPassword(matches func(hash string) bool) bool {
	for _, h := range a.PrevPasswords {
		if matches(h) {
			return true
		}
	}
	return false
}

// PushPasswordHistory appends hash as the most recent entry and evicts the oldest entries
// so that at most limit remain. A limit below 1 is treated as 1.
func (a *Account) PushPasswordHistory(hash string, limit int) {
	if limit < 1 {
		limit = 1
	}
	history := append(append([]string(nil), a.PrevPasswords...), hash)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	a.PrevPasswords = history
}

// PreparePassword hashes PasswordHash in place unless it already is a bcrypt hash, so a
// stored value is never hashed twice.
func (a *Account) PreparePassword(hash func(plaintext string) (string, error)) error {
	if a.PasswordHash == "" || security.IsHash(a.PasswordHash) {
		return nil
	}
	h, err := hash(a.PasswordHash)
	if err != nil {
		return err
	}
	a.PasswordHash = h
	return nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the address format.
func ValidateEmail(email string) error {
	return validation.Validate(email, validation.Required, is.Email)
}

// Validate validates the account for persistence. Returns an error describing the first validation failure.
func (a *Account) Validate() error {
	a.Email = NormalizeEmail(a.Email)
	if err := ValidateEmail(a.Email); err != nil {
		return errors.New("email: " + err.Error())
	}
	if a.Role == "" {
		a.Role = RoleUser
	}
	if !a.Role.Valid() {
		return errors.New("role is invalid")
	}
	return nil
}
