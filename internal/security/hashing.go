package security

import (
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// bcryptHash matches the modular-crypt form produced by bcrypt ($2a$, $2b$, $2y$ ...).
var bcryptHash = regexp.MustCompile(`^\$2[abxy]?\$\d{2}\$[./A-Za-z0-9]{53}$`)

// Hasher hashes and verifies passwords and one-time codes using bcrypt. Callers must not
// log or persist plaintext values.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost (4–31). Cost 12 is a
// reasonable default for interactive login.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt hash of plaintext suitable for storage.
func (h *Hasher) Hash(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare verifies plaintext against the stored hash. Returns nil if they match;
// bcrypt.ErrMismatchedHashAndPassword or a parse error otherwise.
func (h *Hasher) Compare(hash, plaintext string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
}

// Matches is Compare as a boolean.
func (h *Hasher) Matches(hash, plaintext string) bool {
	return hash != "" && h.Compare(hash, plaintext) == nil
}

// IsHash reports whether s already looks like a bcrypt hash.
func IsHash(s string) bool {
	return bcryptHash.MatchString(s)
}

// HashIfPlain hashes s unless it is already a bcrypt hash.
func (h *Hasher) HashIfPlain(s string) (string, error) {
	if IsHash(s) {
		return s, nil
	}
	return h.Hash(s)
}
