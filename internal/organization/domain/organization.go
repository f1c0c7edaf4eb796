package domain

import (
	"errors"
	"strings"
	"time"
)

// Org is the consultancy an account belongs to. Its id and name travel in access token claims.
type Org struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Validate validates the organization for persistence. Returns an error describing the first validation failure.
func (o *Org) Validate() error {
	o.Name = strings.TrimSpace(o.Name)
	if o.Name == "" {
		return errors.New("name is required")
	}
	return nil
}
