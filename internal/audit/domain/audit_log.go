package domain

import "time"

// AuditLog represents a security-relevant event on an account.
type AuditLog struct {
	ID             string
	OrganizationID string
	AccountID      string
	Action         string
	Resource       string
	IP             string
	Metadata       map[string]string
	CreatedAt      time.Time
}
