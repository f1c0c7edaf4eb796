package domain

// SessionContext is the explicit per-request identity passed into every orchestrator
// method. AccountID, Email and OrganizationID are empty on unauthenticated routes.
type SessionContext struct {
	AccountID      string
	Email          string
	Role           string
	OrganizationID string
	// DeviceID is the fingerprint derived from UserAgent and IP.
	DeviceID  string
	UserAgent string
	IP        string
}

// Authenticated reports whether the context carries a verified access token identity.
func (sc SessionContext) Authenticated() bool {
	return sc.AccountID != ""
}
