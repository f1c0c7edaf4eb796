package domain

import "time"

// LoginDevice is one (account, device fingerprint) pair. DeviceID is the fingerprint
// derived from user agent and source address; ID is the row id.
type LoginDevice struct {
	ID                 string
	AccountID          string
	DeviceID           string
	UserAgent          string
	IsTrusted          bool
	FirstLogin         time.Time
	LastLogin          time.Time
	LastActivityRecord time.Time
}

// LoginMethod is how the user authenticated on this attempt.
type LoginMethod string

const (
	MethodPassword LoginMethod = "password"
	MethodPasskey  LoginMethod = "passkey"
)

// Decision is the outcome of evaluating a login device.
type Decision struct {
	// Requires2FA is true when the login must detour through the two-factor flow.
	Requires2FA bool
	// HasPasskey hints the client that a hardware credential exists for the account.
	HasPasskey bool
	Device     *LoginDevice
}

// DeviceView is a device as listed to its owner.
type DeviceView struct {
	LoginDevice
	SignedIn bool
	Current  bool
}
