package domain

// RefreshSession is the cached refresh token of one device. It lives in the key-value
// store under session:{email}:{deviceId} for the refresh token lifetime.
type RefreshSession struct {
	DeviceID     string `json:"deviceId"`
	RefreshToken string `json:"refreshToken"`
}
