package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeviceID derives the stable device fingerprint from the client's user agent and address.
func DeviceID(userAgent, ip string) string {
	h := sha256.Sum256([]byte(userAgent + "-" + ip))
	return hex.EncodeToString(h[:])
}
