package notify

import (
	"strconv"
	"time"

	otpdomain "consultancy-auth/backend/internal/otp/domain"
)

// Minutes renders d as whole minutes, rounded up, for mail copy.
func Minutes(d time.Duration) string {
	m := int((d + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return strconv.Itoa(m)
}

// CodeMessage builds a confirmation or two-factor message carrying an issued code and token.
func CodeMessage(kind Kind, email, name string, issued *otpdomain.Issued) Message {
	return Message{
		Kind:           kind,
		RecipientEmail: email,
		RecipientName:  name,
		Payload: map[string]string{
			"code":               issued.Code,
			"token":              issued.Token,
			"expires_in_minutes": Minutes(issued.ExpiresIn),
		},
	}
}
