package security

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	minPasswordLength       = 12
	generatedPasswordLength = 16
	passwordLower           = "abcdefghijkmnopqrstuvwxyz"
	passwordUpper           = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	passwordDigits          = "23456789"
	passwordSymbols         = "!@#$%^&*-_=+?"
)

// ValidatePassword enforces the password policy: at least 12 characters with upper, lower,
// digit and symbol.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return errors.New("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return errors.New("password must contain at least one number")
	}
	if !hasSymbol {
		return errors.New("password must contain at least one symbol")
	}
	return nil
}

// GenerateRandomPassword returns a 16-character password that satisfies ValidatePassword.
// Used for invited accounts and for the credentials mailed after email verification.
func GenerateRandomPassword() (string, error) {
	all := passwordLower + passwordUpper + passwordDigits + passwordSymbols
	out := make([]byte, 0, generatedPasswordLength)
	for _, set := range []string{passwordLower, passwordUpper, passwordDigits, passwordSymbols} {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < generatedPasswordLength {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	// Fisher–Yates so the guaranteed classes are not always the prefix.
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}
