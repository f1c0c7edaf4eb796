// Package otp issues and verifies one-time codes bound to encrypted verification tokens.
package otp

import (
	"crypto/rand"
	"math/big"
)

const codeDigits = 6

var codeSpace = big.NewInt(10)

// GenerateCode returns a 6-digit numeric code (e.g. "042317") drawn from crypto/rand.
func GenerateCode() (string, error) {
	s := make([]byte, codeDigits)
	for i := range s {
		n, err := rand.Int(rand.Reader, codeSpace)
		if err != nil {
			return "", err
		}
		s[i] = '0' + byte(n.Int64())
	}
	return string(s), nil
}
