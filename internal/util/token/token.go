package token

import (
	"crypto/rand"
	"encoding/base32"
)

const tokenBytes = 16

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Generate creates a 26-character redemption token from 128 random bits, upper-case
// letters and digits only so it survives being typed in by a vendor.
func Generate() (string, error) {
	var buf [tokenBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return encoding.EncodeToString(buf[:]), nil
}

// Secret returns a base32 secret of n random bytes, suitable for TOTP keys.
func Secret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return encoding.EncodeToString(buf), nil
}
