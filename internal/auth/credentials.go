package auth

import (
	"crypto/subtle"
	"errors"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const minPINLength = 4

// HashPIN bcrypt-hashes a vendor PIN.
func HashPIN(pin string) (string, error) {
	if len(pin) < minPINLength {
		return "", errors.New("pin must be at least 4 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPIN(hash, pin string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// CheckAdmin validates the shared admin password and the current TOTP code.
func CheckAdmin(password, code, wantPassword, totpSecret string) error {
	if subtle.ConstantTimeCompare([]byte(password), []byte(wantPassword)) != 1 {
		return ErrInvalidCredentials
	}
	if !totp.Validate(code, totpSecret) {
		return ErrInvalidCredentials
	}
	return nil
}
