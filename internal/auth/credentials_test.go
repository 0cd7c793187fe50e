package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func TestPINRoundTrip(t *testing.T) {
	hash, err := HashPIN("4821")
	if err != nil {
		t.Fatal(err)
	}
	if hash == "4821" {
		t.Fatal("pin stored in clear")
	}
	if err := CheckPIN(hash, "4821"); err != nil {
		t.Fatalf("correct pin rejected: %v", err)
	}
	if err := CheckPIN(hash, "0000"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong pin err = %v", err)
	}
	if err := CheckPIN("", "4821"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty hash err = %v", err)
	}
	if _, err := HashPIN("12"); err == nil {
		t.Fatal("short pin should be rejected")
	}
}

func TestCheckAdmin(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckAdmin("pw", code, "pw", secret); err != nil {
		t.Fatalf("valid admin login rejected: %v", err)
	}
	if err := CheckAdmin("nope", code, "pw", secret); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if err := CheckAdmin("pw", "000000", "pw", secret); err == nil && code != "000000" {
		t.Fatal("wrong totp accepted")
	}
}
