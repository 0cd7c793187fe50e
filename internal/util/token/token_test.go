package token

import (
	"regexp"
	"testing"
)

var tokenPattern = regexp.MustCompile(`^[A-Z2-7]{26}$`)

func TestGenerateIsUniqueAndTypeable(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		tok, err := Generate()
		if err != nil {
			t.Fatal(err)
		}
		if !tokenPattern.MatchString(tok) {
			t.Fatalf("token %q has unexpected shape", tok)
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestSecretLength(t *testing.T) {
	s, err := Secret(20)
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 32 {
		t.Fatalf("len = %d, want 32", len(s))
	}
}
