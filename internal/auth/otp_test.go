package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"spin-rewards/internal/apperr"
	"spin-rewards/internal/database"
)

type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (c *captureSender) SendOTP(_ context.Context, to, code string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codes == nil {
		c.codes = map[string]string{}
	}
	c.codes[to] = code
	return c.err
}

type otpFixture struct {
	store  *database.Store
	sender *captureSender
	svc    *OTPService
	clock  time.Time
}

func newOTPFixture(t *testing.T) *otpFixture {
	t.Helper()
	store, err := database.New(context.Background(), "sqlite:"+filepath.Join(t.TempDir(), "otp.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(store.Close)
	f := &otpFixture{
		store:  store,
		sender: &captureSender{},
		clock:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewOTPService(store, f.sender, logger, 10*time.Minute).WithClock(func() time.Time { return f.clock })
	return f
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestOTPVerifyMarksUserVerified(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	if err := f.svc.Request(ctx, "Player@Example.com"); err != nil {
		t.Fatal(err)
	}
	code := f.sender.codes["player@example.com"]
	if len(code) != 6 {
		t.Fatalf("code %q is not six digits", code)
	}

	f.clock = f.clock.Add(9 * time.Minute)
	user, err := f.svc.Verify(ctx, "player@example.com", code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !user.EmailVerified || user.Email != "player@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	stored, _ := f.store.GetUserByEmail(ctx, "player@example.com")
	if !stored.EmailVerified {
		t.Fatal("verification not persisted")
	}

	// the challenge is single-use
	if _, err := f.svc.Verify(ctx, "player@example.com", code); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("reused code: %v", err)
	}
}

func TestOTPExpiry(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	if err := f.svc.Request(ctx, "late@example.com"); err != nil {
		t.Fatal(err)
	}
	code := f.sender.codes["late@example.com"]
	f.clock = f.clock.Add(10 * time.Minute)
	_, err := f.svc.Verify(ctx, "late@example.com", code)
	if apperr.Message(err) != "code expired" {
		t.Fatalf("err = %v, want code expired", err)
	}
}

func TestOTPAttemptLimit(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	if err := f.svc.Request(ctx, "guess@example.com"); err != nil {
		t.Fatal(err)
	}
	code := f.sender.codes["guess@example.com"]
	bad := wrongCode(code)

	for i := 1; i < MaxOTPAttempts; i++ {
		_, err := f.svc.Verify(ctx, "guess@example.com", bad)
		if apperr.Message(err) != "invalid code" {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	_, err := f.svc.Verify(ctx, "guess@example.com", bad)
	if apperr.Message(err) != "too many attempts" {
		t.Fatalf("final attempt: %v", err)
	}
	// the challenge is gone, so even the right code fails now
	if _, err := f.svc.Verify(ctx, "guess@example.com", code); err == nil {
		t.Fatal("locked challenge accepted a code")
	}
}

func TestOTPRequestThrottleAndValidation(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	if err := f.svc.Request(ctx, "not-an-email"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("bad email: %v", err)
	}
	if err := f.svc.Request(ctx, "fast@example.com"); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Request(ctx, "fast@example.com"); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("immediate resend: %v", err)
	}
	f.clock = f.clock.Add(time.Minute)
	if err := f.svc.Request(ctx, "fast@example.com"); err != nil {
		t.Fatalf("resend after gap: %v", err)
	}
}

func TestOTPDeliveryFailure(t *testing.T) {
	f := newOTPFixture(t)
	f.sender.err = errors.New("smtp down")
	err := f.svc.Request(context.Background(), "down@example.com")
	if apperr.KindOf(err) != apperr.KindServer {
		t.Fatalf("err = %v, want server error", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: " A@B.com ", want: "a@b.com"},
		{in: "name <a@b.com>", wantErr: true},
		{in: "plain", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeEmail(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Fatalf("NormalizeEmail(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}
