package redeem

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
	"spin-rewards/internal/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type redemptionMail struct {
	to, title, vendor string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []redemptionMail
	err  error
}

func (f *fakeNotifier) SendRedemptionNotification(_ context.Context, to, prizeTitle, vendorName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, redemptionMail{to: to, title: prizeTitle, vendor: vendorName})
	return f.err
}

type fixture struct {
	store    *database.Store
	notifier *fakeNotifier
	svc      *Service
	vendor   *models.Vendor
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := database.New(ctx, "sqlite:"+filepath.Join(t.TempDir(), "redeem.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	vendor, err := store.CreateVendor(ctx, "Corner Cafe", "Main St", "hash", testNow)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{store: store, notifier: &fakeNotifier{}, vendor: vendor, clock: testNow}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(store, f.notifier, logger, time.Second).WithClock(func() time.Time { return f.clock })
	return f
}

// winner commits a won spin for email under token.
func (f *fixture) winner(t *testing.T, email, token string, expires *time.Time) {
	t.Helper()
	ctx := context.Background()
	u, err := f.store.UpsertUserByEmail(ctx, email, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.MarkEmailVerified(ctx, u.ID, testNow); err != nil {
		t.Fatal(err)
	}
	p, err := f.store.CreatePrize(ctx, database.PrizeInput{Title: "Croissant", Weight: 1, Active: true}, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.CommitSpin(ctx, database.SpinCommit{UserID: u.ID, PrizeID: &p.ID, Token: token, ExpiresAt: expires, Now: testNow}); err != nil {
		t.Fatal(err)
	}
}

func TestRedeemTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.winner(t, "john@example.com", "ABCDEF", nil)

	receipt, err := f.svc.Redeem(ctx, " abcdef ", f.vendor.ID)
	if err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if receipt.PrizeTitle != "Croissant" || receipt.VendorName != "Corner Cafe" || receipt.MaskedUser != "jo***@example.com" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if !receipt.RedeemedAt.Equal(testNow) {
		t.Fatalf("redeemed at = %v, want %v", receipt.RedeemedAt, testNow)
	}

	_, err = f.svc.Redeem(ctx, "ABCDEF", f.vendor.ID)
	if apperr.KindOf(err) != apperr.KindConflict || apperr.Message(err) != "already redeemed" {
		t.Fatalf("second redeem: %v", err)
	}

	if len(f.notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(f.notifier.sent))
	}
	if got := f.notifier.sent[0]; got.to != "john@example.com" || got.vendor != "Corner Cafe" {
		t.Fatalf("unexpected notification: %+v", got)
	}
}

func TestRedeemErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expires := testNow.Add(time.Hour)
	f.winner(t, "late@example.com", "EXPIRING", &expires)
	disabled, err := f.store.CreateVendor(ctx, "Closed", "", "hash", testNow)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.UpdateVendorActive(ctx, disabled.ID, false); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		code     string
		vendorID int64
		clock    time.Time
		kind     apperr.Kind
		msg      string
	}{
		{name: "empty code", code: "  ", vendorID: f.vendor.ID, clock: testNow, kind: apperr.KindValidation, msg: "code is required"},
		{name: "unknown code", code: "MISSING", vendorID: f.vendor.ID, clock: testNow, kind: apperr.KindNotFound, msg: "invalid code"},
		{name: "unknown vendor", code: "EXPIRING", vendorID: 999, clock: testNow, kind: apperr.KindNotFound, msg: "vendor not found"},
		{name: "disabled vendor", code: "EXPIRING", vendorID: disabled.ID, clock: testNow, kind: apperr.KindForbidden, msg: "vendor disabled"},
		{name: "expired", code: "EXPIRING", vendorID: f.vendor.ID, clock: expires.Add(time.Minute), kind: apperr.KindConflict, msg: "expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.clock = tt.clock
			_, err := f.svc.Redeem(ctx, tt.code, tt.vendorID)
			if apperr.KindOf(err) != tt.kind || apperr.Message(err) != tt.msg {
				t.Fatalf("got %v (%v), want %v %q", apperr.KindOf(err), err, tt.kind, tt.msg)
			}
		})
	}

	// expiry blocks redemption without changing the stored state
	outcome, err := f.store.GetOutcomeByToken(ctx, "EXPIRING")
	if err != nil {
		t.Fatal(err)
	}
	if outcome.RedemptionStatus == nil || *outcome.RedemptionStatus != models.RedemptionPending {
		t.Fatalf("status = %v, want pending", outcome.RedemptionStatus)
	}
}

func TestRedeemNotificationFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")
	f.winner(t, "ok@example.com", "NOTIFY", nil)

	if _, err := f.svc.Redeem(context.Background(), "NOTIFY", f.vendor.ID); err != nil {
		t.Fatalf("redeem: %v", err)
	}
}

func TestConcurrentRedeemExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.winner(t, "race@example.com", "RACE", nil)

	const attempts = 12
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Redeem(ctx, "RACE", f.vendor.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if apperr.KindOf(err) != apperr.KindConflict {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("successful redemptions = %d, want 1", success)
	}
}

func TestInspect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expires := testNow.Add(time.Hour)
	f.winner(t, "peek@example.com", "PEEK", &expires)

	preview, err := f.svc.Inspect(ctx, "peek")
	if err != nil {
		t.Fatal(err)
	}
	if preview.RedemptionStatus != models.RedemptionPending || preview.Expired || preview.MaskedUser != "pe***@example.com" {
		t.Fatalf("unexpected preview: %+v", preview)
	}

	f.clock = expires
	preview, err = f.svc.Inspect(ctx, "PEEK")
	if err != nil {
		t.Fatal(err)
	}
	if !preview.Expired {
		t.Fatal("preview should report expiry")
	}

	if _, err := f.svc.Inspect(ctx, "NOPE"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("unknown token: %v", err)
	}
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"john@example.com", "jo***@example.com"},
		{"ab@example.com", "a***@example.com"},
		{"a@example.com", "a***@example.com"},
		{"nodomain", "n***"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := MaskEmail(tt.in); got != tt.want {
				t.Fatalf("MaskEmail(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
