package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"spin-rewards/internal/apperr"
	"spin-rewards/internal/database"
	"spin-rewards/internal/lib/logger/sl"
	"spin-rewards/internal/models"
	"spin-rewards/internal/util/token"
)

const (
	MaxOTPAttempts = 5
	otpResendGap   = 30 * time.Second
)

// CodeSender delivers a one-time login code.
type CodeSender interface {
	SendOTP(ctx context.Context, to, code string, ttl time.Duration) error
}

// OTPService runs the email login flow: Request mails a code, Verify exchanges it for a verified user.
type OTPService struct {
	store  *database.Store
	sender CodeSender
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time
}

func NewOTPService(store *database.Store, sender CodeSender, logger *slog.Logger, ttl time.Duration) *OTPService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &OTPService{store: store, sender: sender, logger: logger, ttl: ttl, now: time.Now}
}

func (s *OTPService) WithClock(now func() time.Time) *OTPService {
	s.now = now
	return s
}

func (s *OTPService) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(s.ttl / time.Second),
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// NormalizeEmail lower-cases and validates an address.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation("invalid email")
	}
	return email, nil
}

// Request issues a fresh challenge for email, replacing any earlier one.
func (s *OTPService) Request(ctx context.Context, rawEmail string) error {
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return err
	}
	now := s.now()
	prev, err := s.store.GetOTPChallenge(ctx, email)
	switch {
	case err == nil:
		if now.Sub(prev.CreatedAt) < otpResendGap && now.Before(prev.ExpiresAt) {
			return apperr.Conflict("code recently sent", nil)
		}
	case !errors.Is(err, database.ErrChallengeNotFound):
		return apperr.Server("challenge lookup failed", err)
	}

	secret, err := token.Secret(20)
	if err != nil {
		return apperr.Server("secret generation failed", err)
	}
	code, err := totp.GenerateCodeCustom(secret, now, s.opts())
	if err != nil {
		return apperr.Server("code generation failed", err)
	}
	if err := s.store.SaveOTPChallenge(ctx, models.OTPChallenge{
		Email:     email,
		Secret:    secret,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}); err != nil {
		return apperr.Server("challenge save failed", err)
	}
	if err := s.sender.SendOTP(ctx, email, code, s.ttl); err != nil {
		s.logger.Warn("otp delivery failed", sl.Err(err))
		return apperr.Server("could not send code", err)
	}
	return nil
}

// Verify checks code for email. A correct code marks the user verified and consumes the challenge.
func (s *OTPService) Verify(ctx context.Context, rawEmail, code string) (*models.User, error) {
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Validation("code is required")
	}
	now := s.now()
	ch, err := s.store.GetOTPChallenge(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrChallengeNotFound) {
			return nil, apperr.Forbidden("invalid code", err)
		}
		return nil, apperr.Server("challenge lookup failed", err)
	}
	if !now.Before(ch.ExpiresAt) {
		_ = s.store.DeleteOTPChallenge(ctx, email)
		return nil, apperr.Forbidden("code expired", nil)
	}
	if ch.Attempts >= MaxOTPAttempts {
		_ = s.store.DeleteOTPChallenge(ctx, email)
		return nil, apperr.Forbidden("too many attempts", nil)
	}

	ok, err := totp.ValidateCustom(code, ch.Secret, now, s.opts())
	if err != nil || !ok {
		attempts, incErr := s.store.IncrementOTPAttempts(ctx, email)
		if incErr != nil && !errors.Is(incErr, database.ErrChallengeNotFound) {
			return nil, apperr.Server("attempt update failed", incErr)
		}
		if attempts >= MaxOTPAttempts {
			_ = s.store.DeleteOTPChallenge(ctx, email)
			return nil, apperr.Forbidden("too many attempts", nil)
		}
		return nil, apperr.Forbidden("invalid code", nil)
	}

	if err := s.store.DeleteOTPChallenge(ctx, email); err != nil {
		return nil, apperr.Server("challenge delete failed", err)
	}
	user, err := s.store.UpsertUserByEmail(ctx, email, now)
	if err != nil {
		return nil, apperr.Server("user save failed", err)
	}
	if !user.EmailVerified {
		if err := s.store.MarkEmailVerified(ctx, user.ID, now); err != nil {
			return nil, apperr.Server("verify failed", err)
		}
		user.EmailVerified = true
	}
	s.logger.Info("email verified", sl.UserID(user.ID))
	return user, nil
}
