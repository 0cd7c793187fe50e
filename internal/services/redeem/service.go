package redeem

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"spin-rewards/internal/apperr"
	"spin-rewards/internal/database"
	"spin-rewards/internal/lib/logger/sl"
	"spin-rewards/internal/models"
)

// Notifier tells the player their voucher was used. Failures are logged only.
type Notifier interface {
	SendRedemptionNotification(ctx context.Context, to, prizeTitle, vendorName string) error
}

type Service struct {
	store         *database.Store
	notifier      Notifier
	logger        *slog.Logger
	now           func() time.Time
	notifyTimeout time.Duration
}

type Receipt struct {
	OutcomeID  int64     `json:"outcomeId"`
	PrizeTitle string    `json:"prizeTitle"`
	MaskedUser string    `json:"user"`
	VendorName string    `json:"vendor"`
	RedeemedAt time.Time `json:"redeemedAt"`
}

type Preview struct {
	PrizeTitle       string                  `json:"prizeTitle"`
	MaskedUser       string                  `json:"user"`
	RedemptionStatus models.RedemptionStatus `json:"redemptionStatus"`
	Expired          bool                    `json:"expired"`
	ExpiresAt        *time.Time              `json:"expiresAt,omitempty"`
	RedeemedAt       *time.Time              `json:"redeemedAt,omitempty"`
	RedeemedBy       *string                 `json:"redeemedBy,omitempty"`
}

func NewService(store *database.Store, notifier Notifier, logger *slog.Logger, notifyTimeout time.Duration) *Service {
	if notifyTimeout <= 0 {
		notifyTimeout = 10 * time.Second
	}
	return &Service{
		store:         store,
		notifier:      notifier,
		logger:        logger,
		now:           time.Now,
		notifyTimeout: notifyTimeout,
	}
}

// WithClock swaps the time source, used to exercise voucher expiry.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Redeem accepts token at vendorID exactly once.
func (s *Service) Redeem(ctx context.Context, code string, vendorID int64) (*Receipt, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperr.Validation("code is required")
	}
	vendor, err := s.store.GetVendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, database.ErrVendorNotFound) {
			return nil, apperr.NotFound("vendor not found", err)
		}
		return nil, apperr.Server("vendor lookup failed", err)
	}
	if !vendor.Active {
		return nil, apperr.Forbidden("vendor disabled", nil)
	}

	outcome, err := s.store.RedeemOutcome(ctx, code, vendor.ID, s.now())
	if err != nil {
		switch {
		case errors.Is(err, database.ErrTokenNotFound):
			return nil, apperr.NotFound("invalid code", err)
		case errors.Is(err, database.ErrAlreadyRedeemed):
			return nil, apperr.Conflict("already redeemed", err)
		case errors.Is(err, database.ErrRedemptionExpired):
			return nil, apperr.Conflict("expired", err)
		default:
			s.logger.Error("redeem failed", sl.Err(err), sl.VendorID(vendor.ID))
			return nil, apperr.Server("redeem failed", err)
		}
	}

	s.logger.Info("voucher redeemed", "outcome", outcome.ID, sl.VendorID(vendor.ID), sl.UserID(outcome.UserID))
	s.notify(ctx, outcome, vendor)

	return &Receipt{
		OutcomeID:  outcome.ID,
		PrizeTitle: outcome.PrizeTitle,
		MaskedUser: MaskEmail(outcome.UserEmail),
		VendorName: vendor.Name,
		RedeemedAt: *outcome.RedeemedAt,
	}, nil
}

func (s *Service) notify(ctx context.Context, outcome *models.OutcomeWithUser, vendor *models.Vendor) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	if err := s.notifier.SendRedemptionNotification(ctx, outcome.UserEmail, outcome.PrizeTitle, vendor.Name); err != nil {
		s.logger.Warn("redemption notification failed", sl.Err(err), sl.UserID(outcome.UserID))
	}
}

// Inspect shows a vendor what a token is worth before redeeming it.
func (s *Service) Inspect(ctx context.Context, code string) (*Preview, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperr.Validation("code is required")
	}
	outcome, err := s.store.GetOutcomeByToken(ctx, code)
	if err != nil {
		if errors.Is(err, database.ErrTokenNotFound) {
			return nil, apperr.NotFound("invalid code", err)
		}
		return nil, apperr.Server("lookup failed", err)
	}
	preview := &Preview{
		PrizeTitle:       outcome.PrizeTitle,
		MaskedUser:       MaskEmail(outcome.UserEmail),
		RedemptionStatus: models.RedemptionPending,
		Expired:          !outcome.Redeemed() && outcome.Expired(s.now()),
		ExpiresAt:        outcome.ExpiresAt,
		RedeemedAt:       outcome.RedeemedAt,
		RedeemedBy:       outcome.VendorName,
	}
	if outcome.RedemptionStatus != nil {
		preview.RedemptionStatus = *outcome.RedemptionStatus
	}
	return preview, nil
}

// MaskEmail keeps the first two characters of the local part and the domain: jo***@example.com.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		if email == "" {
			return ""
		}
		return email[:1] + "***"
	}
	local, domain := email[:at], email[at:]
	keep := 2
	if len(local) <= keep {
		keep = 1
	}
	return local[:keep] + "***" + domain
}
