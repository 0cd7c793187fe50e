package draw

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"spin-rewards/internal/apperr"
	"spin-rewards/internal/cache"
	"spin-rewards/internal/database"
	"spin-rewards/internal/lib/logger/sl"
	"spin-rewards/internal/models"
	"spin-rewards/internal/util/qrcode"
	"spin-rewards/internal/util/token"
)

const tokenAttempts = 3

// Notifier delivers the winning voucher. Errors are logged, never returned to the player.
type Notifier interface {
	SendPrizeNotification(ctx context.Context, to, prizeTitle, token string, qrPNG []byte) error
}

type Config struct {
	// RedemptionTTL stamps an expiry on won vouchers; zero means they never expire.
	RedemptionTTL time.Duration
	NotifyTimeout time.Duration
	Draw          DrawFunc
	Now           func() time.Time
	NewToken      func() (string, error)
}

type Service struct {
	store    *database.Store
	cache    *cache.PrizeCache
	notifier Notifier
	logger   *slog.Logger
	cfg      Config
}

type Result struct {
	Outcome  models.SpinOutcome `json:"outcome"`
	Prize    *models.Prize      `json:"prize,omitempty"`
	RaceLost bool               `json:"-"`
}

func NewService(store *database.Store, cache *cache.PrizeCache, notifier Notifier, logger *slog.Logger, cfg Config) *Service {
	if cfg.Draw == nil {
		cfg.Draw = NewDrawFunc(time.Now().UnixNano())
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewToken == nil {
		cfg.NewToken = token.Generate
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	return &Service{
		store:    store,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
}

// Spin runs the single allowed spin for userID and returns the committed outcome.
// Inventory lost to a concurrent spin at commit time degrades the result to a loss.
func (s *Service) Spin(ctx context.Context, userID int64) (*Result, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, apperr.NotFound("user not found", err)
		}
		return nil, apperr.Server("user lookup failed", err)
	}
	if !user.EmailVerified {
		return nil, apperr.Forbidden("email not verified", nil)
	}
	if user.HasSpun {
		return nil, apperr.Conflict("already spun", database.ErrAlreadySpun)
	}

	prizes, err := s.cache.Get(ctx)
	if err != nil {
		return nil, apperr.Server("prize load failed", err)
	}
	prize, won := Select(FilterAvailable(prizes), s.cfg.Draw)

	var committed *database.CommitResult
	for attempt := 0; attempt < tokenAttempts; attempt++ {
		commit := database.SpinCommit{UserID: user.ID, Now: s.cfg.Now()}
		if won {
			code, err := s.cfg.NewToken()
			if err != nil {
				return nil, apperr.Server("token generation failed", err)
			}
			commit.PrizeID = &prize.ID
			commit.Token = code
			if s.cfg.RedemptionTTL > 0 {
				expires := commit.Now.Add(s.cfg.RedemptionTTL)
				commit.ExpiresAt = &expires
			}
		}
		committed, err = s.store.CommitSpin(ctx, commit)
		if errors.Is(err, database.ErrTokenCollision) {
			s.logger.Warn("redemption token collision, regenerating", sl.UserID(user.ID), "attempt", attempt+1)
			continue
		}
		break
	}
	if err != nil {
		switch {
		case errors.Is(err, database.ErrAlreadySpun):
			return nil, apperr.Conflict("already spun", err)
		case errors.Is(err, database.ErrEmailNotVerified):
			return nil, apperr.Forbidden("email not verified", err)
		case errors.Is(err, database.ErrUserNotFound):
			return nil, apperr.NotFound("user not found", err)
		default:
			s.logger.Error("spin commit failed", sl.Err(err), sl.UserID(user.ID))
			return nil, apperr.Server("spin failed", err)
		}
	}

	result := &Result{Outcome: committed.Outcome, RaceLost: committed.RaceLost}
	if committed.RaceLost {
		s.logger.Info("prize sold out at commit, recorded as lost", sl.UserID(user.ID), "prize", prize.ID)
	}
	if !committed.Outcome.Won() {
		return result, nil
	}

	s.cache.Invalidate()
	prize.QuantityRedeemed++
	result.Prize = &prize
	result.Outcome.PrizeTitle = prize.Title
	s.notifyWin(ctx, user, prize, *committed.Outcome.RedemptionToken)
	return result, nil
}

func (s *Service) notifyWin(ctx context.Context, user *models.User, prize models.Prize, code string) {
	if s.notifier == nil {
		return
	}
	png, err := qrcode.Render(code, qrcode.DefaultSize)
	if err != nil {
		s.logger.Warn("qr render failed", sl.Err(err), sl.UserID(user.ID))
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()
	if err := s.notifier.SendPrizeNotification(ctx, user.Email, prize.Title, code, png); err != nil {
		s.logger.Warn("prize notification failed", sl.Err(err), sl.UserID(user.ID), "prize", prize.ID)
	}
}

// State reports the user and their outcome, nil before the first spin.
func (s *Service) State(ctx context.Context, userID int64) (*models.User, *models.SpinOutcome, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, nil, apperr.NotFound("user not found", err)
		}
		return nil, nil, apperr.Server("user lookup failed", err)
	}
	outcome, err := s.store.GetOutcomeForUser(ctx, userID)
	if err != nil {
		return nil, nil, apperr.Server("outcome lookup failed", err)
	}
	return user, outcome, nil
}

// VoucherQR renders the QR image for the user's pending voucher.
func (s *Service) VoucherQR(ctx context.Context, userID int64) ([]byte, error) {
	_, outcome, err := s.State(ctx, userID)
	if err != nil {
		return nil, err
	}
	if outcome == nil || !outcome.Won() || outcome.RedemptionToken == nil {
		return nil, apperr.NotFound("no voucher", nil)
	}
	png, err := qrcode.Render(*outcome.RedemptionToken, qrcode.DefaultSize)
	if err != nil {
		return nil, apperr.Server("qr render failed", err)
	}
	return png, nil
}
