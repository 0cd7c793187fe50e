package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"spin-rewards/internal/models"
)

// SpinCommit is everything the allocator decided for one spin. A nil PrizeID records a loss.
type SpinCommit struct {
	UserID    int64
	PrizeID   *int64
	Token     string
	ExpiresAt *time.Time
	Now       time.Time
}

// CommitResult is the persisted outcome. RaceLost is set when the selected prize sold out
// between selection and commit and the spin was recorded as lost instead.
type CommitResult struct {
	Outcome  models.SpinOutcome
	RaceLost bool
}

const outcomeColumns = `o.id, o.user_id, o.prize_id, COALESCE(p.title, ''), o.outcome_status, o.redemption_token,
o.redemption_status, o.redeemed_by, o.redeemed_at, o.expires_at, o.created_at`

func scanOutcome(row interface{ Scan(dest ...any) error }, extra ...any) (*models.SpinOutcome, error) {
	var o models.SpinOutcome
	var prizeID, redeemedBy sql.NullInt64
	var token, status sql.NullString
	var redeemedAt, expiresAt sql.NullTime
	var outcome string
	dest := []any{&o.ID, &o.UserID, &prizeID, &o.PrizeTitle, &outcome, &token, &status, &redeemedBy, &redeemedAt, &expiresAt, &o.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	o.OutcomeStatus = models.OutcomeStatus(outcome)
	o.PrizeID = nullableInt64(prizeID)
	o.RedemptionToken = nullableString(token)
	if status.Valid {
		rs := models.RedemptionStatus(status.String)
		o.RedemptionStatus = &rs
	}
	o.RedeemedBy = nullableInt64(redeemedBy)
	o.RedeemedAt = nullableTime(redeemedAt)
	o.ExpiresAt = nullableTime(expiresAt)
	return &o, nil
}

// CommitSpin applies a spin in one transaction: the user's has_spun flag, the conditional
// inventory increment and the outcome row move together or not at all. has_spun is set on
// lost spins too, so every user gets exactly one spin whatever it yields.
func (s *Store) CommitSpin(ctx context.Context, c SpinCommit) (*CommitResult, error) {
	now := utc(c.Now)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q(`
UPDATE users SET has_spun = ?, updated_at = ?
WHERE id = ? AND email_verified = ? AND has_spun = ?`), true, now, c.UserID, true, false)
	if err != nil {
		return nil, fmt.Errorf("mark spun: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, s.spinRefusal(ctx, tx, c.UserID)
	}

	var expiresAt any
	if c.ExpiresAt != nil {
		expiresAt = utc(*c.ExpiresAt)
	}

	result := &CommitResult{}
	prizeID := c.PrizeID
	if prizeID != nil {
		res, err := tx.ExecContext(ctx, s.q(`
UPDATE prizes SET quantity_redeemed = quantity_redeemed + 1, updated_at = ?
WHERE id = ? AND active = ? AND (quantity_total IS NULL OR quantity_redeemed < quantity_total)`), now, *prizeID, true)
		if err != nil {
			return nil, fmt.Errorf("allocate prize: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			result.RaceLost = true
			prizeID = nil
		}
	}

	var row *sql.Row
	if prizeID != nil {
		row = tx.QueryRowContext(ctx, s.q(`
INSERT INTO spin_outcomes (user_id, prize_id, outcome_status, redemption_token, redemption_status, expires_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING id`), c.UserID, *prizeID, string(models.OutcomeWon), c.Token, string(models.RedemptionPending), expiresAt, now)
	} else {
		row = tx.QueryRowContext(ctx, s.q(`
INSERT INTO spin_outcomes (user_id, prize_id, outcome_status, created_at)
VALUES (?, NULL, ?, ?)
RETURNING id`), c.UserID, string(models.OutcomeLost), now)
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		switch {
		case isUniqueViolation(err, "redemption_token"):
			return nil, ErrTokenCollision
		case isUniqueViolation(err, "user_id"):
			return nil, ErrAlreadySpun
		}
		return nil, fmt.Errorf("insert outcome: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit spin: %w", err)
	}

	result.Outcome = models.SpinOutcome{
		ID:        id,
		UserID:    c.UserID,
		PrizeID:   prizeID,
		CreatedAt: now,
	}
	if prizeID != nil {
		token := c.Token
		pending := models.RedemptionPending
		result.Outcome.OutcomeStatus = models.OutcomeWon
		result.Outcome.RedemptionToken = &token
		result.Outcome.RedemptionStatus = &pending
		result.Outcome.ExpiresAt = c.ExpiresAt
	} else {
		result.Outcome.OutcomeStatus = models.OutcomeLost
	}
	return result, nil
}

// spinRefusal explains why the has_spun update matched no row.
func (s *Store) spinRefusal(ctx context.Context, tx *sql.Tx, userID int64) error {
	var verified, spun bool
	err := tx.QueryRowContext(ctx, s.q(`SELECT email_verified, has_spun FROM users WHERE id = ?`), userID).Scan(&verified, &spun)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrUserNotFound
	case err != nil:
		return fmt.Errorf("load user: %w", err)
	case !verified:
		return ErrEmailNotVerified
	default:
		return ErrAlreadySpun
	}
}

func (s *Store) outcomeWithUserQuery(where string) string {
	return s.q(`
SELECT ` + outcomeColumns + `, u.email, v.name
FROM spin_outcomes o
JOIN users u ON u.id = o.user_id
LEFT JOIN prizes p ON p.id = o.prize_id
LEFT JOIN vendors v ON v.id = o.redeemed_by
` + where)
}

func scanOutcomeWithUser(row interface{ Scan(dest ...any) error }) (*models.OutcomeWithUser, error) {
	var email string
	var vendor sql.NullString
	o, err := scanOutcome(row, &email, &vendor)
	if err != nil {
		return nil, err
	}
	return &models.OutcomeWithUser{SpinOutcome: *o, UserEmail: email, VendorName: nullableString(vendor)}, nil
}

func (s *Store) GetOutcomeByToken(ctx context.Context, token string) (*models.OutcomeWithUser, error) {
	row := s.db.QueryRowContext(ctx, s.outcomeWithUserQuery(`WHERE o.redemption_token = ?`), strings.TrimSpace(token))
	o, err := scanOutcomeWithUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	return o, err
}

// GetOutcomeForUser returns nil, nil when the user has not spun yet.
func (s *Store) GetOutcomeForUser(ctx context.Context, userID int64) (*models.SpinOutcome, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
SELECT `+outcomeColumns+`
FROM spin_outcomes o
LEFT JOIN prizes p ON p.id = o.prize_id
WHERE o.user_id = ?`), userID)
	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

// RedeemOutcome finalises a pending token for vendorID. The status update is a
// compare-and-set on redemption_status, so concurrent attempts yield one success.
func (s *Store) RedeemOutcome(ctx context.Context, token string, vendorID int64, now time.Time) (*models.OutcomeWithUser, error) {
	now = utc(now)
	current, err := s.GetOutcomeByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if current.Redeemed() {
		return current, ErrAlreadyRedeemed
	}
	if current.Expired(now) {
		return current, ErrRedemptionExpired
	}

	res, err := s.db.ExecContext(ctx, s.q(`
UPDATE spin_outcomes
SET redemption_status = ?, redeemed_by = ?, redeemed_at = ?
WHERE id = ? AND redemption_status = ?`),
		string(models.RedemptionRedeemed), vendorID, now, current.ID, string(models.RedemptionPending))
	if err != nil {
		return nil, fmt.Errorf("redeem outcome: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return current, ErrAlreadyRedeemed
	}

	redeemed := models.RedemptionRedeemed
	current.RedemptionStatus = &redeemed
	current.RedeemedBy = &vendorID
	current.RedeemedAt = &now
	return current, nil
}

func (s *Store) ListOutcomes(ctx context.Context, limit, offset int) ([]models.OutcomeWithUser, int64, error) {
	list, err := s.queryOutcomes(ctx, s.outcomeWithUserQuery(`ORDER BY o.created_at DESC, o.id DESC LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM spin_outcomes`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ExportOutcomes returns every outcome created at or after since, oldest first.
func (s *Store) ExportOutcomes(ctx context.Context, since time.Time) ([]models.OutcomeWithUser, error) {
	return s.queryOutcomes(ctx, s.outcomeWithUserQuery(`WHERE o.created_at >= ? ORDER BY o.created_at ASC, o.id ASC`), utc(since))
}

func (s *Store) queryOutcomes(ctx context.Context, query string, args ...any) ([]models.OutcomeWithUser, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.OutcomeWithUser
	for rows.Next() {
		o, err := scanOutcomeWithUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *o)
	}
	return list, rows.Err()
}

// HourlyStats buckets outcomes created since the given time by hour. Bucketing happens in Go
// so both dialects share one query.
func (s *Store) HourlyStats(ctx context.Context, since time.Time) ([]models.HourlySummary, models.SpinOverview, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
SELECT created_at, outcome_status, redemption_status
FROM spin_outcomes
WHERE created_at >= ?`), utc(since))
	if err != nil {
		return nil, models.SpinOverview{}, err
	}
	defer rows.Close()

	statMap := map[string]*models.HourlySummary{}
	overview := models.SpinOverview{}
	for rows.Next() {
		var ts time.Time
		var status string
		var redemption sql.NullString
		if err := rows.Scan(&ts, &status, &redemption); err != nil {
			return nil, overview, err
		}
		label := ts.UTC().Truncate(time.Hour).Format("2006-01-02 15:00")
		item, ok := statMap[label]
		if !ok {
			item = &models.HourlySummary{HourLabel: label}
			statMap[label] = item
		}
		switch models.OutcomeStatus(status) {
		case models.OutcomeWon:
			item.Won++
			overview.Won++
			if redemption.String == string(models.RedemptionRedeemed) {
				item.Redeemed++
				overview.Redeemed++
			} else {
				overview.Pending++
			}
		case models.OutcomeLost:
			item.Lost++
			overview.Lost++
		}
		overview.Total++
	}
	if err := rows.Err(); err != nil {
		return nil, overview, err
	}

	stats := make([]models.HourlySummary, 0, len(statMap))
	for _, entry := range statMap {
		stats = append(stats, *entry)
	}
	slices.SortFunc(stats, func(a, b models.HourlySummary) int {
		return strings.Compare(a.HourLabel, b.HourLabel)
	})
	return stats, overview, nil
}
