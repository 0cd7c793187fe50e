package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"spin-rewards/internal/models"
)

const userColumns = `id, email, email_verified, has_spun, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.EmailVerified, &u.HasSpun, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UpsertUserByEmail returns the user for email, creating an unverified one when absent.
func (s *Store) UpsertUserByEmail(ctx context.Context, email string, now time.Time) (*models.User, error) {
	now = utc(now)
	row := s.db.QueryRowContext(ctx, s.q(`
INSERT INTO users (email, email_verified, has_spun, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (email) DO UPDATE SET updated_at = excluded.updated_at
RETURNING `+userColumns),
		normalizeEmail(email), false, false, now, now)
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE email = ?`), normalizeEmail(email))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *Store) MarkEmailVerified(ctx context.Context, id int64, now time.Time) error {
	result, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET email_verified = ?, updated_at = ? WHERE id = ?`), true, utc(now), id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UserWithOutcome is a user row joined to its spin result, if any.
type UserWithOutcome struct {
	models.User
	OutcomeStatus    *string `json:"outcomeStatus"`
	PrizeTitle       *string `json:"prizeTitle"`
	RedemptionStatus *string `json:"redemptionStatus"`
}

func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]UserWithOutcome, int64, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
SELECT
    u.id, u.email, u.email_verified, u.has_spun, u.created_at, u.updated_at,
    o.outcome_status, p.title, o.redemption_status
FROM users u
LEFT JOIN spin_outcomes o ON o.user_id = u.id
LEFT JOIN prizes p ON p.id = o.prize_id
ORDER BY u.id DESC
LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []UserWithOutcome
	for rows.Next() {
		var u UserWithOutcome
		var status, title, redemption sql.NullString
		if err := rows.Scan(
			&u.ID, &u.Email, &u.EmailVerified, &u.HasSpun, &u.CreatedAt, &u.UpdatedAt,
			&status, &title, &redemption,
		); err != nil {
			return nil, 0, err
		}
		u.OutcomeStatus = nullableString(status)
		u.PrizeTitle = nullableString(title)
		u.RedemptionStatus = nullableString(redemption)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// SaveOTPChallenge replaces any outstanding challenge for the address.
func (s *Store) SaveOTPChallenge(ctx context.Context, ch models.OTPChallenge) error {
	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO otp_challenges (email, secret, attempts, expires_at, created_at)
VALUES (?, ?, 0, ?, ?)
ON CONFLICT (email) DO UPDATE
SET secret = excluded.secret,
    attempts = 0,
    expires_at = excluded.expires_at,
    created_at = excluded.created_at`),
		normalizeEmail(ch.Email), ch.Secret, utc(ch.ExpiresAt), utc(ch.CreatedAt))
	return err
}

func (s *Store) GetOTPChallenge(ctx context.Context, email string) (*models.OTPChallenge, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
SELECT email, secret, attempts, expires_at, created_at FROM otp_challenges WHERE email = ?`), normalizeEmail(email))
	var ch models.OTPChallenge
	if err := row.Scan(&ch.Email, &ch.Secret, &ch.Attempts, &ch.ExpiresAt, &ch.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}
	return &ch, nil
}

// IncrementOTPAttempts bumps the failed-attempt counter and returns the new value.
func (s *Store) IncrementOTPAttempts(ctx context.Context, email string) (int, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
UPDATE otp_challenges SET attempts = attempts + 1 WHERE email = ? RETURNING attempts`), normalizeEmail(email))
	var attempts int
	if err := row.Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrChallengeNotFound
		}
		return 0, err
	}
	return attempts, nil
}

func (s *Store) DeleteOTPChallenge(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM otp_challenges WHERE email = ?`), normalizeEmail(email))
	return err
}

func (s *Store) PruneOTPChallenges(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM otp_challenges WHERE expires_at <= ?`), utc(now))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
