package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrPrizeNotFound         = errors.New("prize not found")
	ErrPrizeInUse            = errors.New("prize already awarded")
	ErrQuantityBelowRedeemed = errors.New("quantity total below redeemed count")
	ErrVendorNotFound        = errors.New("vendor not found")
	ErrChallengeNotFound     = errors.New("otp challenge not found")
	ErrAlreadySpun           = errors.New("user already spun")
	ErrEmailNotVerified      = errors.New("email not verified")
	ErrTokenCollision        = errors.New("redemption token collision")
	ErrTokenNotFound         = errors.New("redemption token not found")
	ErrAlreadyRedeemed       = errors.New("already redeemed")
	ErrRedemptionExpired     = errors.New("redemption expired")
)

const pgUniqueViolationCode = "23505"

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

type Store struct {
	db     *sql.DB
	dbType string
}

// New opens the store. An empty DSN or one prefixed with "sqlite:" selects SQLite,
// anything else is handed to pgx as a PostgreSQL connection string.
func New(ctx context.Context, dsn string) (*Store, error) {
	dialect, target := parseDSN(dsn)
	db, err := open(dialect, target)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, dbType: dialect}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s ping: %w", dialect, err)
	}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s migrate: %w", dialect, err)
	}
	return store, nil
}

func parseDSN(dsn string) (dialect, target string) {
	if dsn == "" {
		return dialectSQLite, "data.db"
	}
	if path, ok := strings.CutPrefix(dsn, "sqlite:"); ok {
		return dialectSQLite, path
	}
	return dialectPostgres, dsn
}

func open(dialect, target string) (*sql.DB, error) {
	if dialect == dialectPostgres {
		db, err := sql.Open("pgx", target)
		if err != nil {
			return nil, fmt.Errorf("postgres open: %w", err)
		}
		db.SetMaxOpenConns(20)
		db.SetConnMaxIdleTime(5 * time.Minute)
		return db, nil
	}
	db, err := sql.Open("sqlite", target+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// one connection serialises every transaction on the single SQLite writer
	db.SetMaxOpenConns(1)
	return db, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Dialect() string {
	return s.dbType
}

func (s *Store) migrate(ctx context.Context) error {
	schema := postgresSchema
	if s.dbType == dialectSQLite {
		schema = sqliteSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return nil
}

// q rewrites "?" placeholders into "$n" for PostgreSQL.
func (s *Store) q(query string) string {
	if s.dbType == dialectSQLite {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

// isUniqueViolation reports whether err is a unique constraint failure mentioning column.
// An empty column matches any unique violation.
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && strings.Contains(pgErr.ConstraintName, column)
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullableInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	val := n.Int64
	return &val
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	val := t.Time
	return &val
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	val := s.String
	return &val
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT UNIQUE NOT NULL,
    email_verified INTEGER NOT NULL DEFAULT 0,
    has_spun INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS otp_challenges (
    email TEXT PRIMARY KEY,
    secret TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS prizes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 0 CHECK (weight >= 0),
    quantity_total INTEGER CHECK (quantity_total IS NULL OR quantity_total >= 0),
    quantity_redeemed INTEGER NOT NULL DEFAULT 0 CHECK (quantity_redeemed >= 0),
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    CHECK (quantity_total IS NULL OR quantity_redeemed <= quantity_total)
);

CREATE TABLE IF NOT EXISTS vendors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    location TEXT NOT NULL DEFAULT '',
    pin_hash TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS spin_outcomes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL UNIQUE REFERENCES users(id),
    prize_id INTEGER REFERENCES prizes(id),
    outcome_status TEXT NOT NULL,
    redemption_token TEXT UNIQUE,
    redemption_status TEXT,
    redeemed_by INTEGER REFERENCES vendors(id),
    redeemed_at TIMESTAMP,
    expires_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_spin_outcomes_created_at ON spin_outcomes(created_at);
CREATE INDEX IF NOT EXISTS idx_spin_outcomes_prize_id ON spin_outcomes(prize_id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    email_verified BOOLEAN NOT NULL DEFAULT FALSE,
    has_spun BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS otp_challenges (
    email TEXT PRIMARY KEY,
    secret TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    expires_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS prizes (
    id BIGSERIAL PRIMARY KEY,
    title TEXT NOT NULL,
    weight DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (weight >= 0),
    quantity_total BIGINT CHECK (quantity_total IS NULL OR quantity_total >= 0),
    quantity_redeemed BIGINT NOT NULL DEFAULT 0 CHECK (quantity_redeemed >= 0),
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (quantity_total IS NULL OR quantity_redeemed <= quantity_total)
);

CREATE TABLE IF NOT EXISTS vendors (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    location TEXT NOT NULL DEFAULT '',
    pin_hash TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS spin_outcomes (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL UNIQUE REFERENCES users(id),
    prize_id BIGINT REFERENCES prizes(id),
    outcome_status TEXT NOT NULL,
    redemption_token TEXT UNIQUE,
    redemption_status TEXT,
    redeemed_by BIGINT REFERENCES vendors(id),
    redeemed_at TIMESTAMPTZ,
    expires_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_spin_outcomes_created_at ON spin_outcomes(created_at);
CREATE INDEX IF NOT EXISTS idx_spin_outcomes_prize_id ON spin_outcomes(prize_id);
`
