package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"spin-rewards/internal/models"
)

const prizeColumns = `id, title, weight, quantity_total, quantity_redeemed, active, created_at, updated_at`

func scanPrize(row interface{ Scan(dest ...any) error }) (*models.Prize, error) {
	var p models.Prize
	var total sql.NullInt64
	if err := row.Scan(&p.ID, &p.Title, &p.Weight, &total, &p.QuantityRedeemed, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.QuantityTotal = nullableInt64(total)
	return &p, nil
}

func (s *Store) listPrizes(ctx context.Context, query string, args ...any) ([]models.Prize, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prizes []models.Prize
	for rows.Next() {
		p, err := scanPrize(rows)
		if err != nil {
			return nil, err
		}
		prizes = append(prizes, *p)
	}
	return prizes, rows.Err()
}

func (s *Store) ListPrizes(ctx context.Context) ([]models.Prize, error) {
	return s.listPrizes(ctx, `SELECT `+prizeColumns+` FROM prizes ORDER BY id ASC`)
}

// ListActivePrizes returns active prizes in id order, exhausted ones included.
func (s *Store) ListActivePrizes(ctx context.Context) ([]models.Prize, error) {
	return s.listPrizes(ctx, `SELECT `+prizeColumns+` FROM prizes WHERE active = ? ORDER BY id ASC`, true)
}

func (s *Store) GetPrize(ctx context.Context, id int64) (*models.Prize, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+prizeColumns+` FROM prizes WHERE id = ?`), id)
	p, err := scanPrize(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrizeNotFound
	}
	return p, err
}

type PrizeInput struct {
	Title         string
	Weight        float64
	QuantityTotal *int64
	Active        bool
}

func (s *Store) CreatePrize(ctx context.Context, in PrizeInput, now time.Time) (*models.Prize, error) {
	now = utc(now)
	row := s.db.QueryRowContext(ctx, s.q(`
INSERT INTO prizes (title, weight, quantity_total, quantity_redeemed, active, created_at, updated_at)
VALUES (?, ?, ?, 0, ?, ?, ?)
RETURNING `+prizeColumns),
		in.Title, in.Weight, in.QuantityTotal, in.Active, now, now)
	return scanPrize(row)
}

// UpdatePrize edits the admin-owned fields. quantity_redeemed is never written here, and the
// ceiling may not drop below what has already been allocated.
func (s *Store) UpdatePrize(ctx context.Context, id int64, in PrizeInput, now time.Time) (*models.Prize, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
UPDATE prizes
SET title = ?, weight = ?, quantity_total = ?, active = ?, updated_at = ?
WHERE id = ? AND (CAST(? AS BIGINT) IS NULL OR quantity_redeemed <= CAST(? AS BIGINT))
RETURNING `+prizeColumns),
		in.Title, in.Weight, in.QuantityTotal, in.Active, utc(now), id, in.QuantityTotal, in.QuantityTotal)
	p, err := scanPrize(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetPrize(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrQuantityBelowRedeemed
	}
	return p, err
}

func (s *Store) DeletePrize(ctx context.Context, id int64) error {
	var awarded int64
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM spin_outcomes WHERE prize_id = ?`), id).Scan(&awarded); err != nil {
		return err
	}
	if awarded > 0 {
		return ErrPrizeInUse
	}
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM prizes WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrPrizeNotFound
	}
	return nil
}

// InventorySummary reports allocation and vendor redemption counts per prize.
func (s *Store) InventorySummary(ctx context.Context) ([]models.InventoryLine, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
SELECT p.id, p.title, p.active, p.quantity_total, p.quantity_redeemed,
       (SELECT COUNT(*) FROM spin_outcomes o WHERE o.prize_id = p.id AND o.redemption_status = ?)
FROM prizes p
ORDER BY p.id ASC`), string(models.RedemptionRedeemed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []models.InventoryLine
	for rows.Next() {
		var line models.InventoryLine
		var total sql.NullInt64
		if err := rows.Scan(&line.PrizeID, &line.Title, &line.Active, &total, &line.QuantityRedeemed, &line.Redeemed); err != nil {
			return nil, err
		}
		line.QuantityTotal = nullableInt64(total)
		if line.QuantityTotal != nil {
			left := *line.QuantityTotal - line.QuantityRedeemed
			line.Remaining = &left
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
