package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"spin-rewards/internal/models"
)

const vendorColumns = `id, name, location, pin_hash, active, created_at`

func scanVendor(row interface{ Scan(dest ...any) error }) (*models.Vendor, error) {
	var v models.Vendor
	if err := row.Scan(&v.ID, &v.Name, &v.Location, &v.PINHash, &v.Active, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) ListVendors(ctx context.Context) ([]models.Vendor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+vendorColumns+` FROM vendors ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vendors []models.Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		vendors = append(vendors, *v)
	}
	return vendors, rows.Err()
}

func (s *Store) GetVendor(ctx context.Context, id int64) (*models.Vendor, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+vendorColumns+` FROM vendors WHERE id = ?`), id)
	v, err := scanVendor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVendorNotFound
	}
	return v, err
}

func (s *Store) CreateVendor(ctx context.Context, name, location, pinHash string, now time.Time) (*models.Vendor, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
INSERT INTO vendors (name, location, pin_hash, active, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING `+vendorColumns), name, location, pinHash, true, utc(now))
	return scanVendor(row)
}

// UpdateVendor edits a vendor. An empty pinHash keeps the current PIN.
func (s *Store) UpdateVendor(ctx context.Context, id int64, name, location, pinHash string, active bool) error {
	var result sql.Result
	var err error
	if pinHash == "" {
		result, err = s.db.ExecContext(ctx, s.q(`UPDATE vendors SET name = ?, location = ?, active = ? WHERE id = ?`),
			name, location, active, id)
	} else {
		result, err = s.db.ExecContext(ctx, s.q(`UPDATE vendors SET name = ?, location = ?, pin_hash = ?, active = ? WHERE id = ?`),
			name, location, pinHash, active, id)
	}
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrVendorNotFound
	}
	return nil
}

// DeleteVendor removes a vendor, or only deactivates it once it has redeemed vouchers.
func (s *Store) DeleteVendor(ctx context.Context, id int64) error {
	var redeemed int64
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM spin_outcomes WHERE redeemed_by = ?`), id).Scan(&redeemed); err != nil {
		return err
	}
	if redeemed > 0 {
		return s.UpdateVendorActive(ctx, id, false)
	}
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM vendors WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrVendorNotFound
	}
	return nil
}

func (s *Store) UpdateVendorActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx, s.q(`UPDATE vendors SET active = ? WHERE id = ?`), active, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrVendorNotFound
	}
	return nil
}
