package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/NaJiKuN/AIPoweredProBot/internal/models"
)

// EntitlementRepository owns the quota buckets: free trial and premium fields
// on the users row plus the user_packages table. Every debit is a conditional
// UPDATE so a bucket can never go below zero, even under concurrent callers.
type EntitlementRepository struct {
	db *sql.DB
}

func NewEntitlementRepository(db *sql.DB) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

const dateFormat = "2006-01-02"

func (r *EntitlementRepository) RefreshFreeTrial(ctx context.Context, userID int64, requests int, expiry time.Time) error {
	const query = `UPDATE users SET free_requests_left = ?, free_expiry = ?, updated_at = NOW() WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, requests, expiry.Format(dateFormat), userID); err != nil {
		return fmt.Errorf("refresh free trial: %w", err)
	}
	return nil
}

func (r *EntitlementRepository) DebitFreeTrial(ctx context.Context, userID int64, cost int, today time.Time) (bool, error) {
	const query = `
UPDATE users SET free_requests_left = free_requests_left - ?, updated_at = NOW()
WHERE user_id = ? AND free_requests_left >= ? AND free_expiry IS NOT NULL AND free_expiry >= ?`
	res, err := r.db.ExecContext(ctx, query, cost, userID, cost, today.Format(dateFormat))
	if err != nil {
		return false, fmt.Errorf("debit free trial: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("free trial rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *EntitlementRepository) CreditFreeTrial(ctx context.Context, userID int64, amount int) error {
	const query = `UPDATE users SET free_requests_left = free_requests_left + ?, updated_at = NOW() WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, amount, userID); err != nil {
		return fmt.Errorf("credit free trial: %w", err)
	}
	return nil
}

// ResetPremiumDay zeroes the daily counter exactly once per calendar day.
// The guard on last_premium_reset makes a second call on the same day a no-op.
func (r *EntitlementRepository) ResetPremiumDay(ctx context.Context, userID int64, today time.Time) error {
	const query = `
UPDATE users SET premium_used_today = 0, last_premium_reset = ?, updated_at = NOW()
WHERE user_id = ? AND (last_premium_reset IS NULL OR last_premium_reset < ?)`
	day := today.Format(dateFormat)
	if _, err := r.db.ExecContext(ctx, query, day, userID, day); err != nil {
		return fmt.Errorf("reset premium day: %w", err)
	}
	return nil
}

func (r *EntitlementRepository) DebitPremium(ctx context.Context, userID int64, cost int, today time.Time) (bool, error) {
	const query = `
UPDATE users SET premium_used_today = premium_used_today + ?, updated_at = NOW()
WHERE user_id = ? AND premium_expiry IS NOT NULL AND premium_expiry >= ?
AND premium_daily_limit - premium_used_today >= ?`
	res, err := r.db.ExecContext(ctx, query, cost, userID, today.Format(dateFormat), cost)
	if err != nil {
		return false, fmt.Errorf("debit premium: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("premium rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *EntitlementRepository) CreditPremium(ctx context.Context, userID int64, amount int) error {
	const query = `
UPDATE users SET premium_used_today = GREATEST(premium_used_today - ?, 0), updated_at = NOW()
WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, amount, userID); err != nil {
		return fmt.Errorf("credit premium: %w", err)
	}
	return nil
}

// GrantPremium extends or replaces the premium entitlement. The daily counter
// starts fresh with the grant.
func (r *EntitlementRepository) GrantPremium(ctx context.Context, userID int64, expiry time.Time, dailyLimit int) error {
	const query = `
UPDATE users SET premium_expiry = ?, premium_daily_limit = ?, premium_used_today = 0,
last_premium_reset = ?, updated_at = NOW()
WHERE user_id = ?`
	res, err := r.db.ExecContext(ctx, query, expiry.Format(dateFormat), dailyLimit, time.Now().UTC().Format(dateFormat), userID)
	if err != nil {
		return fmt.Errorf("grant premium: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("grant premium rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	// MySQL reports zero rows for a no-change update; distinguish from missing.
	var one int
	if err := r.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE user_id = ?`, userID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("check user: %w", err)
	}
	return nil
}

func (r *EntitlementRepository) AddPackage(ctx context.Context, userID int64, category models.Category, credits int) error {
	const query = `
INSERT INTO user_packages (user_id, category, credits_total, credits_left)
VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, userID, string(category), credits, credits); err != nil {
		return fmt.Errorf("add package: %w", err)
	}
	return nil
}

// OpenPackages lists the user's packages with credits remaining in the given
// category, oldest first. The ledger walks this list when debiting.
func (r *EntitlementRepository) OpenPackages(ctx context.Context, userID int64, category models.Category) ([]models.Package, error) {
	const query = `
SELECT id, user_id, category, credits_total, credits_left, created_at
FROM user_packages
WHERE user_id = ? AND category = ? AND credits_left > 0
ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query, userID, string(category))
	if err != nil {
		return nil, fmt.Errorf("list open packages: %w", err)
	}
	defer rows.Close()

	var packages []models.Package
	for rows.Next() {
		var p models.Package
		var category string
		if err := rows.Scan(&p.ID, &p.UserID, &category, &p.CreditsTotal, &p.CreditsLeft, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		p.Category = models.Category(category)
		packages = append(packages, p)
	}
	return packages, rows.Err()
}

// AllPackages lists every package with credits remaining for a user.
func (r *EntitlementRepository) AllPackages(ctx context.Context, userID int64) ([]models.Package, error) {
	const query = `
SELECT id, user_id, category, credits_total, credits_left, created_at
FROM user_packages
WHERE user_id = ? AND credits_left > 0
ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()

	var packages []models.Package
	for rows.Next() {
		var p models.Package
		var category string
		if err := rows.Scan(&p.ID, &p.UserID, &category, &p.CreditsTotal, &p.CreditsLeft, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		p.Category = models.Category(category)
		packages = append(packages, p)
	}
	return packages, rows.Err()
}

func (r *EntitlementRepository) DebitPackage(ctx context.Context, packageID int64, cost int) (bool, error) {
	const query = `
UPDATE user_packages SET credits_left = credits_left - ?
WHERE id = ? AND credits_left >= ?`
	res, err := r.db.ExecContext(ctx, query, cost, packageID, cost)
	if err != nil {
		return false, fmt.Errorf("debit package: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("package rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *EntitlementRepository) CreditPackage(ctx context.Context, packageID int64, amount int) error {
	const query = `UPDATE user_packages SET credits_left = credits_left + ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, amount, packageID); err != nil {
		return fmt.Errorf("credit package: %w", err)
	}
	return nil
}
