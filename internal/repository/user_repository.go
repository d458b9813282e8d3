package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/NaJiKuN/AIPoweredProBot/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `user_id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
language, selected_model, is_admin, wallet_balance, free_requests_left, free_expiry,
premium_expiry, premium_daily_limit, premium_used_today, last_premium_reset, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var isAdmin int
	var freeExpiry, premiumExpiry, lastReset sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName,
		&u.Language, &u.SelectedModel, &isAdmin, &u.WalletBalance, &u.FreeRequestsLeft, &freeExpiry,
		&premiumExpiry, &u.PremiumDailyLimit, &u.PremiumUsedToday, &lastReset, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.IsAdmin = isAdmin != 0
	if freeExpiry.Valid {
		t := freeExpiry.Time
		u.FreeExpiry = &t
	}
	if premiumExpiry.Valid {
		t := premiumExpiry.Time
		u.PremiumExpiry = &t
	}
	if lastReset.Valid {
		t := lastReset.Time
		u.LastPremiumReset = &t
	}
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = ?`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	const query = `
INSERT INTO users (user_id, username, first_name, last_name, language, selected_model, is_admin,
free_requests_left, free_expiry)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, ?)`
	isAdmin := 0
	if user.IsAdmin {
		isAdmin = 1
	}
	var freeExpiry any
	if user.FreeExpiry != nil {
		freeExpiry = user.FreeExpiry.Format("2006-01-02")
	}
	if _, err := r.db.ExecContext(ctx, query, user.ID, user.Username, user.FirstName, user.LastName,
		user.Language, user.SelectedModel, isAdmin, user.FreeRequestsLeft, freeExpiry); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID int64, username, firstName, lastName string) error {
	const query = `
UPDATE users SET username = NULLIF(?, ''), first_name = NULLIF(?, ''), last_name = NULLIF(?, ''), updated_at = NOW()
WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, username, firstName, lastName, userID); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (r *UserRepository) SetLanguage(ctx context.Context, userID int64, language string) error {
	const query = `UPDATE users SET language = ?, updated_at = NOW() WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, language, userID); err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	return nil
}

func (r *UserRepository) SetSelectedModel(ctx context.Context, userID int64, model string) error {
	const query = `UPDATE users SET selected_model = ?, updated_at = NOW() WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, model, userID); err != nil {
		return fmt.Errorf("set selected model: %w", err)
	}
	return nil
}

func (r *UserRepository) SetAdmin(ctx context.Context, userID int64, admin bool) error {
	value := 0
	if admin {
		value = 1
	}
	const query = `UPDATE users SET is_admin = ?, updated_at = NOW() WHERE user_id = ?`
	res, err := r.db.ExecContext(ctx, query, value, userID)
	if err != nil {
		return fmt.Errorf("set admin: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set admin rows affected: %w", err)
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

func (r *UserRepository) ListIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT user_id FROM users`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *UserRepository) ListAdminIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT user_id FROM users WHERE is_admin = 1`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list admin ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan admin id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Counts returns total and premium user counts as of the given day.
func (r *UserRepository) Counts(ctx context.Context, today time.Time) (total, premium int, err error) {
	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("count users: %w", err)
	}
	const query = `SELECT COUNT(*) FROM users WHERE premium_expiry IS NOT NULL AND premium_expiry >= ?`
	if err = r.db.QueryRowContext(ctx, query, today.Format("2006-01-02")).Scan(&premium); err != nil {
		return 0, 0, fmt.Errorf("count premium users: %w", err)
	}
	return total, premium, nil
}
