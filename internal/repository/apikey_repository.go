package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/NaJiKuN/AIPoweredProBot/internal/models"
)

type APIKeyRepository struct {
	db *sql.DB
}

func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Upsert inserts or replaces the key for a service.
func (r *APIKeyRepository) Upsert(ctx context.Context, rec models.APIKeyRecord) error {
	const query = `
INSERT INTO api_keys (service_name, secret_value, is_active, added_by)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE secret_value = VALUES(secret_value), is_active = VALUES(is_active), added_by = VALUES(added_by)`
	active := 0
	if rec.IsActive {
		active = 1
	}
	if _, err := r.db.ExecContext(ctx, query, rec.ServiceName, rec.SecretValue, active, rec.AddedBy); err != nil {
		return fmt.Errorf("upsert api key: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) SetActive(ctx context.Context, serviceName string, active bool) (bool, error) {
	value := 0
	if active {
		value = 1
	}
	const query = `UPDATE api_keys SET is_active = ? WHERE service_name = ?`
	res, err := r.db.ExecContext(ctx, query, value, serviceName)
	if err != nil {
		return false, fmt.Errorf("set api key active: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("api key rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}
	// MySQL reports zero rows for a no-change update; distinguish from missing.
	var one int
	if err := r.db.QueryRowContext(ctx, `SELECT 1 FROM api_keys WHERE service_name = ?`, serviceName).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check api key: %w", err)
	}
	return true, nil
}

func (r *APIKeyRepository) Delete(ctx context.Context, serviceName string) (bool, error) {
	const query = `DELETE FROM api_keys WHERE service_name = ?`
	res, err := r.db.ExecContext(ctx, query, serviceName)
	if err != nil {
		return false, fmt.Errorf("delete api key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("api key rows affected: %w", err)
	}
	return affected > 0, nil
}

// ActiveSecret returns the secret for a service if a key exists and is active,
// or "" when the service is unavailable.
func (r *APIKeyRepository) ActiveSecret(ctx context.Context, serviceName string) (string, error) {
	const query = `SELECT secret_value FROM api_keys WHERE service_name = ? AND is_active = 1`
	var secret string
	if err := r.db.QueryRowContext(ctx, query, serviceName).Scan(&secret); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get active api key: %w", err)
	}
	return secret, nil
}

// List returns every key record without the secret values.
func (r *APIKeyRepository) List(ctx context.Context) ([]models.APIKeyRecord, error) {
	const query = `SELECT service_name, is_active, added_by, added_at FROM api_keys ORDER BY service_name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var records []models.APIKeyRecord
	for rows.Next() {
		var rec models.APIKeyRecord
		var active int
		if err := rows.Scan(&rec.ServiceName, &active, &rec.AddedBy, &rec.AddedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		rec.IsActive = active != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}
