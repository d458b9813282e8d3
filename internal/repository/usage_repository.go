package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/NaJiKuN/AIPoweredProBot/internal/models"
)

type UsageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) Log(ctx context.Context, ev models.UsageEvent) error {
	const query = `
INSERT INTO usage_events (user_id, model_name, request_type, cost)
VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, ev.UserID, ev.ModelName, string(ev.RequestType), ev.Cost); err != nil {
		return fmt.Errorf("insert usage event: %w", err)
	}
	return nil
}

// StatsForUser aggregates a single user's usage by model and request type.
func (r *UsageRepository) StatsForUser(ctx context.Context, userID int64) ([]models.UsageStat, error) {
	const query = `
SELECT user_id, model_name, request_type, COUNT(*), COALESCE(SUM(cost), 0)
FROM usage_events
WHERE user_id = ?
GROUP BY user_id, model_name, request_type`
	return r.queryStats(ctx, query, userID)
}

// Stats aggregates usage across all users by model and request type.
func (r *UsageRepository) Stats(ctx context.Context) ([]models.UsageStat, error) {
	const query = `
SELECT 0, model_name, request_type, COUNT(*), COALESCE(SUM(cost), 0)
FROM usage_events
GROUP BY model_name, request_type`
	return r.queryStats(ctx, query)
}

func (r *UsageRepository) queryStats(ctx context.Context, query string, args ...any) ([]models.UsageStat, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage stats: %w", err)
	}
	defer rows.Close()

	var stats []models.UsageStat
	for rows.Next() {
		var s models.UsageStat
		var requestType string
		if err := rows.Scan(&s.UserID, &s.ModelName, &requestType, &s.Requests, &s.TotalCost); err != nil {
			return nil, fmt.Errorf("scan usage stat: %w", err)
		}
		s.RequestType = models.RequestType(requestType)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
