package postgres

import (
	"context"
	"fmt"

	"qris-gateway/internal/core/domain"

	"github.com/google/uuid"
)

// AlertRepo implements ports.AlertRepository.
type AlertRepo struct {
	pool Pool
}

// NewAlertRepo creates a new AlertRepo.
func NewAlertRepo(pool Pool) *AlertRepo {
	return &AlertRepo{pool: pool}
}

// Insert records a new operational alert.
func (r *AlertRepo) Insert(ctx context.Context, a *domain.Alert) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO alerts (id, merchant_id, type, message, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.MerchantID, string(a.Type), a.Message, a.CreatedAt, a.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// List returns alerts, optionally scoped to one merchant and/or
// filtered to unresolved-only.
func (r *AlertRepo) List(ctx context.Context, merchantID *uuid.UUID, unresolvedOnly bool) ([]domain.Alert, error) {
	query := `SELECT id, merchant_id, type, message, created_at, resolved_at FROM alerts WHERE 1=1`
	args := []any{}
	argN := 1

	if merchantID != nil {
		query += fmt.Sprintf(" AND merchant_id = $%d", argN)
		args = append(args, *merchantID)
		argN++
	}
	if unresolvedOnly {
		query += " AND resolved_at IS NULL"
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var alertType string
		if err := rows.Scan(&a.ID, &a.MerchantID, &alertType, &a.Message, &a.CreatedAt, &a.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = domain.AlertType(alertType)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Resolve marks an alert acknowledged.
func (r *AlertRepo) Resolve(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE alerts SET resolved_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	return nil
}
