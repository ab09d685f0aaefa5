package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qris-gateway/internal/core/domain"
	"qris-gateway/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

type webhookRepo struct {
	pool Pool
}

// NewWebhookRepository creates a PostgreSQL-backed WebhookRepository.
func NewWebhookRepository(pool Pool) ports.WebhookRepository {
	return &webhookRepo{pool: pool}
}

const webhookColumns = `
	id, merchant_id, env, invoice_id, event_type, payload, status,
	attempt_count, next_retry_at, last_http_status, last_error,
	response_snippet, created_at, updated_at`

// Enqueue inserts a new queued webhook delivery inside the caller's
// transaction, so it commits atomically with the invoice state change
// that triggered it.
func (r *webhookRepo) Enqueue(ctx context.Context, tx pgx.Tx, d *domain.WebhookDelivery) error {
	_, err := tx.Exec(ctx, `INSERT INTO webhook_deliveries (`+webhookColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		d.ID, d.MerchantID, d.Env, d.InvoiceID, string(d.EventType), d.Payload, string(d.Status),
		d.AttemptCount, d.NextRetryAt, d.LastHTTPStatus, d.LastError,
		d.ResponseSnippet, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue webhook delivery: %w", err)
	}
	return nil
}

// ListDue returns up to limit queued deliveries whose next_retry_at
// has elapsed. The query runs on the pool outside a transaction, so the
// FOR UPDATE SKIP LOCKED row locks end with the statement and the rows
// stay queued; concurrent callers can receive the same rows.
func (r *webhookRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+webhookColumns+` FROM webhook_deliveries
		WHERE status = $1 AND next_retry_at <= $2
		ORDER BY next_retry_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		string(domain.WebhookStatusQueued), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due webhook deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []domain.WebhookDelivery
	for rows.Next() {
		d, err := scanWebhookDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// MarkResult persists the outcome of one delivery attempt.
func (r *webhookRepo) MarkResult(ctx context.Context, d *domain.WebhookDelivery) error {
	d.UpdatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `UPDATE webhook_deliveries
		SET status = $1, attempt_count = $2, next_retry_at = $3,
		    last_http_status = $4, last_error = $5, response_snippet = $6, updated_at = $7
		WHERE id = $8`,
		string(d.Status), d.AttemptCount, d.NextRetryAt,
		d.LastHTTPStatus, d.LastError, d.ResponseSnippet, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("mark webhook delivery result: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWebhookDelivery(row rowScanner) (domain.WebhookDelivery, error) {
	var d domain.WebhookDelivery
	var eventType, status string
	err := row.Scan(
		&d.ID, &d.MerchantID, &d.Env, &d.InvoiceID, &eventType, &d.Payload, &status,
		&d.AttemptCount, &d.NextRetryAt, &d.LastHTTPStatus, &d.LastError,
		&d.ResponseSnippet, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WebhookDelivery{}, err
		}
		return domain.WebhookDelivery{}, fmt.Errorf("scan webhook delivery: %w", err)
	}
	d.EventType = domain.InvoiceEventType(eventType)
	d.Status = domain.WebhookDeliveryStatus(status)
	return d, nil
}
