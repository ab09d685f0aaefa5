package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"qris-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EventRepo implements ports.EventRepository.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Append inserts a new invoice event inside the caller's transaction.
func (r *EventRepo) Append(ctx context.Context, tx pgx.Tx, event *domain.InvoiceEvent) error {
	payload, err := marshalMetadata(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO invoice_events (id, invoice_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.InvoiceID, string(event.EventType), payload, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append invoice event: %w", err)
	}
	return nil
}

// ListByInvoice returns up to limit events for an invoice, newest first.
func (r *EventRepo) ListByInvoice(ctx context.Context, invoiceID uuid.UUID, limit int) ([]domain.InvoiceEvent, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, event_type, payload, created_at
		FROM invoice_events
		WHERE invoice_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, invoiceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list invoice events: %w", err)
	}
	defer rows.Close()

	var events []domain.InvoiceEvent
	for rows.Next() {
		var e domain.InvoiceEvent
		var eventType string
		var payload []byte
		if err := rows.Scan(&e.ID, &e.InvoiceID, &eventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invoice event: %w", err)
		}
		e.EventType = domain.InvoiceEventType(eventType)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal event payload: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
