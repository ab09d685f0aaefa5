package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"qris-gateway/internal/core/domain"
	"qris-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InvoiceRepo implements ports.InvoiceRepository.
type InvoiceRepo struct {
	pool Pool
}

// NewInvoiceRepo creates a new InvoiceRepo.
func NewInvoiceRepo(pool Pool) *InvoiceRepo {
	return &InvoiceRepo{pool: pool}
}

const invoiceColumns = `
	id, merchant_id, env, principal, reference_id, base_amount, unique_suffix,
	final_amount, status, qris_string, metadata, created_at, expires_at, paid_at`

// Create inserts a new invoice row inside the caller's transaction.
func (r *InvoiceRepo) Create(ctx context.Context, tx pgx.Tx, invoice *domain.Invoice) error {
	metadata, err := marshalMetadata(invoice.Metadata)
	if err != nil {
		return fmt.Errorf("marshal invoice metadata: %w", err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		invoice.ID, invoice.MerchantID, invoice.Env, invoice.Principal, invoice.ReferenceID,
		invoice.BaseAmount, invoice.UniqueSuffix, invoice.FinalAmount, string(invoice.Status),
		invoice.QRISString, metadata, invoice.CreatedAt, invoice.ExpiresAt, invoice.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// GetByID fetches an invoice by its UUID.
func (r *InvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice by id: %w", err)
	}
	return invoice, nil
}

// List returns a page of invoices for one merchant/env.
func (r *InvoiceRepo) List(ctx context.Context, params ports.InvoiceListParams) ([]domain.Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
		WHERE merchant_id = $1 AND env = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		params.MerchantID, params.Env, params.Limit, params.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice row: %w", err)
		}
		invoices = append(invoices, *invoice)
	}
	return invoices, rows.Err()
}

// TransitionStatus performs a guarded `UPDATE ... WHERE status = from`,
// returning false (no error) if a concurrent writer already moved the
// row to a different status.
func (r *InvoiceRepo) TransitionStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.InvoiceStatus, paidAt *time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `UPDATE invoices SET status = $1, paid_at = $2
		WHERE id = $3 AND status = $4`,
		string(to), paidAt, id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("transition invoice status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListExpiredPending returns pending invoices whose expiry has elapsed.
func (r *InvoiceRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
		WHERE status = $1 AND expires_at <= $2
		ORDER BY expires_at ASC
		LIMIT $3`,
		string(domain.InvoiceStatusPending), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired pending invoices: %w", err)
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice row: %w", err)
		}
		invoices = append(invoices, *invoice)
	}
	return invoices, rows.Err()
}

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	invoice := &domain.Invoice{}
	var status string
	var metadata []byte
	err := row.Scan(
		&invoice.ID, &invoice.MerchantID, &invoice.Env, &invoice.Principal, &invoice.ReferenceID,
		&invoice.BaseAmount, &invoice.UniqueSuffix, &invoice.FinalAmount, &status,
		&invoice.QRISString, &metadata, &invoice.CreatedAt, &invoice.ExpiresAt, &invoice.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	invoice.Status = domain.InvoiceStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &invoice.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal invoice metadata: %w", err)
		}
	}
	return invoice, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
