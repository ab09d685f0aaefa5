package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qris-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// PendingTxRepo implements ports.PendingTxRepository.
type PendingTxRepo struct {
	pool Pool
}

// NewPendingTxRepo creates a new PendingTxRepo.
func NewPendingTxRepo(pool Pool) *PendingTxRepo {
	return &PendingTxRepo{pool: pool}
}

// Insert claims a unique suffix for a principal/env. A losing race on
// the (principal, env, unique_suffix) unique constraint surfaces as
// domain.ErrSuffixConflict so the invoice service can retry.
func (r *PendingTxRepo) Insert(ctx context.Context, tx pgx.Tx, p *domain.PendingTransaction) error {
	_, err := tx.Exec(ctx, `INSERT INTO pending_transactions
		(invoice_id, principal, env, unique_suffix, final_amount, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.InvoiceID, p.Principal, p.Env, p.UniqueSuffix, p.FinalAmount, p.CreatedAt, p.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrSuffixConflict
		}
		return fmt.Errorf("insert pending transaction: %w", err)
	}
	return nil
}

// GetByInvoiceID fetches the pending claim for an invoice, or nil if
// it has already been deleted (paid, expired, or cancelled).
func (r *PendingTxRepo) GetByInvoiceID(ctx context.Context, invoiceID uuid.UUID) (*domain.PendingTransaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT invoice_id, principal, env, unique_suffix, final_amount, created_at, expires_at
		FROM pending_transactions WHERE invoice_id = $1`, invoiceID)

	p := &domain.PendingTransaction{}
	err := row.Scan(&p.InvoiceID, &p.Principal, &p.Env, &p.UniqueSuffix, &p.FinalAmount, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pending transaction: %w", err)
	}
	return p, nil
}

// Delete removes the pending claim, freeing its suffix for reuse.
func (r *PendingTxRepo) Delete(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) error {
	_, err := tx.Exec(ctx, `DELETE FROM pending_transactions WHERE invoice_id = $1`, invoiceID)
	if err != nil {
		return fmt.Errorf("delete pending transaction: %w", err)
	}
	return nil
}

// ListClaimedSuffixes returns the set of suffixes currently claimed
// for a principal/env, for the allocator to scan against.
func (r *PendingTxRepo) ListClaimedSuffixes(ctx context.Context, principal string, env domain.Env) (map[int]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT unique_suffix FROM pending_transactions
		WHERE principal = $1 AND env = $2`, principal, env,
	)
	if err != nil {
		return nil, fmt.Errorf("list claimed suffixes: %w", err)
	}
	defer rows.Close()

	claimed := make(map[int]bool)
	for rows.Next() {
		var suffix int
		if err := rows.Scan(&suffix); err != nil {
			return nil, fmt.Errorf("scan claimed suffix: %w", err)
		}
		claimed[suffix] = true
	}
	return claimed, rows.Err()
}

// DeleteExpired sweeps pending claims past their expiry.
func (r *PendingTxRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pending_transactions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired pending transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}
