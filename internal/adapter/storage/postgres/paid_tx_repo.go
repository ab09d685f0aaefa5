package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qris-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// PaidTxRepo implements ports.PaidTxRepository.
type PaidTxRepo struct {
	pool Pool
}

// NewPaidTxRepo creates a new PaidTxRepo.
func NewPaidTxRepo(pool Pool) *PaidTxRepo {
	return &PaidTxRepo{pool: pool}
}

// Insert records a successful payment in the durable paid-tx table,
// backing the Redis paid cache's fast path.
func (r *PaidTxRepo) Insert(ctx context.Context, tx pgx.Tx, p *domain.PaidTransaction) error {
	_, err := tx.Exec(ctx, `INSERT INTO paid_transactions (principal, final_amount, env, paid_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.Principal, p.FinalAmount, p.Env, p.PaidAt, p.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert paid transaction: %w", err)
	}
	return nil
}

// Get looks up a still-valid paid transaction by (principal, amount, env).
func (r *PaidTxRepo) Get(ctx context.Context, principal string, finalAmount int64, env domain.Env) (*domain.PaidTransaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT principal, final_amount, env, paid_at, expires_at
		FROM paid_transactions
		WHERE principal = $1 AND final_amount = $2 AND env = $3
		ORDER BY paid_at DESC LIMIT 1`, principal, finalAmount, env,
	)

	p := &domain.PaidTransaction{}
	err := row.Scan(&p.Principal, &p.FinalAmount, &p.Env, &p.PaidAt, &p.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get paid transaction: %w", err)
	}
	return p, nil
}

// DeleteExpired sweeps paid-tx rows past their cache TTL.
func (r *PaidTxRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM paid_transactions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired paid transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}
