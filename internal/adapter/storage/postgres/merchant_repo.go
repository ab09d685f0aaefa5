package postgres

import (
	"context"
	"errors"
	"fmt"

	"qris-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MerchantRepo implements ports.MerchantRepository.
type MerchantRepo struct {
	pool Pool
}

// NewMerchantRepo creates a new MerchantRepo.
func NewMerchantRepo(pool Pool) *MerchantRepo {
	return &MerchantRepo{pool: pool}
}

const merchantColumns = `
	id, email, contact_phone, status,
	production_webhook_url, production_webhook_enabled,
	sandbox_webhook_url, sandbox_webhook_enabled,
	fee_bps, fee_fixed, ip_whitelist_enabled, ip_whitelist,
	created_at, updated_at`

// Create inserts a new merchant into the database.
func (r *MerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	query := `INSERT INTO merchants (` + merchantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.Email, m.ContactPhone, m.Status,
		m.ProductionWebhook.URL, m.ProductionWebhook.Enabled,
		m.SandboxWebhook.URL, m.SandboxWebhook.Enabled,
		m.Fee.Bps, m.Fee.Fixed, m.IPWhitelistOn, m.IPWhitelist,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert merchant: %w", err)
	}
	return nil
}

// GetByID fetches a merchant by its UUID.
func (r *MerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	return r.scanOne(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE id = $1`, id)
}

// GetByEmail fetches a merchant by its (lowercased) email address.
func (r *MerchantRepo) GetByEmail(ctx context.Context, email string) (*domain.Merchant, error) {
	return r.scanOne(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE email = $1`, email)
}

func (r *MerchantRepo) scanOne(ctx context.Context, query string, arg any) (*domain.Merchant, error) {
	m := &domain.Merchant{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&m.ID, &m.Email, &m.ContactPhone, &m.Status,
		&m.ProductionWebhook.URL, &m.ProductionWebhook.Enabled,
		&m.SandboxWebhook.URL, &m.SandboxWebhook.Enabled,
		&m.Fee.Bps, &m.Fee.Fixed, &m.IPWhitelistOn, &m.IPWhitelist,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get merchant: %w", err)
	}
	return m, nil
}

// UpdateStatus transitions a merchant's verification/suspension status.
func (r *MerchantRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.MerchantStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE merchants SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update merchant status: %w", err)
	}
	return nil
}

// UpdateWebhookConfig replaces the webhook target for one env.
func (r *MerchantRepo) UpdateWebhookConfig(ctx context.Context, id uuid.UUID, env domain.Env, cfg domain.WebhookConfig) error {
	var query string
	if env == domain.EnvSandbox {
		query = `UPDATE merchants SET sandbox_webhook_url = $1, sandbox_webhook_enabled = $2, updated_at = NOW() WHERE id = $3`
	} else {
		query = `UPDATE merchants SET production_webhook_url = $1, production_webhook_enabled = $2, updated_at = NOW() WHERE id = $3`
	}
	_, err := r.pool.Exec(ctx, query, cfg.URL, cfg.Enabled, id)
	if err != nil {
		return fmt.Errorf("update merchant webhook config: %w", err)
	}
	return nil
}
