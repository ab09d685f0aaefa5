package postgres

import (
	"context"
	"errors"
	"fmt"

	"qris-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CredentialsRepo implements ports.CredentialsRepository.
type CredentialsRepo struct {
	pool Pool
}

// NewCredentialsRepo creates a new CredentialsRepo.
func NewCredentialsRepo(pool Pool) *CredentialsRepo {
	return &CredentialsRepo{pool: pool}
}

const credentialsColumns = `
	merchant_id,
	production_api_key_hash, production_api_key_prefix, production_api_secret_enc,
	production_webhook_secret_enc, production_created_at, production_rotated_at,
	sandbox_api_key_hash, sandbox_api_key_prefix, sandbox_api_secret_enc,
	sandbox_webhook_secret_enc, sandbox_created_at, sandbox_rotated_at`

// Create inserts the initial (empty) credentials row for a merchant;
// RotateEnv fills in each environment's key material afterward.
func (r *CredentialsRepo) Create(ctx context.Context, creds *domain.MerchantCredentials) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO merchant_credentials (`+credentialsColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		creds.MerchantID,
		creds.Production.APIKeyHash, creds.Production.APIKeyPrefix, creds.Production.APISecret,
		creds.Production.WebhookSecret, creds.Production.CreatedAt, creds.Production.RotatedAt,
		creds.Sandbox.APIKeyHash, creds.Sandbox.APIKeyPrefix, creds.Sandbox.APISecret,
		creds.Sandbox.WebhookSecret, creds.Sandbox.CreatedAt, creds.Sandbox.RotatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert merchant credentials: %w", err)
	}
	return nil
}

// Get fetches a merchant's full credential record.
func (r *CredentialsRepo) Get(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantCredentials, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+credentialsColumns+` FROM merchant_credentials WHERE merchant_id = $1`, merchantID)
	creds := &domain.MerchantCredentials{}
	err := row.Scan(
		&creds.MerchantID,
		&creds.Production.APIKeyHash, &creds.Production.APIKeyPrefix, &creds.Production.APISecret,
		&creds.Production.WebhookSecret, &creds.Production.CreatedAt, &creds.Production.RotatedAt,
		&creds.Sandbox.APIKeyHash, &creds.Sandbox.APIKeyPrefix, &creds.Sandbox.APISecret,
		&creds.Sandbox.WebhookSecret, &creds.Sandbox.CreatedAt, &creds.Sandbox.RotatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get merchant credentials: %w", err)
	}
	return creds, nil
}

// LookupByHash resolves an API key's fingerprint to its owning
// merchant and environment, checking both columns in one query.
func (r *CredentialsRepo) LookupByHash(ctx context.Context, apiKeyHash string) (uuid.UUID, domain.Env, error) {
	row := r.pool.QueryRow(ctx, `SELECT merchant_id,
		CASE WHEN production_api_key_hash = $1 THEN 'production' ELSE 'sandbox' END
		FROM merchant_credentials
		WHERE production_api_key_hash = $1 OR sandbox_api_key_hash = $1`, apiKeyHash)

	var merchantID uuid.UUID
	var env string
	if err := row.Scan(&merchantID, &env); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, "", domain.ErrCredentialsNotFound
		}
		return uuid.Nil, "", fmt.Errorf("lookup credentials by hash: %w", err)
	}
	return merchantID, domain.Env(env), nil
}

// RotateEnv overwrites one environment's key material.
func (r *CredentialsRepo) RotateEnv(ctx context.Context, merchantID uuid.UUID, env domain.Env, set domain.EnvCredentialSet) error {
	var query string
	if env == domain.EnvSandbox {
		query = `UPDATE merchant_credentials
			SET sandbox_api_key_hash = $1, sandbox_api_key_prefix = $2, sandbox_api_secret_enc = $3,
			    sandbox_webhook_secret_enc = $4, sandbox_created_at = $5, sandbox_rotated_at = $6
			WHERE merchant_id = $7`
	} else {
		query = `UPDATE merchant_credentials
			SET production_api_key_hash = $1, production_api_key_prefix = $2, production_api_secret_enc = $3,
			    production_webhook_secret_enc = $4, production_created_at = $5, production_rotated_at = $6
			WHERE merchant_id = $7`
	}
	_, err := r.pool.Exec(ctx, query,
		set.APIKeyHash, set.APIKeyPrefix, set.APISecret,
		set.WebhookSecret, set.CreatedAt, set.RotatedAt,
		merchantID,
	)
	if err != nil {
		return fmt.Errorf("rotate merchant credentials: %w", err)
	}
	return nil
}
