package postgres

import (
	"context"
	"fmt"
)

// migration is one additive, idempotent schema change. Order matters:
// later migrations may assume earlier ones already ran.
type migration struct {
	version     int
	description string
	sql         string
}

var migrations = []migration{
	{
		version:     1,
		description: "merchants and credentials",
		sql: `
			CREATE TABLE IF NOT EXISTS merchants (
				id UUID PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				contact_phone TEXT,
				status TEXT NOT NULL,
				production_webhook_url TEXT,
				production_webhook_enabled BOOLEAN NOT NULL DEFAULT FALSE,
				sandbox_webhook_url TEXT,
				sandbox_webhook_enabled BOOLEAN NOT NULL DEFAULT FALSE,
				fee_bps INTEGER NOT NULL DEFAULT 0,
				fee_fixed BIGINT NOT NULL DEFAULT 0,
				ip_whitelist_enabled BOOLEAN NOT NULL DEFAULT FALSE,
				ip_whitelist TEXT[],
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			);

			CREATE TABLE IF NOT EXISTS merchant_credentials (
				merchant_id UUID PRIMARY KEY REFERENCES merchants(id) ON DELETE CASCADE,
				production_api_key_hash TEXT,
				production_api_key_prefix TEXT,
				production_api_secret_enc BYTEA,
				production_webhook_secret_enc BYTEA,
				production_created_at TIMESTAMPTZ,
				production_rotated_at TIMESTAMPTZ,
				sandbox_api_key_hash TEXT,
				sandbox_api_key_prefix TEXT,
				sandbox_api_secret_enc BYTEA,
				sandbox_webhook_secret_enc BYTEA,
				sandbox_created_at TIMESTAMPTZ,
				sandbox_rotated_at TIMESTAMPTZ
			);

			CREATE INDEX IF NOT EXISTS idx_merchant_credentials_prod_key ON merchant_credentials(production_api_key_hash);
			CREATE INDEX IF NOT EXISTS idx_merchant_credentials_sandbox_key ON merchant_credentials(sandbox_api_key_hash);
		`,
	},
	{
		version:     2,
		description: "invoices and invoice events",
		sql: `
			CREATE TABLE IF NOT EXISTS invoices (
				id UUID PRIMARY KEY,
				merchant_id UUID NOT NULL REFERENCES merchants(id) ON DELETE CASCADE,
				env TEXT NOT NULL,
				principal TEXT NOT NULL,
				reference_id TEXT,
				base_amount BIGINT NOT NULL,
				unique_suffix INTEGER NOT NULL,
				final_amount BIGINT NOT NULL,
				status TEXT NOT NULL,
				qris_string TEXT NOT NULL,
				metadata JSONB,
				created_at TIMESTAMPTZ NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL,
				paid_at TIMESTAMPTZ
			);

			CREATE INDEX IF NOT EXISTS idx_invoices_merchant_env ON invoices(merchant_id, env, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_invoices_status_expires ON invoices(status, expires_at);

			CREATE TABLE IF NOT EXISTS invoice_events (
				id UUID PRIMARY KEY,
				invoice_id UUID NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
				event_type TEXT NOT NULL,
				payload JSONB,
				created_at TIMESTAMPTZ NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_invoice_events_invoice ON invoice_events(invoice_id, created_at DESC);
		`,
	},
	{
		version:     3,
		description: "paid and pending transaction ledgers",
		sql: `
			CREATE TABLE IF NOT EXISTS paid_transactions (
				principal TEXT NOT NULL,
				final_amount BIGINT NOT NULL,
				env TEXT NOT NULL,
				paid_at TIMESTAMPTZ NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_paid_transactions_lookup ON paid_transactions(principal, final_amount, env, paid_at DESC);
			CREATE INDEX IF NOT EXISTS idx_paid_transactions_expires ON paid_transactions(expires_at);

			CREATE TABLE IF NOT EXISTS pending_transactions (
				invoice_id UUID PRIMARY KEY REFERENCES invoices(id) ON DELETE CASCADE,
				principal TEXT NOT NULL,
				env TEXT NOT NULL,
				unique_suffix INTEGER NOT NULL,
				final_amount BIGINT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL,
				UNIQUE (principal, env, unique_suffix)
			);

			CREATE INDEX IF NOT EXISTS idx_pending_transactions_expires ON pending_transactions(expires_at);
		`,
	},
	{
		version:     4,
		description: "webhook deliveries and operational alerts",
		sql: `
			CREATE TABLE IF NOT EXISTS webhook_deliveries (
				id UUID PRIMARY KEY,
				merchant_id UUID NOT NULL REFERENCES merchants(id) ON DELETE CASCADE,
				env TEXT NOT NULL,
				invoice_id UUID NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
				event_type TEXT NOT NULL,
				payload JSONB NOT NULL,
				status TEXT NOT NULL,
				attempt_count INTEGER NOT NULL DEFAULT 0,
				next_retry_at TIMESTAMPTZ NOT NULL,
				last_http_status INTEGER,
				last_error TEXT,
				response_snippet TEXT,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_due ON webhook_deliveries(status, next_retry_at);
			CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_invoice ON webhook_deliveries(invoice_id);

			CREATE TABLE IF NOT EXISTS alerts (
				id UUID PRIMARY KEY,
				merchant_id UUID REFERENCES merchants(id) ON DELETE CASCADE,
				type TEXT NOT NULL,
				message TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				resolved_at TIMESTAMPTZ
			);

			CREATE INDEX IF NOT EXISTS idx_alerts_merchant ON alerts(merchant_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_alerts_unresolved ON alerts(resolved_at) WHERE resolved_at IS NULL;
		`,
	},
	{
		version:     5,
		description: "audit logs",
		sql: `
			CREATE TABLE IF NOT EXISTS audit_logs (
				id UUID PRIMARY KEY,
				merchant_id UUID,
				action TEXT NOT NULL,
				resource_type TEXT NOT NULL,
				resource_id TEXT,
				details JSONB,
				ip_address TEXT,
				created_at TIMESTAMPTZ NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_audit_logs_merchant ON audit_logs(merchant_id, created_at DESC);
		`,
	},
}

// InstallSchema applies every migration not yet recorded in
// schema_migrations, in order, each inside its own transaction. Every
// statement is IF NOT EXISTS / ON CONFLICT DO NOTHING, so re-running
// InstallSchema against an already-current database is a no-op.
func InstallSchema(ctx context.Context, pool Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		applied, err := migrationApplied(ctx, pool, m.version)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if applied {
			continue
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(ctx, m.sql); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.description, err)
		}

		_, err = tx.Exec(ctx, `INSERT INTO schema_migrations (version, description) VALUES ($1, $2)
			ON CONFLICT (version) DO NOTHING`, m.version, m.description)
		if err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

func migrationApplied(ctx context.Context, pool Pool, version int) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
