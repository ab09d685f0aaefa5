package ports

import (
	"context"
	"time"

	"qris-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MerchantRepository defines persistence operations for merchants.
type MerchantRepository interface {
	Create(ctx context.Context, merchant *domain.Merchant) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error)
	GetByEmail(ctx context.Context, email string) (*domain.Merchant, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.MerchantStatus) error
	UpdateWebhookConfig(ctx context.Context, id uuid.UUID, env domain.Env, cfg domain.WebhookConfig) error
}

// CredentialsRepository defines persistence operations for per-merchant,
// per-env key material. LookupByHash checks both production and
// sandbox hashes in a single query.
type CredentialsRepository interface {
	Create(ctx context.Context, creds *domain.MerchantCredentials) error
	Get(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantCredentials, error)
	LookupByHash(ctx context.Context, apiKeyHash string) (merchantID uuid.UUID, env domain.Env, err error)
	RotateEnv(ctx context.Context, merchantID uuid.UUID, env domain.Env, set domain.EnvCredentialSet) error
}

// InvoiceRepository defines persistence operations for invoices.
type InvoiceRepository interface {
	Create(ctx context.Context, tx pgx.Tx, invoice *domain.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	List(ctx context.Context, params InvoiceListParams) ([]domain.Invoice, error)
	// TransitionStatus performs `UPDATE ... WHERE status = from`, returning
	// false if another writer already moved the row (zero rows affected).
	TransitionStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.InvoiceStatus, paidAt *time.Time) (bool, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Invoice, error)
}

// InvoiceListParams holds filter + pagination for listing invoices.
type InvoiceListParams struct {
	MerchantID uuid.UUID
	Env        domain.Env
	Limit      int // <= 200
	Offset     int
}

// EventRepository defines persistence for the invoice event log.
type EventRepository interface {
	Append(ctx context.Context, tx pgx.Tx, event *domain.InvoiceEvent) error
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID, limit int) ([]domain.InvoiceEvent, error)
}

// PendingTxRepository manages the short-lived suffix-claim table.
type PendingTxRepository interface {
	Insert(ctx context.Context, tx pgx.Tx, p *domain.PendingTransaction) error
	GetByInvoiceID(ctx context.Context, invoiceID uuid.UUID) (*domain.PendingTransaction, error)
	Delete(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) error
	ListClaimedSuffixes(ctx context.Context, principal string, env domain.Env) (map[int]bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PaidTxRepository manages the short-TTL payment success cache.
type PaidTxRepository interface {
	Insert(ctx context.Context, tx pgx.Tx, p *domain.PaidTransaction) error
	Get(ctx context.Context, principal string, finalAmount int64, env domain.Env) (*domain.PaidTransaction, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// WebhookRepository defines persistence operations for outbound
// webhook deliveries.
type WebhookRepository interface {
	Enqueue(ctx context.Context, tx pgx.Tx, d *domain.WebhookDelivery) error
	// ListDue returns up to limit queued deliveries whose
	// next_retry_at has elapsed, ordered by next_retry_at ascending.
	// The returned rows are not marked as claimed.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error)
	MarkResult(ctx context.Context, d *domain.WebhookDelivery) error
}

// AlertRepository defines persistence operations for operational alerts.
type AlertRepository interface {
	Insert(ctx context.Context, a *domain.Alert) error
	List(ctx context.Context, merchantID *uuid.UUID, unresolvedOnly bool) ([]domain.Alert, error)
	Resolve(ctx context.Context, id uuid.UUID) error
}

// AuditRepository defines persistence for the gateway audit log.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
