package ports

import (
	"context"
	"time"

	"qris-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EncryptionService handles AES-256-GCM encryption/decryption of
// secrets at rest (signing/webhook secrets, upstream bearer tokens).
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification for
// both the inbound signed-request pipeline and outbound webhooks.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, pathWithQuery string, timestamp int64, nonce string, bodyRaw string) string
}

// TokenService issues and validates bearer tokens used by the upstream
// adapter's optional bearer-auth mode (C8). It has no role in the
// gateway's own inbound surface, which is HMAC-only.
type TokenService interface {
	Generate(merchantID uuid.UUID, subject string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	MerchantID uuid.UUID
	Subject    string
}

// NonceStore manages nonce uniqueness for replay attack prevention.
// Backed by a strongly-consistent store (Postgres or Redis with a
// unique constraint/SETNX semantics); approximation is not acceptable
// here, unlike the rate limiter.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if the nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, merchantID uuid.UUID, nonce string, ttl time.Duration) (bool, error)
}

// PaidCache is the Redis-layer short-TTL payment success cache (fast
// path for repeated check calls), mirroring PaidTxRepository but
// backed by a volatile store.
type PaidCache interface {
	Get(ctx context.Context, principal string, finalAmount int64, env domain.Env) (*domain.PaidTransaction, error)
	Set(ctx context.Context, p *domain.PaidTransaction, ttl time.Duration) error
}

// RateLimiter is a token-bucket/fixed-window limiter keyed by merchant.
type RateLimiter interface {
	Allow(ctx context.Context, merchantID uuid.UUID, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult describes the outcome of a rate-limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// QRISCodec parses and renders EMV-style QRIS TLV payloads (C1). It is
// pure and stateless: deterministic and bit-identical across runs for
// the same inputs.
type QRISCodec interface {
	// Inject produces a dynamic QRIS payload carrying amount, derived
	// from a static source payload.
	Inject(staticSource string, amount int64) (string, error)
	// Validate recomputes the checksum over a payload and compares it
	// to the trailing tag-63 value.
	Validate(payload string) error
}

// UpstreamCredit is one credit/debit record returned by the upstream
// provider for a principal.
type UpstreamCredit struct {
	Amount int64
	Status string // "IN" or "OUT"
}

// UpstreamAdapter is the narrow interface to the upstream QRIS
// provider (C8). It is the only component aware of the upstream API's
// transport.
type UpstreamAdapter interface {
	FetchCredits(ctx context.Context, principal string, token string) ([]UpstreamCredit, error)
}

// --- Service ports (business logic) ---

// CredentialService handles API key minting, fingerprinting and
// rotation (C3).
type CredentialService interface {
	Mint(ctx context.Context, merchantID uuid.UUID, env domain.Env) (apiKey string, webhookSecret string, err error)
	Rotate(ctx context.Context, merchantID uuid.UUID, env domain.Env) (apiKey string, webhookSecret string, err error)
	Resolve(ctx context.Context, apiKey string) (merchantID uuid.UUID, env domain.Env, err error)
}

// InvoiceService implements the invoice lifecycle (C5).
type InvoiceService interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (*domain.Invoice, error)
	Check(ctx context.Context, merchantID uuid.UUID, invoiceID uuid.UUID, username, token string) (*domain.Invoice, error)
	Get(ctx context.Context, merchantID uuid.UUID, invoiceID uuid.UUID) (*domain.Invoice, error)
	List(ctx context.Context, params InvoiceListParams) ([]domain.Invoice, error)
	ListEvents(ctx context.Context, merchantID uuid.UUID, invoiceID uuid.UUID, limit int) ([]domain.InvoiceEvent, error)
	RequestRefund(ctx context.Context, merchantID uuid.UUID, invoiceID uuid.UUID, amount *int64, reason string) (*domain.Invoice, error)
	// ExpirePending scans up to limit expired pending invoices and
	// transitions them, called by the scheduler.
	ExpirePending(ctx context.Context, limit int) (int, error)
}

// CreateInvoiceRequest holds validated input for invoice creation.
type CreateInvoiceRequest struct {
	MerchantID  uuid.UUID
	Env         domain.Env
	Principal   string
	Token       string // upstream credential, not persisted
	BaseAmount  int64
	QRISStatic  string
	ReferenceID *string
	Metadata    map[string]any
}

// WebhookService enqueues outbound webhook notifications (C6).
type WebhookService interface {
	EnqueueWebhook(ctx context.Context, tx pgx.Tx, invoice *domain.Invoice, eventType domain.InvoiceEventType) error
}

// WebhookWorker drains due webhook deliveries in batches (C6/C7).
type WebhookWorker interface {
	RunBatch(ctx context.Context, batchSize int) (delivered int, failed int, err error)
}

// SchedulerTask is one unit of periodic work invoked by the scheduler (C7).
type SchedulerTask interface {
	Run(ctx context.Context) error
	Name() string
}

// AuditService records gateway actions for operational audit, fire
// and forget so the request path never blocks on it.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
