package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"qris-gateway/internal/core/domain"
	"qris-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Merchant Repo ---

type inMemoryMerchantRepo struct {
	mu        sync.RWMutex
	merchants map[uuid.UUID]*domain.Merchant
}

func newInMemoryMerchantRepo() *inMemoryMerchantRepo {
	return &inMemoryMerchantRepo{merchants: make(map[uuid.UUID]*domain.Merchant)}
}

func (r *inMemoryMerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.merchants[m.ID] = &cp
	return nil
}

func (r *inMemoryMerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.merchants[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *inMemoryMerchantRepo) GetByEmail(ctx context.Context, email string) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.merchants {
		if m.Email == email {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryMerchantRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.MerchantStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.merchants[id]
	if !ok {
		return nil
	}
	m.Status = status
	m.UpdatedAt = time.Now()
	return nil
}

func (r *inMemoryMerchantRepo) UpdateWebhookConfig(ctx context.Context, id uuid.UUID, env domain.Env, cfg domain.WebhookConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.merchants[id]
	if !ok {
		return nil
	}
	if env == domain.EnvSandbox {
		m.SandboxWebhook = cfg
	} else {
		m.ProductionWebhook = cfg
	}
	m.UpdatedAt = time.Now()
	return nil
}

// --- In-Memory Credentials Repo ---

type inMemoryCredentialsRepo struct {
	mu    sync.RWMutex
	creds map[uuid.UUID]*domain.MerchantCredentials
}

func newInMemoryCredentialsRepo() *inMemoryCredentialsRepo {
	return &inMemoryCredentialsRepo{creds: make(map[uuid.UUID]*domain.MerchantCredentials)}
}

func (r *inMemoryCredentialsRepo) Create(ctx context.Context, creds *domain.MerchantCredentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *creds
	r.creds[creds.MerchantID] = &cp
	return nil
}

func (r *inMemoryCredentialsRepo) Get(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantCredentials, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.creds[merchantID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *inMemoryCredentialsRepo) LookupByHash(ctx context.Context, apiKeyHash string) (uuid.UUID, domain.Env, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, c := range r.creds {
		if c.Production.APIKeyHash == apiKeyHash {
			return id, domain.EnvProduction, nil
		}
		if c.Sandbox.APIKeyHash == apiKeyHash {
			return id, domain.EnvSandbox, nil
		}
	}
	return uuid.Nil, "", domain.ErrCredentialsNotFound
}

func (r *inMemoryCredentialsRepo) RotateEnv(ctx context.Context, merchantID uuid.UUID, env domain.Env, set domain.EnvCredentialSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[merchantID]
	if !ok {
		c = &domain.MerchantCredentials{MerchantID: merchantID}
		r.creds[merchantID] = c
	}
	*c.ForEnv(env) = set
	return nil
}

// --- In-Memory Invoice Repo ---

type inMemoryInvoiceRepo struct {
	mu       sync.RWMutex
	invoices map[uuid.UUID]*domain.Invoice
}

func newInMemoryInvoiceRepo() *inMemoryInvoiceRepo {
	return &inMemoryInvoiceRepo{invoices: make(map[uuid.UUID]*domain.Invoice)}
}

func (r *inMemoryInvoiceRepo) Create(ctx context.Context, tx pgx.Tx, invoice *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *invoice
	r.invoices[invoice.ID] = &cp
	return nil
}

func (r *inMemoryInvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (r *inMemoryInvoiceRepo) List(ctx context.Context, params ports.InvoiceListParams) ([]domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []domain.Invoice
	for _, inv := range r.invoices {
		if inv.MerchantID == params.MerchantID && inv.Env == params.Env {
			matched = append(matched, *inv)
		}
	}
	start := params.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + params.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (r *inMemoryInvoiceRepo) TransitionStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.InvoiceStatus, paidAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok || inv.Status != from {
		return false, nil
	}
	inv.Status = to
	inv.PaidAt = paidAt
	return true, nil
}

func (r *inMemoryInvoiceRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var expired []domain.Invoice
	for _, inv := range r.invoices {
		if inv.Status == domain.InvoiceStatusPending && !inv.ExpiresAt.After(now) {
			expired = append(expired, *inv)
			if len(expired) >= limit {
				break
			}
		}
	}
	return expired, nil
}

// --- In-Memory Event Repo ---

type inMemoryEventRepo struct {
	mu     sync.RWMutex
	events map[uuid.UUID][]domain.InvoiceEvent
}

func newInMemoryEventRepo() *inMemoryEventRepo {
	return &inMemoryEventRepo{events: make(map[uuid.UUID][]domain.InvoiceEvent)}
}

func (r *inMemoryEventRepo) Append(ctx context.Context, tx pgx.Tx, event *domain.InvoiceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event.InvoiceID] = append(r.events[event.InvoiceID], *event)
	return nil
}

func (r *inMemoryEventRepo) ListByInvoice(ctx context.Context, invoiceID uuid.UUID, limit int) ([]domain.InvoiceEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := r.events[invoiceID]
	// newest first, like the real repo's ORDER BY created_at DESC.
	out := make([]domain.InvoiceEvent, len(events))
	for i, e := range events {
		out[len(events)-1-i] = e
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- In-Memory Pending Tx Repo ---

type inMemoryPendingTxRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*domain.PendingTransaction
	claimed map[string]bool // principal|env|suffix
}

func newInMemoryPendingTxRepo() *inMemoryPendingTxRepo {
	return &inMemoryPendingTxRepo{
		byID:    make(map[uuid.UUID]*domain.PendingTransaction),
		claimed: make(map[string]bool),
	}
}

func claimKey(principal string, env domain.Env, suffix int) string {
	return fmt.Sprintf("%s|%s|%d", principal, env, suffix)
}

func (r *inMemoryPendingTxRepo) Insert(ctx context.Context, tx pgx.Tx, p *domain.PendingTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := claimKey(p.Principal, p.Env, p.UniqueSuffix)
	if r.claimed[key] {
		return domain.ErrSuffixConflict
	}
	r.claimed[key] = true
	cp := *p
	r.byID[p.InvoiceID] = &cp
	return nil
}

func (r *inMemoryPendingTxRepo) GetByInvoiceID(ctx context.Context, invoiceID uuid.UUID) (*domain.PendingTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[invoiceID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryPendingTxRepo) Delete(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[invoiceID]
	if !ok {
		return nil
	}
	delete(r.claimed, claimKey(p.Principal, p.Env, p.UniqueSuffix))
	delete(r.byID, invoiceID)
	return nil
}

func (r *inMemoryPendingTxRepo) ListClaimedSuffixes(ctx context.Context, principal string, env domain.Env) (map[int]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]bool)
	for _, p := range r.byID {
		if p.Principal == principal && p.Env == env {
			out[p.UniqueSuffix] = true
		}
	}
	return out, nil
}

func (r *inMemoryPendingTxRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, p := range r.byID {
		if !p.ExpiresAt.After(now) {
			delete(r.claimed, claimKey(p.Principal, p.Env, p.UniqueSuffix))
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

// --- In-Memory Paid Tx Repo ---

type inMemoryPaidTxRepo struct {
	mu   sync.Mutex
	rows []domain.PaidTransaction
}

func newInMemoryPaidTxRepo() *inMemoryPaidTxRepo {
	return &inMemoryPaidTxRepo{}
}

func (r *inMemoryPaidTxRepo) Insert(ctx context.Context, tx pgx.Tx, p *domain.PaidTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *p)
	return nil
}

func (r *inMemoryPaidTxRepo) Get(ctx context.Context, principal string, finalAmount int64, env domain.Env) (*domain.PaidTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.rows) - 1; i >= 0; i-- {
		p := r.rows[i]
		if p.Principal == principal && p.FinalAmount == finalAmount && p.Env == env {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPaidTxRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []domain.PaidTransaction
	var n int64
	for _, p := range r.rows {
		if p.ExpiresAt.After(now) {
			kept = append(kept, p)
		} else {
			n++
		}
	}
	r.rows = kept
	return n, nil
}

// --- In-Memory Webhook Repo ---

type inMemoryWebhookRepo struct {
	mu         sync.Mutex
	deliveries map[uuid.UUID]*domain.WebhookDelivery
}

func newInMemoryWebhookRepo() *inMemoryWebhookRepo {
	return &inMemoryWebhookRepo{deliveries: make(map[uuid.UUID]*domain.WebhookDelivery)}
}

func (r *inMemoryWebhookRepo) Enqueue(ctx context.Context, tx pgx.Tx, d *domain.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.deliveries[d.ID] = &cp
	return nil
}

func (r *inMemoryWebhookRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []domain.WebhookDelivery
	for _, d := range r.deliveries {
		if d.Status == domain.WebhookStatusQueued && !d.NextRetryAt.After(now) {
			due = append(due, *d)
			if len(due) >= limit {
				break
			}
		}
	}
	return due, nil
}

func (r *inMemoryWebhookRepo) MarkResult(ctx context.Context, d *domain.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.deliveries[d.ID] = &cp
	return nil
}

// --- In-Memory Alert Repo ---

type inMemoryAlertRepo struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func newInMemoryAlertRepo() *inMemoryAlertRepo {
	return &inMemoryAlertRepo{}
}

func (r *inMemoryAlertRepo) Insert(ctx context.Context, a *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, *a)
	return nil
}

func (r *inMemoryAlertRepo) List(ctx context.Context, merchantID *uuid.UUID, unresolvedOnly bool) ([]domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Alert
	for _, a := range r.alerts {
		if merchantID != nil && (a.MerchantID == nil || *a.MerchantID != *merchantID) {
			continue
		}
		if unresolvedOnly && a.IsResolved() {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *inMemoryAlertRepo) Resolve(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for i := range r.alerts {
		if r.alerts[i].ID == id {
			r.alerts[i].ResolvedAt = &now
		}
	}
	return nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu   sync.Mutex
	logs []domain.AuditLog
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation: the in-memory repos above
// apply writes immediately under their own mutex, so there is nothing
// for Commit/Rollback to do.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }

// --- Fake Upstream Adapter ---

// fakeUpstreamAdapter returns a fixed, mutable set of credits per
// principal, standing in for the real QRIS settlement provider.
type fakeUpstreamAdapter struct {
	mu      sync.Mutex
	credits map[string][]ports.UpstreamCredit
	err     error
}

func newFakeUpstreamAdapter() *fakeUpstreamAdapter {
	return &fakeUpstreamAdapter{credits: make(map[string][]ports.UpstreamCredit)}
}

func (f *fakeUpstreamAdapter) setCredits(principal string, credits []ports.UpstreamCredit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits[principal] = credits
}

func (f *fakeUpstreamAdapter) FetchCredits(ctx context.Context, principal string, token string) ([]ports.UpstreamCredit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.credits[principal], nil
}

// --- Fake HTTP Client (webhook delivery) ---

// fakeHTTPClient lets tests control webhook delivery outcomes without
// a real listener; it implements the narrow HTTPClient shape the
// webhook worker depends on.
type fakeHTTPClient struct {
	mu        sync.Mutex
	responses []fakeHTTPResponse
	calls     int
}

type fakeHTTPResponse struct {
	status int
	err    error
}

func newFakeHTTPClient(responses ...fakeHTTPResponse) *fakeHTTPClient {
	return &fakeHTTPClient{responses: responses}
}

func (f *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var r fakeHTTPResponse
	if f.calls < len(f.responses) {
		r = f.responses[f.calls]
	} else if len(f.responses) > 0 {
		r = f.responses[len(f.responses)-1]
	} else {
		r = fakeHTTPResponse{status: http.StatusOK}
	}
	f.calls++

	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: r.status,
		Body:       io.NopCloser(bytes.NewReader([]byte(`{}`))),
		Header:     make(http.Header),
	}, nil
}
