package service

import (
	"context"
	"io"
	"testing"
	"time"

	"qris-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// fakeMerchantRepository is a minimal in-memory MerchantRepository.
type fakeMerchantRepository struct {
	byID map[uuid.UUID]*domain.Merchant
}

func newFakeMerchantRepository() *fakeMerchantRepository {
	return &fakeMerchantRepository{byID: make(map[uuid.UUID]*domain.Merchant)}
}

func (f *fakeMerchantRepository) Create(ctx context.Context, m *domain.Merchant) error {
	f.byID[m.ID] = m
	return nil
}

func (f *fakeMerchantRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	m, ok := f.byID[id]
	if !ok {
		return nil, errCredsNotFound
	}
	return m, nil
}

func (f *fakeMerchantRepository) GetByEmail(ctx context.Context, email string) (*domain.Merchant, error) {
	for _, m := range f.byID {
		if m.Email == email {
			return m, nil
		}
	}
	return nil, errCredsNotFound
}

func (f *fakeMerchantRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.MerchantStatus) error {
	m, ok := f.byID[id]
	if !ok {
		return errCredsNotFound
	}
	m.Status = status
	return nil
}

func (f *fakeMerchantRepository) UpdateWebhookConfig(ctx context.Context, id uuid.UUID, env domain.Env, cfg domain.WebhookConfig) error {
	m, ok := f.byID[id]
	if !ok {
		return errCredsNotFound
	}
	if env == domain.EnvSandbox {
		m.SandboxWebhook = cfg
	} else {
		m.ProductionWebhook = cfg
	}
	return nil
}

// fakeWebhookRepository is a minimal in-memory WebhookRepository.
type fakeWebhookRepository struct {
	enqueued []domain.WebhookDelivery
}

func (f *fakeWebhookRepository) Enqueue(ctx context.Context, tx pgx.Tx, d *domain.WebhookDelivery) error {
	f.enqueued = append(f.enqueued, *d)
	return nil
}

func (f *fakeWebhookRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	return nil, nil
}

func (f *fakeWebhookRepository) MarkResult(ctx context.Context, d *domain.WebhookDelivery) error {
	return nil
}

func testInvoice(merchantID uuid.UUID) *domain.Invoice {
	ref := "order-123"
	return &domain.Invoice{
		ID:           uuid.New(),
		MerchantID:   merchantID,
		Env:          domain.EnvProduction,
		Principal:    "merchantuser",
		ReferenceID:  &ref,
		BaseAmount:   10000,
		UniqueSuffix: 7,
		FinalAmount:  10007,
		Status:       domain.InvoiceStatusPaid,
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func TestWebhookService_EnqueueWebhook_Disabled_NoOp(t *testing.T) {
	merchantRepo := newFakeMerchantRepository()
	webhookRepo := &fakeWebhookRepository{}
	svc := NewWebhookService(merchantRepo, webhookRepo, newTestLogger())

	merchantID := uuid.New()
	merchantRepo.byID[merchantID] = &domain.Merchant{ID: merchantID, Status: domain.MerchantStatusActive}

	err := svc.EnqueueWebhook(context.Background(), nil, testInvoice(merchantID), domain.EventPaymentPaid)
	require.NoError(t, err)
	assert.Empty(t, webhookRepo.enqueued)
}

func TestWebhookService_EnqueueWebhook_Enabled_Queues(t *testing.T) {
	merchantRepo := newFakeMerchantRepository()
	webhookRepo := &fakeWebhookRepository{}
	svc := NewWebhookService(merchantRepo, webhookRepo, newTestLogger())

	merchantID := uuid.New()
	merchantRepo.byID[merchantID] = &domain.Merchant{
		ID:                merchantID,
		Status:            domain.MerchantStatusActive,
		ProductionWebhook: domain.WebhookConfig{URL: "https://merchant.example.com/webhook", Enabled: true},
	}

	invoice := testInvoice(merchantID)
	err := svc.EnqueueWebhook(context.Background(), nil, invoice, domain.EventPaymentPaid)
	require.NoError(t, err)
	require.Len(t, webhookRepo.enqueued, 1)

	d := webhookRepo.enqueued[0]
	assert.Equal(t, domain.WebhookStatusQueued, d.Status)
	assert.Equal(t, 0, d.AttemptCount)
	assert.Equal(t, domain.EventPaymentPaid, d.EventType)
	assert.Equal(t, invoice.ID, *d.InvoiceID)
	assert.Contains(t, d.Payload, "order-123")
}

func TestWebhookService_EnqueueWebhook_MerchantNotFound(t *testing.T) {
	merchantRepo := newFakeMerchantRepository()
	webhookRepo := &fakeWebhookRepository{}
	svc := NewWebhookService(merchantRepo, webhookRepo, newTestLogger())

	err := svc.EnqueueWebhook(context.Background(), nil, testInvoice(uuid.New()), domain.EventPaymentPaid)
	assert.Error(t, err)
}
