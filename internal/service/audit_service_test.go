package service

import (
	"context"
	"testing"
	"time"

	"qris-gateway/internal/core/domain"

	"github.com/google/uuid"
)

type fakeAuditRepository struct {
	created chan *domain.AuditLog
}

func newFakeAuditRepository() *fakeAuditRepository {
	return &fakeAuditRepository{created: make(chan *domain.AuditLog, 1)}
}

func (f *fakeAuditRepository) Create(ctx context.Context, log *domain.AuditLog) error {
	f.created <- log
	return nil
}

func TestAuditService_Log_PersistsToRepo(t *testing.T) {
	repo := newFakeAuditRepository()
	svc := NewAuditService(repo, newTestLogger())

	merchantID := uuid.New()
	svc.Log(context.Background(), &domain.AuditLog{
		ID:           uuid.New(),
		MerchantID:   &merchantID,
		Action:       domain.AuditActionInvoiceCreate,
		ResourceType: "invoice",
		ResourceID:   uuid.New().String(),
		IPAddress:    "127.0.0.1",
		CreatedAt:    time.Now(),
	})

	select {
	case log := <-repo.created:
		if log.Action != domain.AuditActionInvoiceCreate {
			t.Errorf("expected INVOICE_CREATE, got %s", log.Action)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("audit log not persisted in time")
	}
}

func TestAuditService_Log_NilRepo(t *testing.T) {
	svc := NewAuditService(nil, newTestLogger())

	merchantID := uuid.New()
	// Should not panic
	svc.Log(context.Background(), &domain.AuditLog{
		ID:           uuid.New(),
		MerchantID:   &merchantID,
		Action:       domain.AuditActionRotateKeys,
		ResourceType: "credentials",
		IPAddress:    "127.0.0.1",
		CreatedAt:    time.Now(),
	})

	time.Sleep(50 * time.Millisecond) // let goroutine run
}
