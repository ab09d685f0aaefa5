package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"qris-gateway/internal/core/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type fakeAuditService struct {
	logged chan *domain.AuditLog
}

func newFakeAuditService() *fakeAuditService {
	return &fakeAuditService{logged: make(chan *domain.AuditLog, 1)}
}

func (f *fakeAuditService) Log(ctx context.Context, entry *domain.AuditLog) {
	f.logged <- entry
}

func TestAuditLog_InvoiceCreateSuccess(t *testing.T) {
	auditSvc := newFakeAuditService()

	r := gin.New()
	r.Use(AuditLog(auditSvc))
	r.POST("/invoices", func(c *gin.Context) {
		c.Set(CtxMerchantID, uuid.New())
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	select {
	case log := <-auditSvc.logged:
		assert.Equal(t, domain.AuditActionInvoiceCreate, log.Action)
		assert.Equal(t, "invoice", log.ResourceType)
	case <-time.After(time.Second):
		t.Fatal("audit not called")
	}
}

func TestAuditLog_SkipsGET(t *testing.T) {
	auditSvc := newFakeAuditService()

	r := gin.New()
	r.Use(AuditLog(auditSvc))
	r.GET("/invoices", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"items": []string{}})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/invoices", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	select {
	case <-auditSvc.logged:
		t.Fatal("audit should not fire for GET")
	default:
	}
}

func TestAuditLog_SkipsFailedRequests(t *testing.T) {
	auditSvc := newFakeAuditService()

	r := gin.New()
	r.Use(AuditLog(auditSvc))
	r.POST("/invoices", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	select {
	case <-auditSvc.logged:
		t.Fatal("audit should not fire for a 4xx response")
	default:
	}
}

func TestMapPathToAction(t *testing.T) {
	tests := []struct {
		path     string
		method   string
		action   domain.AuditAction
		resource string
	}{
		{"/invoices", "POST", domain.AuditActionInvoiceCreate, "invoice"},
		{"/invoices/abc-123/check", "POST", domain.AuditActionInvoiceCheck, "invoice"},
		{"/invoices/abc-123/refunds", "POST", domain.AuditActionRefund, "invoice"},
		{"/invoices", "GET", "", ""},
		{"/unknown", "POST", "", ""},
	}

	for _, tc := range tests {
		action, resource := mapPathToAction(tc.path, tc.method)
		assert.Equal(t, tc.action, action, "path=%s method=%s", tc.path, tc.method)
		assert.Equal(t, tc.resource, resource, "path=%s method=%s", tc.path, tc.method)
	}
}
