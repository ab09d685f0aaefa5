package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"qris-gateway/internal/adapter/http/dto"
	"qris-gateway/internal/adapter/http/middleware"
	"qris-gateway/internal/core/domain"
	"qris-gateway/internal/core/ports"
	"qris-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeInvoiceService struct {
	onCreate     func(req ports.CreateInvoiceRequest) (*domain.Invoice, error)
	onCheck      func(merchantID, invoiceID uuid.UUID, username, token string) (*domain.Invoice, error)
	onGet        func(merchantID, invoiceID uuid.UUID) (*domain.Invoice, error)
	onList       func(params ports.InvoiceListParams) ([]domain.Invoice, error)
	onListEvents func(merchantID, invoiceID uuid.UUID, limit int) ([]domain.InvoiceEvent, error)
	onRefund     func(merchantID, invoiceID uuid.UUID, amount *int64, reason string) (*domain.Invoice, error)
}

func (f *fakeInvoiceService) Create(ctx context.Context, req ports.CreateInvoiceRequest) (*domain.Invoice, error) {
	return f.onCreate(req)
}

func (f *fakeInvoiceService) Check(ctx context.Context, merchantID, invoiceID uuid.UUID, username, token string) (*domain.Invoice, error) {
	return f.onCheck(merchantID, invoiceID, username, token)
}

func (f *fakeInvoiceService) Get(ctx context.Context, merchantID, invoiceID uuid.UUID) (*domain.Invoice, error) {
	return f.onGet(merchantID, invoiceID)
}

func (f *fakeInvoiceService) List(ctx context.Context, params ports.InvoiceListParams) ([]domain.Invoice, error) {
	return f.onList(params)
}

func (f *fakeInvoiceService) ListEvents(ctx context.Context, merchantID, invoiceID uuid.UUID, limit int) ([]domain.InvoiceEvent, error) {
	return f.onListEvents(merchantID, invoiceID, limit)
}

func (f *fakeInvoiceService) RequestRefund(ctx context.Context, merchantID, invoiceID uuid.UUID, amount *int64, reason string) (*domain.Invoice, error) {
	return f.onRefund(merchantID, invoiceID, amount, reason)
}

func (f *fakeInvoiceService) ExpirePending(ctx context.Context, limit int) (int, error) {
	return 0, nil
}

func newTestInvoice(merchantID uuid.UUID) *domain.Invoice {
	now := time.Now()
	return &domain.Invoice{
		ID:           uuid.New(),
		MerchantID:   merchantID,
		Env:          domain.EnvProduction,
		Principal:    "cashier1",
		BaseAmount:   50000,
		UniqueSuffix: 7,
		FinalAmount:  50007,
		Status:       domain.InvoiceStatusCreated,
		QRISString:   "00020101...",
		CreatedAt:    now,
		ExpiresAt:    now.Add(10 * time.Minute),
	}
}

func contextWithMerchant(c *gin.Context, merchantID uuid.UUID, env domain.Env) {
	c.Set(middleware.CtxMerchantID, merchantID)
	c.Set(middleware.CtxEnv, env)
}

func TestInvoiceCreate_Success(t *testing.T) {
	merchantID := uuid.New()
	invoice := newTestInvoice(merchantID)

	svc := &fakeInvoiceService{
		onCreate: func(req ports.CreateInvoiceRequest) (*domain.Invoice, error) {
			assert.Equal(t, merchantID, req.MerchantID)
			assert.Equal(t, int64(50000), req.BaseAmount)
			return invoice, nil
		},
	}
	h := NewInvoiceHandler(svc)

	body, _ := json.Marshal(dto.CreateInvoiceRequest{
		Username:   "cashier1",
		Token:      "upstream-token",
		Amount:     50000,
		QRISStatic: "00020101...",
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/invoices", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	contextWithMerchant(c, merchantID, domain.EnvProduction)

	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, invoice.ID.String(), data["id"])
	assert.Equal(t, float64(50007), data["final_amount"])
}

func TestInvoiceCreate_ValidationError(t *testing.T) {
	h := NewInvoiceHandler(&fakeInvoiceService{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/invoices", bytes.NewReader([]byte("{}")))
	c.Request.Header.Set("Content-Type", "application/json")
	contextWithMerchant(c, uuid.New(), domain.EnvProduction)

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvoiceCreate_ServiceError(t *testing.T) {
	svc := &fakeInvoiceService{
		onCreate: func(req ports.CreateInvoiceRequest) (*domain.Invoice, error) {
			return nil, apperror.ErrNoSuffixAvailable()
		},
	}
	h := NewInvoiceHandler(svc)

	body, _ := json.Marshal(dto.CreateInvoiceRequest{
		Username:   "cashier1",
		Token:      "tok",
		Amount:     50000,
		QRISStatic: "qr",
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/invoices", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	contextWithMerchant(c, uuid.New(), domain.EnvProduction)

	h.Create(c)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestInvoiceGet_Success(t *testing.T) {
	merchantID := uuid.New()
	invoice := newTestInvoice(merchantID)

	svc := &fakeInvoiceService{
		onGet: func(mID, invID uuid.UUID) (*domain.Invoice, error) {
			assert.Equal(t, merchantID, mID)
			assert.Equal(t, invoice.ID, invID)
			return invoice, nil
		},
	}
	h := NewInvoiceHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/invoices/"+invoice.ID.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: invoice.ID.String()}}
	contextWithMerchant(c, merchantID, domain.EnvProduction)

	h.Get(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInvoiceGet_NotFound(t *testing.T) {
	svc := &fakeInvoiceService{
		onGet: func(mID, invID uuid.UUID) (*domain.Invoice, error) {
			return nil, apperror.ErrNotFound("Invoice")
		},
	}
	h := NewInvoiceHandler(svc)

	id := uuid.New()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/invoices/"+id.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	contextWithMerchant(c, uuid.New(), domain.EnvProduction)

	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvoiceGet_InvalidID(t *testing.T) {
	h := NewInvoiceHandler(&fakeInvoiceService{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/invoices/not-a-uuid", nil)
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}
	contextWithMerchant(c, uuid.New(), domain.EnvProduction)

	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvoiceList_Success(t *testing.T) {
	merchantID := uuid.New()
	invoice := newTestInvoice(merchantID)

	svc := &fakeInvoiceService{
		onList: func(params ports.InvoiceListParams) ([]domain.Invoice, error) {
			assert.Equal(t, 50, params.Limit)
			return []domain.Invoice{*invoice}, nil
		},
	}
	h := NewInvoiceHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/invoices", nil)
	contextWithMerchant(c, merchantID, domain.EnvProduction)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	assert.Len(t, items, 1)
}

func TestInvoiceList_LimitClampedTo200(t *testing.T) {
	svc := &fakeInvoiceService{
		onList: func(params ports.InvoiceListParams) ([]domain.Invoice, error) {
			assert.Equal(t, 200, params.Limit)
			return nil, nil
		},
	}
	h := NewInvoiceHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/invoices?limit=9000", nil)
	contextWithMerchant(c, uuid.New(), domain.EnvProduction)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInvoiceList_InvalidLimit(t *testing.T) {
	h := NewInvoiceHandler(&fakeInvoiceService{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/invoices?limit=abc", nil)
	contextWithMerchant(c, uuid.New(), domain.EnvProduction)

	h.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvoiceCheck_Success(t *testing.T) {
	merchantID := uuid.New()
	invoice := newTestInvoice(merchantID)
	invoice.Status = domain.InvoiceStatusPaid

	svc := &fakeInvoiceService{
		onCheck: func(mID, invID uuid.UUID, username, token string) (*domain.Invoice, error) {
			assert.Equal(t, "cashier1", username)
			return invoice, nil
		},
	}
	h := NewInvoiceHandler(svc)

	body, _ := json.Marshal(dto.CheckInvoiceRequest{Username: "cashier1", Token: "tok"})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/invoices/"+invoice.ID.String()+"/check", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: invoice.ID.String()}}
	contextWithMerchant(c, merchantID, domain.EnvProduction)

	h.Check(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "paid", data["status"])
}

func TestInvoiceListEvents_Success(t *testing.T) {
	merchantID := uuid.New()
	invoiceID := uuid.New()

	svc := &fakeInvoiceService{
		onListEvents: func(mID, invID uuid.UUID, limit int) ([]domain.InvoiceEvent, error) {
			assert.Equal(t, 100, limit)
			return []domain.InvoiceEvent{
				{ID: uuid.New(), InvoiceID: invID, EventType: domain.EventPaymentCreated, CreatedAt: time.Now()},
			}, nil
		},
	}
	h := NewInvoiceHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/invoices/"+invoiceID.String()+"/events", nil)
	c.Params = gin.Params{{Key: "id", Value: invoiceID.String()}}
	contextWithMerchant(c, merchantID, domain.EnvProduction)

	h.ListEvents(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	items := resp["data"].([]interface{})
	assert.Len(t, items, 1)
}

func TestInvoiceRefund_Success(t *testing.T) {
	merchantID := uuid.New()
	invoice := newTestInvoice(merchantID)
	invoice.Status = domain.InvoiceStatusRefunded

	svc := &fakeInvoiceService{
		onRefund: func(mID, invID uuid.UUID, amount *int64, reason string) (*domain.Invoice, error) {
			assert.Equal(t, "duplicate charge", reason)
			return invoice, nil
		},
	}
	h := NewInvoiceHandler(svc)

	body, _ := json.Marshal(dto.RefundRequest{Reason: "duplicate charge"})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/invoices/"+invoice.ID.String()+"/refunds", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: invoice.ID.String()}}
	contextWithMerchant(c, merchantID, domain.EnvProduction)

	h.Refund(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInvoiceRefund_ServiceError(t *testing.T) {
	svc := &fakeInvoiceService{
		onRefund: func(mID, invID uuid.UUID, amount *int64, reason string) (*domain.Invoice, error) {
			return nil, apperror.ErrConflict("invoice not paid")
		},
	}
	h := NewInvoiceHandler(svc)

	id := uuid.New()
	body, _ := json.Marshal(dto.RefundRequest{Reason: "test"})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/invoices/"+id.String()+"/refunds", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	contextWithMerchant(c, uuid.New(), domain.EnvProduction)

	h.Refund(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

// --- Health Check Test ---

func TestHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck()(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestSwaggerUI(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger", nil)

	SwaggerUI(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "swagger-ui")
	assert.Contains(t, w.Body.String(), "/swagger/spec")
}

func TestSwaggerSpec_Loaded(t *testing.T) {
	SetSwaggerSpec([]byte("openapi: '3.0.0'\ninfo:\n  title: Test"))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger/spec", nil)

	SwaggerSpec(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi")
}

func TestSwaggerSpec_NotLoaded(t *testing.T) {
	SetSwaggerSpec(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger/spec", nil)

	SwaggerSpec(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
