package handler

import (
	"strconv"

	"qris-gateway/internal/adapter/http/dto"
	"qris-gateway/internal/adapter/http/middleware"
	"qris-gateway/internal/core/domain"
	"qris-gateway/internal/core/ports"
	"qris-gateway/pkg/apperror"
	"qris-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// InvoiceHandler handles the gateway's invoice lifecycle endpoints.
type InvoiceHandler struct {
	invoiceSvc ports.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler.
func NewInvoiceHandler(invoiceSvc ports.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceSvc: invoiceSvc}
}

func merchantContext(c *gin.Context) (uuid.UUID, domain.Env, bool) {
	rawID, ok := c.Get(middleware.CtxMerchantID)
	if !ok {
		return uuid.Nil, "", false
	}
	rawEnv, ok := c.Get(middleware.CtxEnv)
	if !ok {
		return uuid.Nil, "", false
	}
	return rawID.(uuid.UUID), rawEnv.(domain.Env), true
}

// Create handles POST /invoices.
func (h *InvoiceHandler) Create(c *gin.Context) {
	merchantID, env, ok := merchantContext(c)
	if !ok {
		response.Error(c, apperror.InternalError(nil))
		return
	}

	var req dto.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	invoice, err := h.invoiceSvc.Create(c.Request.Context(), ports.CreateInvoiceRequest{
		MerchantID:  merchantID,
		Env:         env,
		Principal:   req.Username,
		Token:       req.Token,
		BaseAmount:  req.Amount,
		QRISStatic:  req.QRISStatic,
		ReferenceID: req.ReferenceID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toInvoiceResponse(invoice))
}

// List handles GET /invoices.
func (h *InvoiceHandler) List(c *gin.Context) {
	merchantID, env, ok := merchantContext(c)
	if !ok {
		response.Error(c, apperror.InternalError(nil))
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			response.Error(c, apperror.Validation("limit must be a positive integer"))
			return
		}
		limit = v
	}
	if limit > 200 {
		limit = 200
	}

	offset := 0
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			response.Error(c, apperror.Validation("offset must be a non-negative integer"))
			return
		}
		offset = v
	}

	invoices, err := h.invoiceSvc.List(c.Request.Context(), ports.InvoiceListParams{
		MerchantID: merchantID,
		Env:        env,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		items = append(items, toInvoiceResponse(&invoices[i]))
	}

	response.OK(c, dto.InvoiceListResponse{Items: items, Limit: limit, Offset: offset})
}

// Get handles GET /invoices/:id.
func (h *InvoiceHandler) Get(c *gin.Context) {
	merchantID, _, ok := merchantContext(c)
	if !ok {
		response.Error(c, apperror.InternalError(nil))
		return
	}

	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrNotFound("Invoice"))
		return
	}

	invoice, err := h.invoiceSvc.Get(c.Request.Context(), merchantID, invoiceID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toInvoiceResponse(invoice))
}

// Check handles POST /invoices/:id/check.
func (h *InvoiceHandler) Check(c *gin.Context) {
	merchantID, _, ok := merchantContext(c)
	if !ok {
		response.Error(c, apperror.InternalError(nil))
		return
	}

	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrNotFound("Invoice"))
		return
	}

	var req dto.CheckInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	invoice, err := h.invoiceSvc.Check(c.Request.Context(), merchantID, invoiceID, req.Username, req.Token)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toInvoiceResponse(invoice))
}

// ListEvents handles GET /invoices/:id/events.
func (h *InvoiceHandler) ListEvents(c *gin.Context) {
	merchantID, _, ok := merchantContext(c)
	if !ok {
		response.Error(c, apperror.InternalError(nil))
		return
	}

	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrNotFound("Invoice"))
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			response.Error(c, apperror.Validation("limit must be a positive integer"))
			return
		}
		limit = v
	}
	if limit > 100 {
		limit = 100
	}

	events, err := h.invoiceSvc.ListEvents(c.Request.Context(), merchantID, invoiceID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.InvoiceEventResponse, 0, len(events))
	for _, ev := range events {
		items = append(items, dto.InvoiceEventResponse{
			ID:        ev.ID.String(),
			EventType: string(ev.EventType),
			Payload:   ev.Payload,
			CreatedAt: ev.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	response.OK(c, items)
}

// Refund handles POST /invoices/:id/refunds.
func (h *InvoiceHandler) Refund(c *gin.Context) {
	merchantID, _, ok := merchantContext(c)
	if !ok {
		response.Error(c, apperror.InternalError(nil))
		return
	}

	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrNotFound("Invoice"))
		return
	}

	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	invoice, err := h.invoiceSvc.RequestRefund(c.Request.Context(), merchantID, invoiceID, req.Amount, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toInvoiceResponse(invoice))
}

func toInvoiceResponse(invoice *domain.Invoice) dto.InvoiceResponse {
	resp := dto.InvoiceResponse{
		ID:           invoice.ID.String(),
		Env:          string(invoice.Env),
		ReferenceID:  invoice.ReferenceID,
		BaseAmount:   invoice.BaseAmount,
		UniqueSuffix: invoice.UniqueSuffix,
		FinalAmount:  invoice.FinalAmount,
		Status:       string(invoice.Status),
		QRISString:   invoice.QRISString,
		Metadata:     invoice.Metadata,
		CreatedAt:    invoice.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		ExpiresAt:    invoice.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if invoice.PaidAt != nil {
		s := invoice.PaidAt.Format("2006-01-02T15:04:05Z07:00")
		resp.PaidAt = &s
	}
	return resp
}
