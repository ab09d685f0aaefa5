package dto

// CreateInvoiceRequest is the request body for POST /invoices.
type CreateInvoiceRequest struct {
	Username    string         `json:"username" binding:"required,safe_id,max=100"`
	Token       string         `json:"token" binding:"required,max=512"`
	Amount      int64          `json:"amount" binding:"required,gt=0"`
	QRISStatic  string         `json:"qris_static" binding:"required"`
	ReferenceID *string        `json:"reference_id,omitempty" binding:"omitempty,max=100"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CheckInvoiceRequest is the request body for POST /invoices/:id/check.
type CheckInvoiceRequest struct {
	Username string `json:"username" binding:"required,safe_id,max=100"`
	Token    string `json:"token" binding:"required,max=512"`
}

// RefundRequest is the request body for POST /invoices/:id/refunds.
type RefundRequest struct {
	Amount *int64 `json:"amount,omitempty" binding:"omitempty,gt=0"`
	Reason string `json:"reason,omitempty" binding:"max=500"`
}

// InvoiceResponse is the wire shape for a single invoice.
type InvoiceResponse struct {
	ID           string         `json:"id"`
	Env          string         `json:"env"`
	ReferenceID  *string        `json:"reference_id,omitempty"`
	BaseAmount   int64          `json:"base_amount"`
	UniqueSuffix int            `json:"unique_suffix"`
	FinalAmount  int64          `json:"final_amount"`
	Status       string         `json:"status"`
	QRISString   string         `json:"qris_string"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    string         `json:"created_at"`
	ExpiresAt    string         `json:"expires_at"`
	PaidAt       *string        `json:"paid_at,omitempty"`
}

// InvoiceListResponse wraps a page of invoices.
type InvoiceListResponse struct {
	Items  []InvoiceResponse `json:"items"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// InvoiceEventResponse is the wire shape for one invoice event.
type InvoiceEventResponse struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt string         `json:"created_at"`
}
