package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus represents the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusCreated  InvoiceStatus = "created"
	InvoiceStatusPending  InvoiceStatus = "pending"
	InvoiceStatusPaid     InvoiceStatus = "paid"
	InvoiceStatusExpired  InvoiceStatus = "expired"
	InvoiceStatusRefunded InvoiceStatus = "refunded"
)

// Invoice represents a single QRIS payment request.
type Invoice struct {
	ID           uuid.UUID      `json:"id"`
	MerchantID   uuid.UUID      `json:"merchant_id"`
	Env          Env            `json:"env"`
	Principal    string         `json:"principal"` // upstream username
	ReferenceID  *string        `json:"reference_id,omitempty"`
	BaseAmount   int64          `json:"base_amount"`
	UniqueSuffix int            `json:"unique_suffix"` // [1, 999]
	FinalAmount  int64          `json:"final_amount"`
	Status       InvoiceStatus  `json:"status"`
	QRISString   string         `json:"qris_string"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	PaidAt       *time.Time     `json:"paid_at,omitempty"`
}

// IsTerminal reports whether the invoice has reached a final state.
func (i *Invoice) IsTerminal() bool {
	return i.Status == InvoiceStatusPaid ||
		i.Status == InvoiceStatusExpired ||
		i.Status == InvoiceStatusRefunded
}

// CanRefund reports whether a refund may be requested against this invoice.
func (i *Invoice) CanRefund() bool {
	return i.Status == InvoiceStatusPaid
}

// ExpiresIn returns the remaining time until expiry relative to now.
// Negative once the invoice has already expired.
func (i *Invoice) ExpiresIn(now time.Time) time.Duration {
	return i.ExpiresAt.Sub(now)
}
