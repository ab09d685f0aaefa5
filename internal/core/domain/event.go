package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceEventType enumerates the closed set of event shapes recorded
// against an invoice. Caller-supplied metadata remains an opaque bag;
// everything else the gateway itself writes is one of these.
type InvoiceEventType string

const (
	EventPaymentCreated  InvoiceEventType = "payment.created"
	EventPaymentPaid     InvoiceEventType = "payment.paid"
	EventPaymentExpired  InvoiceEventType = "payment.expired"
	EventRefundRequested InvoiceEventType = "refund.requested"
	EventRefundProcessed InvoiceEventType = "refund.processed"
)

// InvoiceEvent is an append-only audit log entry for an invoice.
type InvoiceEvent struct {
	ID        uuid.UUID        `json:"id"`
	InvoiceID uuid.UUID        `json:"invoice_id"`
	EventType InvoiceEventType `json:"event_type"`
	Payload   map[string]any   `json:"payload,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
