package domain

import (
	"time"

	"github.com/google/uuid"
)

// PendingTransaction tracks the in-flight claim of a unique suffix for
// a principal. It is deleted on payment, expiry, or explicit cancel;
// suffix recycling is bounded by this short-lived table, not by the
// long-lived Invoice history.
type PendingTransaction struct {
	InvoiceID    uuid.UUID `json:"invoice_id"`
	Principal    string    `json:"principal"`
	Env          Env       `json:"env"`
	UniqueSuffix int       `json:"unique_suffix"`
	FinalAmount  int64     `json:"final_amount"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}
