package domain

import (
	"time"

	"github.com/google/uuid"
)

// AlertType enumerates operational alert reasons.
type AlertType string

const (
	AlertWebhookFailed AlertType = "WebhookFailed"
)

// Alert is created on permanent webhook failure and similar
// operational events requiring human attention.
type Alert struct {
	ID         uuid.UUID  `json:"id"`
	MerchantID *uuid.UUID `json:"merchant_id,omitempty"`
	Type       AlertType  `json:"type"`
	Message    string     `json:"message"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// IsResolved reports whether the alert has been acknowledged.
func (a *Alert) IsResolved() bool {
	return a.ResolvedAt != nil
}
