package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookDeliveryStatus represents the delivery state of a queued
// outbound webhook notification.
type WebhookDeliveryStatus string

const (
	WebhookStatusQueued    WebhookDeliveryStatus = "queued"
	WebhookStatusDelivered WebhookDeliveryStatus = "delivered"
	WebhookStatusFailed    WebhookDeliveryStatus = "failed"
)

// WebhookDelivery is one queued or attempted outbound notification.
// A delivered delivery is terminal; a failed delivery means attempts
// were exhausted (or the config made the delivery undeliverable).
type WebhookDelivery struct {
	ID              uuid.UUID             `json:"id"`
	MerchantID      uuid.UUID             `json:"merchant_id"`
	Env             Env                   `json:"env"`
	InvoiceID       *uuid.UUID            `json:"invoice_id,omitempty"`
	EventType       InvoiceEventType      `json:"event_type"`
	Payload         string                `json:"payload"` // serialized JSON
	Status          WebhookDeliveryStatus `json:"status"`
	AttemptCount    int                   `json:"attempt_count"`
	NextRetryAt     time.Time             `json:"next_retry_at"`
	LastHTTPStatus  *int                  `json:"last_http_status,omitempty"`
	LastError       *string               `json:"last_error,omitempty"`
	ResponseSnippet *string               `json:"response_snippet,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// IsTerminal reports whether the delivery has reached delivered/failed.
func (d *WebhookDelivery) IsTerminal() bool {
	return d.Status == WebhookStatusDelivered || d.Status == WebhookStatusFailed
}
