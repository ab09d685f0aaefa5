package domain

import (
	"time"

	"github.com/google/uuid"
)

// MerchantStatus represents the state of a merchant account.
type MerchantStatus string

const (
	MerchantStatusUnverified MerchantStatus = "unverified"
	MerchantStatusSubmitted  MerchantStatus = "submitted"
	MerchantStatusActive     MerchantStatus = "active"
	MerchantStatusRejected   MerchantStatus = "rejected"
	MerchantStatusSuspended  MerchantStatus = "suspended"
)

// FeeConfig holds the merchant's fee schedule.
type FeeConfig struct {
	Bps   int   `json:"bps"`
	Fixed int64 `json:"fixed"`
}

// WebhookConfig holds the per-env outbound webhook target.
type WebhookConfig struct {
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

// Merchant represents a registered merchant in the gateway.
type Merchant struct {
	ID                uuid.UUID      `json:"id"`
	Email             string         `json:"email"` // unique, lowercased
	ContactPhone      string         `json:"contact_phone,omitempty"`
	Status            MerchantStatus `json:"status"`
	ProductionWebhook WebhookConfig  `json:"production_webhook"`
	SandboxWebhook    WebhookConfig  `json:"sandbox_webhook"`
	Fee               FeeConfig      `json:"fee"`
	IPWhitelistOn     bool           `json:"ip_whitelist_enabled"`
	IPWhitelist       []string       `json:"ip_whitelist,omitempty"` // single addresses or CIDRs
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// IsActive returns true if the merchant may invoke gateway endpoints.
func (m *Merchant) IsActive() bool {
	return m.Status == MerchantStatusActive
}

// WebhookFor returns the webhook config for the given env.
func (m *Merchant) WebhookFor(env Env) WebhookConfig {
	if env == EnvSandbox {
		return m.SandboxWebhook
	}
	return m.ProductionWebhook
}
