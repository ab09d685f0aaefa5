package domain

import (
	"time"

	"github.com/google/uuid"
)

// Env is one of production or sandbox; it determines which key pair,
// webhook URL and signing secret apply to a request.
type Env string

const (
	EnvProduction Env = "production"
	EnvSandbox    Env = "sandbox"
)

// Valid reports whether e is a recognized environment.
func (e Env) Valid() bool {
	return e == EnvProduction || e == EnvSandbox
}

// EnvCredentialSet holds one environment's key material. Raw API keys
// are never persisted; only the SHA-256 fingerprint is stored.
type EnvCredentialSet struct {
	APIKeyHash    string     `json:"-"`
	APIKeyPrefix  string     `json:"api_key_prefix"` // first 12 chars, for display
	APISecret     string     `json:"-"`
	WebhookSecret string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	RotatedAt     *time.Time `json:"rotated_at,omitempty"`
}

// MerchantCredentials is the 1:1 credential record for a Merchant,
// holding one key pair per environment.
type MerchantCredentials struct {
	MerchantID uuid.UUID        `json:"merchant_id"`
	Production EnvCredentialSet `json:"production"`
	Sandbox    EnvCredentialSet `json:"sandbox"`
}

// ForEnv returns the credential set for the given environment.
func (c *MerchantCredentials) ForEnv(env Env) *EnvCredentialSet {
	if env == EnvSandbox {
		return &c.Sandbox
	}
	return &c.Production
}
