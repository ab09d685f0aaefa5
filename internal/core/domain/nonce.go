package domain

import (
	"time"

	"github.com/google/uuid"
)

// UsedNonce prevents replay of a signed request within the signing
// window. Rows expire a TTL slightly longer than the window.
type UsedNonce struct {
	MerchantID uuid.UUID `json:"merchant_id"`
	Nonce      string    `json:"nonce"`
	ExpiresAt  time.Time `json:"expires_at"`
}
