package domain

import "time"

// PaidTransaction is a short-TTL success cache letting concurrent or
// repeated check calls short-circuit without re-polling upstream.
type PaidTransaction struct {
	Principal   string    `json:"principal"`
	FinalAmount int64     `json:"final_amount"`
	Env         Env       `json:"env"`
	PaidAt      time.Time `json:"paid_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}
