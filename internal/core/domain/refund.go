package domain

import (
	"time"

	"github.com/google/uuid"
)

// Refund is one entry of a payment's refund sub-ledger. Entries are
// append-only; the sum of refunded amounts never exceeds the payment amount.
type Refund struct {
	ID              uuid.UUID `json:"id"`
	PaymentID       uuid.UUID `json:"payment_id"`
	Amount          int64     `json:"amount"`
	Reason          string    `json:"reason"`
	GatewayRefundID *string   `json:"gateway_refund_id,omitempty"`
	InitiatedBy     uuid.UUID `json:"initiated_by"`
	CreatedAt       time.Time `json:"created_at"`
}
