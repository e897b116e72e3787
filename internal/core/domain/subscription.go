package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionChargeStatus represents the state of a provider plan charge.
type SubscriptionChargeStatus string

const (
	SubscriptionChargePaid   SubscriptionChargeStatus = "PAID"
	SubscriptionChargeFailed SubscriptionChargeStatus = "FAILED"
)

// SubscriptionCharge is a billing record for a provider's marketplace plan.
// The escrow service only reads these for the unified transaction view.
type SubscriptionCharge struct {
	ID        uuid.UUID                `json:"id"`
	UserID    uuid.UUID                `json:"user_id"`
	PlanName  string                   `json:"plan_name"`
	Amount    int64                    `json:"amount"`
	Currency  string                   `json:"currency"`
	Status    SubscriptionChargeStatus `json:"status"`
	CreatedAt time.Time                `json:"created_at"`
}
