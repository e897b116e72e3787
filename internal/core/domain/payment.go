package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod represents how the seeker funds the escrow.
type PaymentMethod string

const (
	PaymentMethodGateway        PaymentMethod = "GATEWAY"
	PaymentMethodCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	PaymentMethodBankTransfer   PaymentMethod = "BANK_TRANSFER"
)

// PaymentStatus represents the lifecycle state of an escrow payment.
type PaymentStatus string

const (
	PaymentStatusCreated         PaymentStatus = "CREATED"
	PaymentStatusAwaitingPayment PaymentStatus = "AWAITING_PAYMENT"
	PaymentStatusEscrowHeld      PaymentStatus = "ESCROW_HELD"
	PaymentStatusDisputed        PaymentStatus = "DISPUTED"
	PaymentStatusReleased        PaymentStatus = "RELEASED"
	PaymentStatusRefunded        PaymentStatus = "REFUNDED"
	PaymentStatusCancelled       PaymentStatus = "CANCELLED"
)

// validTransitions is the directed edge set of the payment state graph.
// Statuses only ever move forward along these edges.
var validTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusCreated:         {PaymentStatusAwaitingPayment},
	PaymentStatusAwaitingPayment: {PaymentStatusEscrowHeld, PaymentStatusCancelled},
	PaymentStatusEscrowHeld:      {PaymentStatusReleased, PaymentStatusRefunded, PaymentStatusDisputed, PaymentStatusCancelled},
	PaymentStatusDisputed:        {PaymentStatusReleased, PaymentStatusRefunded},
}

// CanTransition reports whether from -> to is a valid edge.
func CanTransition(from, to PaymentStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is permitted from s.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusReleased ||
		s == PaymentStatusRefunded ||
		s == PaymentStatusCancelled
}

// Payment is one escrow transaction tied to exactly one accepted offer.
// It is an append-only financial record: rows are never deleted, only
// status and timestamps advance.
type Payment struct {
	ID       uuid.UUID     `json:"id"`
	OfferID  uuid.UUID     `json:"offer_id"`
	PayerID  uuid.UUID     `json:"payer_id"` // seeker; immutable after creation
	PayeeID  uuid.UUID     `json:"payee_id"` // provider; immutable after creation
	Amount   int64         `json:"amount"`   // smallest currency unit; immutable once escrow held
	Currency string        `json:"currency"`
	Method   PaymentMethod `json:"method"`
	Status   PaymentStatus `json:"status"`

	// Gateway linkage, each set once and immutable afterwards.
	GatewaySessionID *string `json:"gateway_session_id,omitempty"`
	GatewayIntentID  *string `json:"gateway_intent_id,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	EscrowHeldAt *time.Time `json:"escrow_held_at,omitempty"`
	DisputedAt   *time.Time `json:"disputed_at,omitempty"`
	ReleasedAt   *time.Time `json:"released_at,omitempty"`
	RefundedAt   *time.Time `json:"refunded_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`

	DisputeReason *string `json:"dispute_reason,omitempty"`
	CancelReason  *string `json:"cancel_reason,omitempty"`
}

// IsParticipant reports whether userID is payer or payee.
func (p *Payment) IsParticipant(userID uuid.UUID) bool {
	return p.PayerID == userID || p.PayeeID == userID
}

// TimestampColumn returns the payments column that records when the payment
// entered the given status, or "" when the status carries no timestamp.
func TimestampColumn(status PaymentStatus) string {
	switch status {
	case PaymentStatusEscrowHeld:
		return "escrow_held_at"
	case PaymentStatusDisputed:
		return "disputed_at"
	case PaymentStatusReleased:
		return "released_at"
	case PaymentStatusRefunded:
		return "refunded_at"
	case PaymentStatusCancelled:
		return "cancelled_at"
	default:
		return ""
	}
}
