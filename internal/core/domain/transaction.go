package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType tags the source record of a unified transaction.
type TransactionType string

const (
	TransactionTypePayment      TransactionType = "PAYMENT"
	TransactionTypeSubscription TransactionType = "SUBSCRIPTION"
	TransactionTypeRefund       TransactionType = "REFUND"
)

// Transaction is the read model merging payments, subscription charges and
// refunds into one shape. It is always derived, never persisted.
type Transaction struct {
	Type           TransactionType `json:"type"`
	ID             uuid.UUID       `json:"id"`
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	CounterpartyID uuid.UUID       `json:"counterparty_id"`
	Status         string          `json:"status"`
	Method         PaymentMethod   `json:"method,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TransactionFromPayment normalizes a payment from the viewer's perspective:
// the counterparty is the other participant.
func TransactionFromPayment(p *Payment, viewerID uuid.UUID) Transaction {
	counterparty := p.PayeeID
	if viewerID == p.PayeeID {
		counterparty = p.PayerID
	}
	return Transaction{
		Type:           TransactionTypePayment,
		ID:             p.ID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		CounterpartyID: counterparty,
		Status:         string(p.Status),
		Method:         p.Method,
		CreatedAt:      p.CreatedAt,
	}
}

// TransactionFromSubscriptionCharge normalizes a plan charge. The platform
// itself is the counterparty, represented by the zero UUID.
func TransactionFromSubscriptionCharge(c *SubscriptionCharge) Transaction {
	return Transaction{
		Type:           TransactionTypeSubscription,
		ID:             c.ID,
		Amount:         c.Amount,
		Currency:       c.Currency,
		CounterpartyID: uuid.Nil,
		Status:         string(c.Status),
		CreatedAt:      c.CreatedAt,
	}
}

// TransactionFromRefund normalizes a refund entry against its parent payment.
func TransactionFromRefund(r *Refund, parent *Payment, viewerID uuid.UUID) Transaction {
	counterparty := parent.PayeeID
	if viewerID == parent.PayeeID {
		counterparty = parent.PayerID
	}
	return Transaction{
		Type:           TransactionTypeRefund,
		ID:             r.ID,
		Amount:         r.Amount,
		Currency:       parent.Currency,
		CounterpartyID: counterparty,
		Status:         "REFUNDED",
		Method:         parent.Method,
		CreatedAt:      r.CreatedAt,
	}
}
