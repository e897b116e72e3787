package dto

import (
	"time"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
)

// CreateEscrowRequest is the request body for escrow payment creation.
type CreateEscrowRequest struct {
	OfferID  string  `json:"offer_id" binding:"required,uuid"`
	Amount   int64   `json:"amount" binding:"required,gt=0"`
	Currency string  `json:"currency" binding:"required,iso_currency"`
	Method   *string `json:"method,omitempty" binding:"omitempty,oneof=GATEWAY CASH_ON_DELIVERY BANK_TRANSFER"`
}

// RefundRequest is the request body for a user-initiated refund.
// A nil amount means the full remaining balance.
type RefundRequest struct {
	Amount *int64 `json:"amount,omitempty" binding:"omitempty,gt=0"`
	Reason string `json:"reason" binding:"required,max=500"`
}

// CancelRequest is the request body for service cancellation.
type CancelRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// DisputeRequest is the request body for marking a payment disputed.
type DisputeRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// ListTransactionsQuery binds the unified transaction list filters.
type ListTransactionsQuery struct {
	Status        *string `form:"status"`
	PaymentMethod *string `form:"paymentMethod" binding:"omitempty,oneof=GATEWAY CASH_ON_DELIVERY BANK_TRANSFER"`
	UserID        *string `form:"userId" binding:"omitempty,uuid"`
	From          *int64  `form:"from"`
	To            *int64  `form:"to"`
	Page          int     `form:"page"`
	Limit         int     `form:"limit"`
}

// PaymentResponse is the wire shape of an escrow payment.
type PaymentResponse struct {
	ID            string  `json:"id"`
	OfferID       string  `json:"offer_id"`
	PayerID       string  `json:"payer_id"`
	PayeeID       string  `json:"payee_id"`
	Amount        int64   `json:"amount"`
	Currency      string  `json:"currency"`
	Method        string  `json:"method"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at"`
	EscrowHeldAt  *string `json:"escrow_held_at,omitempty"`
	DisputedAt    *string `json:"disputed_at,omitempty"`
	ReleasedAt    *string `json:"released_at,omitempty"`
	RefundedAt    *string `json:"refunded_at,omitempty"`
	CancelledAt   *string `json:"cancelled_at,omitempty"`
	DisputeReason *string `json:"dispute_reason,omitempty"`
	CancelReason  *string `json:"cancel_reason,omitempty"`
}

// EscrowSessionResponse is returned from escrow creation.
type EscrowSessionResponse struct {
	Payment     PaymentResponse `json:"payment"`
	CheckoutURL string          `json:"checkout_url,omitempty"`
}

// RefundResponse is the wire shape of a refund entry.
type RefundResponse struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
}

// AuditLogResponse is one entry of a payment's audit trail.
type AuditLogResponse struct {
	ID        string  `json:"id"`
	ActorID   *string `json:"actor_id,omitempty"`
	Action    string  `json:"action"`
	Details   string  `json:"details,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// TransactionResponse is one item of the unified transaction view.
type TransactionResponse struct {
	Type           string `json:"type"`
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	CounterpartyID string `json:"counterparty_id"`
	Status         string `json:"status"`
	Method         string `json:"method,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// TransactionListResponse wraps the paginated transaction list.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// StatsResponse is the admin ledger summary.
type StatsResponse struct {
	TotalPayments int64 `json:"total_payments"`
	EscrowHeld    int64 `json:"escrow_held"`
	Released      int64 `json:"released"`
	Refunded      int64 `json:"refunded"`
	Cancelled     int64 `json:"cancelled"`
	Disputed      int64 `json:"disputed"`
	HeldAmount    int64 `json:"held_amount"`
}

// FromPayment converts a domain payment to its wire shape.
func FromPayment(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID.String(),
		OfferID:       p.OfferID.String(),
		PayerID:       p.PayerID.String(),
		PayeeID:       p.PayeeID.String(),
		Amount:        p.Amount,
		Currency:      p.Currency,
		Method:        string(p.Method),
		Status:        string(p.Status),
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
		EscrowHeldAt:  formatTime(p.EscrowHeldAt),
		DisputedAt:    formatTime(p.DisputedAt),
		ReleasedAt:    formatTime(p.ReleasedAt),
		RefundedAt:    formatTime(p.RefundedAt),
		CancelledAt:   formatTime(p.CancelledAt),
		DisputeReason: p.DisputeReason,
		CancelReason:  p.CancelReason,
	}
}

// FromRefund converts a domain refund to its wire shape.
func FromRefund(r *domain.Refund) RefundResponse {
	return RefundResponse{
		ID:        r.ID.String(),
		PaymentID: r.PaymentID.String(),
		Amount:    r.Amount,
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

// FromAuditLog converts an audit entry to its wire shape.
func FromAuditLog(l *domain.AuditLog) AuditLogResponse {
	resp := AuditLogResponse{
		ID:        l.ID.String(),
		Action:    string(l.Action),
		Details:   l.Details,
		CreatedAt: l.CreatedAt.Format(time.RFC3339),
	}
	if l.ActorID != nil {
		s := l.ActorID.String()
		resp.ActorID = &s
	}
	return resp
}

// FromTransaction converts a unified transaction item to its wire shape.
func FromTransaction(t domain.Transaction) TransactionResponse {
	return TransactionResponse{
		Type:           string(t.Type),
		ID:             t.ID.String(),
		Amount:         t.Amount,
		Currency:       t.Currency,
		CounterpartyID: t.CounterpartyID.String(),
		Status:         t.Status,
		Method:         string(t.Method),
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
	}
}

// FromStats converts ledger stats to their wire shape.
func FromStats(s *ports.LedgerStats) StatsResponse {
	return StatsResponse{
		TotalPayments: s.TotalPayments,
		EscrowHeld:    s.EscrowHeld,
		Released:      s.Released,
		Refunded:      s.Refunded,
		Cancelled:     s.Cancelled,
		Disputed:      s.Disputed,
		HeldAmount:    s.HeldAmount,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
