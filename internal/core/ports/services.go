package ports

import (
	"context"
	"time"

	"marketplace-escrow/internal/core/domain"

	"github.com/google/uuid"
)

//go:generate mockgen -source=services.go -destination=mocks/services.go -package=mocks

// --- External collaborators ---

// CheckoutSession is the gateway's reference for a hosted payment page.
type CheckoutSession struct {
	SessionID   string
	IntentID    string
	CheckoutURL string
}

// GatewayClient talks to the external payment processor. It carries no
// business state; retry/backoff for transient failures lives inside the
// adapter, permanent rejections surface immediately.
type GatewayClient interface {
	CreateCheckoutSession(ctx context.Context, p *domain.Payment) (*CheckoutSession, error)
	IssueRefund(ctx context.Context, intentID string, amount int64, currency, reason string) (string, error)
	IssuePayout(ctx context.Context, payeeID uuid.UUID, amount int64, currency string) (string, error)
	// VerifySignature checks the processor-supplied signature header
	// against the raw request body using the shared webhook secret.
	VerifySignature(payload []byte, signature string) bool
}

// Offer is the collaborator-supplied view of a job offer.
type Offer struct {
	ID         uuid.UUID
	SeekerID   uuid.UUID
	ProviderID uuid.UUID
	Price      int64
	Currency   string
	Accepted   bool
	Completed  bool // work-completion signal gating fund release
}

// OfferProvider exposes the offer/job-request collaborator contract.
type OfferProvider interface {
	GetOffer(ctx context.Context, offerID uuid.UUID) (*Offer, error)
}

// Notifier is informed, fire-and-forget, on every committed transition.
// Implementations must never propagate failures to the caller.
type Notifier interface {
	PaymentTransition(ctx context.Context, p *domain.Payment, event string)
}

// TokenService validates identity tokens issued by the auth collaborator.
type TokenService interface {
	Generate(userID uuid.UUID, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*domain.Actor, error)
}

// EventCache is the redis fast path for webhook deduplication. Durable
// dedup lives in WebhookEventRepository; this layer is best-effort.
type EventCache interface {
	// CheckAndSet atomically checks if the event id was seen, marking it
	// if not. Returns true if the id is new.
	CheckAndSet(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	// Invalidate drops a marked event id so a redelivery is seen as fresh.
	Invalidate(ctx context.Context, eventID string) error
}

// --- Service ports (business logic) ---

// CreateEscrowParams holds validated input for escrow creation.
type CreateEscrowParams struct {
	OfferID  uuid.UUID
	Amount   int64
	Currency string
	Method   domain.PaymentMethod
}

// EscrowSession is returned to the payer to complete checkout.
type EscrowSession struct {
	Payment     *domain.Payment `json:"payment"`
	CheckoutURL string          `json:"checkout_url,omitempty"`
}

// LedgerService owns all Payment records and their transition rules.
type LedgerService interface {
	CreateEscrowPayment(ctx context.Context, actor domain.Actor, params CreateEscrowParams) (*EscrowSession, error)
	ConfirmEscrowHeld(ctx context.Context, paymentID uuid.UUID, gatewayRef string) (*domain.Payment, error)
	ReleaseFunds(ctx context.Context, actor domain.Actor, paymentID uuid.UUID) (*domain.Payment, error)
	MarkDisputed(ctx context.Context, paymentID uuid.UUID, reason string) (*domain.Payment, error)
	Cancel(ctx context.Context, actor domain.Actor, paymentID uuid.UUID, reason string) (*domain.Payment, error)
	// CancelAwaitingPayment is the gateway-driven cancellation: the CAS is
	// pinned to AWAITING_PAYMENT so a concurrent success always wins.
	CancelAwaitingPayment(ctx context.Context, paymentID uuid.UUID, reason string) (*domain.Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	// ListRefunds returns the refund sub-ledger, participant/admin only.
	ListRefunds(ctx context.Context, actor domain.Actor, paymentID uuid.UUID) ([]domain.Refund, error)
	// RecordRefund appends a refund entry and, when the remaining balance
	// reaches zero, drives the payment to REFUNDED. Gateway-driven callers
	// pass a nil actor id.
	RecordRefund(ctx context.Context, paymentID uuid.UUID, amount int64, reason string, gatewayRefundID *string, initiatedBy uuid.UUID) (*domain.Refund, error)
}

// WebhookProcessor consumes inbound gateway events.
type WebhookProcessor interface {
	// Process verifies, deduplicates and applies one raw webhook delivery.
	// Business-level staleness is a logged no-op; only signature failure
	// returns an error.
	Process(ctx context.Context, payload []byte, signature string) error
}

// RefundParams holds validated input for a user-initiated refund.
type RefundParams struct {
	PaymentID uuid.UUID
	Amount    *int64 // nil = full remaining balance
	Reason    string
}

// RefundCoordinator validates authorization and policy before delegating
// refund/cancel requests to the ledger.
type RefundCoordinator interface {
	Refund(ctx context.Context, actor domain.Actor, params RefundParams) (*domain.Refund, error)
	CancelService(ctx context.Context, actor domain.Actor, offerID uuid.UUID, reason string) (*domain.Payment, error)
}

// TransactionService is the read-only aggregation facade.
type TransactionService interface {
	List(ctx context.Context, actor domain.Actor, params TransactionListParams, filterUserID *uuid.UUID) ([]domain.Transaction, int64, error)
	Stats(ctx context.Context, actor domain.Actor) (*LedgerStats, error)
}

// AuditService records committed ledger actions and exposes the per-payment
// trail for dispute history.
type AuditService interface {
	Record(ctx context.Context, log *domain.AuditLog)
	History(ctx context.Context, paymentID uuid.UUID) ([]domain.AuditLog, error)
}
