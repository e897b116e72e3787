package ports

import (
	"context"
	"time"

	"marketplace-escrow/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

//go:generate mockgen -source=repositories.go -destination=mocks/repositories.go -package=mocks

// PaymentRepository defines persistence operations for escrow payments.
// Methods accepting pgx.Tx run inside transaction blocks so that a ledger
// transition and its side rows commit atomically.
type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByGatewayIntentID(ctx context.Context, intentID string) (*domain.Payment, error)
	GetByOfferID(ctx context.Context, offerID uuid.UUID) (*domain.Payment, error)
	// SetGatewaySession records the gateway session/intent linkage once.
	SetGatewaySession(ctx context.Context, id uuid.UUID, sessionID, intentID string) error
	// UpdateStatusCAS performs the compare-and-set transition from -> to.
	// It returns false (and no error) when the current status no longer
	// matches from; this is the ledger's sole serialization primitive.
	UpdateStatusCAS(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.PaymentStatus, at time.Time, reason *string) (bool, error)
}

// RefundRepository defines persistence for the refund sub-ledger.
type RefundRepository interface {
	Create(ctx context.Context, tx pgx.Tx, r *domain.Refund) error
	ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.Refund, error)
	SumByPaymentID(ctx context.Context, paymentID uuid.UUID) (int64, error)
}

// WebhookEventRepository defines persistence for processed gateway events.
// Rows are never deleted during the gateway's redelivery window.
type WebhookEventRepository interface {
	// InsertIfAbsent records the event id, returning false when the id was
	// already present. The unique key closes the duplicate-delivery race.
	InsertIfAbsent(ctx context.Context, ev *domain.WebhookEvent) (bool, error)
	Get(ctx context.Context, eventID string) (*domain.WebhookEvent, error)
	// Delete releases an event id whose ledger effect failed, so the
	// gateway's redelivery is not acknowledged as a duplicate.
	Delete(ctx context.Context, eventID string) error
}

// TransactionListParams holds filter + pagination for the unified view.
type TransactionListParams struct {
	UserID   uuid.UUID // scoping identity; ignored when AllUsers is set
	AllUsers bool      // admin: do not scope to one identity
	Status   *string
	Method   *domain.PaymentMethod
	From     *int64 // Unix timestamp
	To       *int64 // Unix timestamp
	Page     int
	PageSize int
}

// TransactionReader produces the unified, paginated transaction view.
// The returned total counts every matching item across all pages.
type TransactionReader interface {
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// LedgerStats holds aggregate escrow counters for the admin summary.
type LedgerStats struct {
	TotalPayments int64
	EscrowHeld    int64
	Released      int64
	Refunded      int64
	Cancelled     int64
	Disputed      int64
	HeldAmount    int64 // sum of amounts currently in escrow
}

// StatsReader aggregates ledger counters.
type StatsReader interface {
	GetLedgerStats(ctx context.Context) (*LedgerStats, error)
}

// AuditRepository defines persistence for audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
	ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.AuditLog, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
