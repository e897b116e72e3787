package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace-escrow/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id, offer_id, payer_id, payee_id, amount, currency, method, status,
		gateway_session_id, gateway_intent_id, created_at, escrow_held_at, disputed_at,
		released_at, refunded_at, cancelled_at, dispute_reason, cancel_reason`

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Create inserts a new payment.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	query := `INSERT INTO payments (id, offer_id, payer_id, payee_id, amount, currency, method, status,
		gateway_session_id, gateway_intent_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.OfferID, p.PayerID, p.PayeeID,
		p.Amount, p.Currency, p.Method, p.Status,
		p.GatewaySessionID, p.GatewayIntentID, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID fetches a payment by UUID.
func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns)
	return scanPayment(r.pool.QueryRow(ctx, query, id))
}

// GetByGatewayIntentID fetches a payment by its gateway payment-intent id.
func (r *PaymentRepo) GetByGatewayIntentID(ctx context.Context, intentID string) (*domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE gateway_intent_id = $1`, paymentColumns)
	return scanPayment(r.pool.QueryRow(ctx, query, intentID))
}

// GetByOfferID fetches the payment tied to an offer.
func (r *PaymentRepo) GetByOfferID(ctx context.Context, offerID uuid.UUID) (*domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE offer_id = $1`, paymentColumns)
	return scanPayment(r.pool.QueryRow(ctx, query, offerID))
}

// SetGatewaySession records the gateway linkage. The WHERE guard keeps the
// columns write-once.
func (r *PaymentRepo) SetGatewaySession(ctx context.Context, id uuid.UUID, sessionID, intentID string) error {
	query := `UPDATE payments SET gateway_session_id = $1, gateway_intent_id = $2
		WHERE id = $3 AND gateway_session_id IS NULL`

	tag, err := r.pool.Exec(ctx, query, sessionID, intentID, id)
	if err != nil {
		return fmt.Errorf("set gateway session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("gateway session already set or payment not found: %s", id)
	}
	return nil
}

// UpdateStatusCAS commits the from -> to transition only if the row still
// holds status = from. Returns false on a missed precondition. A from == to
// call revalidates the status under the row lock without touching the
// write-once timestamp columns.
func (r *PaymentRepo) UpdateStatusCAS(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.PaymentStatus, at time.Time, reason *string) (bool, error) {
	set := []string{"status = $1"}
	args := []any{to}
	argIdx := 2

	if col := domain.TimestampColumn(to); col != "" && from != to {
		set = append(set, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, at)
		argIdx++
	}
	if reason != nil {
		col := "cancel_reason"
		if to == domain.PaymentStatusDisputed {
			col = "dispute_reason"
		}
		set = append(set, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, *reason)
		argIdx++
	}

	query := fmt.Sprintf("UPDATE payments SET %s WHERE id = $%d AND status = $%d",
		strings.Join(set, ", "), argIdx, argIdx+1)
	args = append(args, id, from)

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("cas payment status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// scanPayment is a helper to scan a single row into a Payment.
func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(
		&p.ID, &p.OfferID, &p.PayerID, &p.PayeeID,
		&p.Amount, &p.Currency, &p.Method, &p.Status,
		&p.GatewaySessionID, &p.GatewayIntentID,
		&p.CreatedAt, &p.EscrowHeldAt, &p.DisputedAt,
		&p.ReleasedAt, &p.RefundedAt, &p.CancelledAt,
		&p.DisputeReason, &p.CancelReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return p, nil
}
