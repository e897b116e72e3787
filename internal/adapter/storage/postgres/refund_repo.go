package postgres

import (
	"context"
	"fmt"

	"marketplace-escrow/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RefundRepo implements ports.RefundRepository.
type RefundRepo struct {
	pool Pool
}

// NewRefundRepo creates a new RefundRepo.
func NewRefundRepo(pool Pool) *RefundRepo {
	return &RefundRepo{pool: pool}
}

// Create inserts a refund entry within a database transaction so the entry
// commits atomically with the status CAS it accompanies.
func (r *RefundRepo) Create(ctx context.Context, tx pgx.Tx, rf *domain.Refund) error {
	query := `INSERT INTO refunds (id, payment_id, amount, reason, gateway_refund_id, initiated_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		rf.ID, rf.PaymentID, rf.Amount, rf.Reason,
		rf.GatewayRefundID, rf.InitiatedBy, rf.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

// ListByPaymentID returns a payment's refund entries in insertion order.
func (r *RefundRepo) ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.Refund, error) {
	query := `SELECT id, payment_id, amount, reason, gateway_refund_id, initiated_by, created_at
		FROM refunds WHERE payment_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	var refunds []domain.Refund
	for rows.Next() {
		rf := domain.Refund{}
		if err := rows.Scan(
			&rf.ID, &rf.PaymentID, &rf.Amount, &rf.Reason,
			&rf.GatewayRefundID, &rf.InitiatedBy, &rf.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan refund row: %w", err)
		}
		refunds = append(refunds, rf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refund rows: %w", err)
	}
	return refunds, nil
}

// SumByPaymentID returns the total amount already refunded for a payment.
func (r *RefundRepo) SumByPaymentID(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE payment_id = $1`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, paymentID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum refunds: %w", err)
	}
	return sum, nil
}
