package postgres

import (
	"context"
	"fmt"
	"strings"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
)

// TransactionReadRepo implements ports.TransactionReader and
// ports.StatsReader over the payments, refunds and subscription_charges
// tables. Transactions are always derived, never stored.
type TransactionReadRepo struct {
	pool Pool
}

// NewTransactionReadRepo creates a new TransactionReadRepo.
func NewTransactionReadRepo(pool Pool) *TransactionReadRepo {
	return &TransactionReadRepo{pool: pool}
}

// List returns one page of the unified transaction view plus the total
// number of matching items across all pages for the same filters.
func (r *TransactionReadRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var args []any
	argIdx := 1

	// $1 is always the viewer id; with AllUsers the per-source scoping
	// collapses to TRUE and the counterparty resolves to the payee.
	args = append(args, params.UserID)
	argIdx++

	paymentScope := "(p.payer_id = $1 OR p.payee_id = $1)"
	refundScope := "(p.payer_id = $1 OR p.payee_id = $1)"
	chargeScope := "s.user_id = $1"
	if params.AllUsers {
		paymentScope, refundScope, chargeScope = "TRUE", "TRUE", "TRUE"
	}

	inner := fmt.Sprintf(`
		SELECT 'PAYMENT' AS type, p.id, p.amount, p.currency,
			CASE WHEN p.payer_id = $1 THEN p.payee_id ELSE p.payer_id END AS counterparty_id,
			p.status AS status, p.method AS method, p.created_at
		FROM payments p WHERE %s
		UNION ALL
		SELECT 'REFUND', r.id, r.amount, p.currency,
			CASE WHEN p.payer_id = $1 THEN p.payee_id ELSE p.payer_id END,
			'REFUNDED', p.method, r.created_at
		FROM refunds r JOIN payments p ON p.id = r.payment_id WHERE %s
		UNION ALL
		SELECT 'SUBSCRIPTION', s.id, s.amount, s.currency,
			'00000000-0000-0000-0000-000000000000'::uuid,
			s.status, '', s.created_at
		FROM subscription_charges s WHERE %s`,
		paymentScope, refundScope, chargeScope)

	var conditions []string
	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("t.status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.Method != nil {
		conditions = append(conditions, fmt.Sprintf("t.method = $%d", argIdx))
		args = append(args, string(*params.Method))
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("t.created_at >= to_timestamp($%d)", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("t.created_at <= to_timestamp($%d)", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count total matching items
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM (%s) t %s", inner, where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT t.type, t.id, t.amount, t.currency, t.counterparty_id, t.status, t.method, t.created_at
		FROM (%s) t %s ORDER BY t.created_at DESC LIMIT $%d OFFSET $%d`,
		inner, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t := domain.Transaction{}
		var method string
		if err := rows.Scan(&t.Type, &t.ID, &t.Amount, &t.Currency, &t.CounterpartyID, &t.Status, &method, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan transaction row: %w", err)
		}
		t.Method = domain.PaymentMethod(method)
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, total, nil
}

// GetLedgerStats aggregates escrow counters across all payments.
func (r *TransactionReadRepo) GetLedgerStats(ctx context.Context) (*ports.LedgerStats, error) {
	query := `SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE status = 'ESCROW_HELD') AS escrow_held,
		COUNT(*) FILTER (WHERE status = 'RELEASED') AS released,
		COUNT(*) FILTER (WHERE status = 'REFUNDED') AS refunded,
		COUNT(*) FILTER (WHERE status = 'CANCELLED') AS cancelled,
		COUNT(*) FILTER (WHERE status = 'DISPUTED') AS disputed,
		COALESCE(SUM(amount) FILTER (WHERE status IN ('ESCROW_HELD', 'DISPUTED')), 0) AS held_amount
		FROM payments`

	stats := &ports.LedgerStats{}
	err := r.pool.QueryRow(ctx, query).Scan(
		&stats.TotalPayments, &stats.EscrowHeld, &stats.Released,
		&stats.Refunded, &stats.Cancelled, &stats.Disputed, &stats.HeldAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("get ledger stats: %w", err)
	}
	return stats, nil
}
