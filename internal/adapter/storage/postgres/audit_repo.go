package postgres

import (
	"context"
	"fmt"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"

	"github.com/google/uuid"
)

type auditRepo struct {
	pool Pool
}

// NewAuditRepository creates a PostgreSQL-backed AuditRepository.
func NewAuditRepository(pool Pool) ports.AuditRepository {
	return &auditRepo{pool: pool}
}

func (r *auditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, payment_id, actor_id, action, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		log.ID, log.PaymentID, log.ActorID, string(log.Action), log.Details, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (r *auditRepo) ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.AuditLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, payment_id, actor_id, action, details, created_at
		 FROM audit_logs WHERE payment_id = $1 ORDER BY created_at ASC`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		var l domain.AuditLog
		var action string
		if err := rows.Scan(&l.ID, &l.PaymentID, &l.ActorID, &action, &l.Details, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		l.Action = domain.AuditAction(action)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
