package service

import (
	"context"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditService creates a new audit service.
// If repo is nil, audit entries are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, log: log}
}

// Record persists an audit entry asynchronously (fire-and-forget).
func (s *auditService) Record(ctx context.Context, entry *domain.AuditLog) {
	go func() {
		ev := s.log.Info().Str("action", string(entry.Action))
		if entry.PaymentID != nil {
			ev = ev.Str("payment_id", entry.PaymentID.String())
		}
		if entry.ActorID != nil {
			ev = ev.Str("actor_id", entry.ActorID.String())
		}
		ev.Msg("audit")

		if s.repo != nil {
			if err := s.repo.Create(context.Background(), entry); err != nil {
				s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
			}
		}
	}()
}

// History returns the recorded trail for one payment, oldest first.
func (s *auditService) History(ctx context.Context, paymentID uuid.UUID) ([]domain.AuditLog, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.ListByPaymentID(ctx, paymentID)
}
