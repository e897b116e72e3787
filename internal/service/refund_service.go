package service

import (
	"context"
	"fmt"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/internal/metrics"
	"marketplace-escrow/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RefundCoordinatorImpl implements ports.RefundCoordinator. It owns
// authorization and refund policy; the ledger owns the state machine.
type RefundCoordinatorImpl struct {
	ledger      ports.LedgerService
	paymentRepo ports.PaymentRepository
	refundRepo  ports.RefundRepository
	gateway     ports.GatewayClient
	log         zerolog.Logger
}

// NewRefundCoordinator creates a new RefundCoordinatorImpl.
func NewRefundCoordinator(
	ledger ports.LedgerService,
	paymentRepo ports.PaymentRepository,
	refundRepo ports.RefundRepository,
	gateway ports.GatewayClient,
	log zerolog.Logger,
) *RefundCoordinatorImpl {
	return &RefundCoordinatorImpl{
		ledger:      ledger,
		paymentRepo: paymentRepo,
		refundRepo:  refundRepo,
		gateway:     gateway,
		log:         log,
	}
}

// Refund validates the request, issues the gateway refund and records it in
// the ledger. The gateway call goes first: if the processor rejects, the
// ledger is untouched. The gateway's own webhook for the refund later
// deduplicates against the recorded entry by cumulative amount.
func (s *RefundCoordinatorImpl) Refund(ctx context.Context, actor domain.Actor, params ports.RefundParams) (*domain.Refund, error) {
	p, err := s.paymentRepo.GetByID(ctx, params.PaymentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment: %w", err))
	}
	if p == nil {
		return nil, apperror.ErrNotFound("payment")
	}

	if !p.IsParticipant(actor.UserID) && !actor.IsAdmin() {
		return nil, apperror.ErrNotParticipant()
	}

	switch p.Status {
	case domain.PaymentStatusEscrowHeld:
		// open to participants
	case domain.PaymentStatusDisputed:
		// dispute resolution is an admin action
		if !actor.IsAdmin() {
			return nil, apperror.ErrAdminOnly()
		}
	default:
		return nil, apperror.ErrStateConflict(string(p.Status), "ESCROW_HELD or DISPUTED")
	}

	refunded, err := s.refundRepo.SumByPaymentID(ctx, p.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("sum refunds: %w", err))
	}
	remaining := p.Amount - refunded

	amount := remaining // omitted amount means full remaining balance
	if params.Amount != nil {
		amount = *params.Amount
	}
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if amount > remaining {
		return nil, apperror.ErrRefundExceedsBalance()
	}
	if p.GatewayIntentID == nil {
		return nil, apperror.ErrStateConflict("no gateway charge", "refundable payment")
	}

	refundID, err := s.gateway.IssueRefund(ctx, *p.GatewayIntentID, amount, p.Currency, params.Reason)
	if err != nil {
		metrics.GatewayCalls.WithLabelValues("refund", "error").Inc()
		return nil, err
	}
	metrics.GatewayCalls.WithLabelValues("refund", "ok").Inc()

	rf, err := s.ledger.RecordRefund(ctx, p.ID, amount, params.Reason, &refundID, actor.UserID)
	if err != nil {
		// The money moved at the gateway but the entry did not commit. The
		// gateway's charge.refunded webhook re-derives the missing delta.
		s.log.Error().Err(err).
			Str("payment_id", p.ID.String()).
			Str("gateway_refund_id", refundID).
			Msg("gateway refund issued but ledger record failed, awaiting webhook reconciliation")
		return nil, err
	}

	s.log.Info().
		Str("payment_id", p.ID.String()).
		Str("refund_id", rf.ID.String()).
		Int64("amount", amount).
		Msg("refund issued")

	return rf, nil
}

// CancelService cancels the escrow attached to an offer. Before funding this
// is a pure ledger transition. Once funds are held, the remaining balance is
// returned to the payer at the gateway first, then the ledger moves to
// CANCELLED; a gateway failure leaves the ledger untouched.
func (s *RefundCoordinatorImpl) CancelService(ctx context.Context, actor domain.Actor, offerID uuid.UUID, reason string) (*domain.Payment, error) {
	p, err := s.paymentRepo.GetByOfferID(ctx, offerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment by offer: %w", err))
	}
	if p == nil {
		return nil, apperror.ErrNotFound("payment")
	}

	if !p.IsParticipant(actor.UserID) && !actor.IsAdmin() {
		return nil, apperror.ErrNotParticipant()
	}

	if p.Status == domain.PaymentStatusEscrowHeld && p.Method == domain.PaymentMethodGateway {
		refunded, err := s.refundRepo.SumByPaymentID(ctx, p.ID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("sum refunds: %w", err))
		}
		if remaining := p.Amount - refunded; remaining > 0 {
			if p.GatewayIntentID == nil {
				return nil, apperror.ErrStateConflict("no gateway charge", "refundable payment")
			}
			if _, err := s.gateway.IssueRefund(ctx, *p.GatewayIntentID, remaining, p.Currency, reason); err != nil {
				metrics.GatewayCalls.WithLabelValues("refund", "error").Inc()
				return nil, err
			}
			metrics.GatewayCalls.WithLabelValues("refund", "ok").Inc()
		}
	}

	return s.ledger.Cancel(ctx, actor, p.ID, reason)
}
