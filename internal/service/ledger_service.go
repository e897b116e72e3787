package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/internal/metrics"
	"marketplace-escrow/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService. Every transition uses
// compare-and-set on the status column as its sole serialization primitive.
type LedgerServiceImpl struct {
	paymentRepo ports.PaymentRepository
	refundRepo  ports.RefundRepository
	gateway     ports.GatewayClient
	offers      ports.OfferProvider
	transactor  ports.DBTransactor
	notifier    ports.Notifier
	auditSvc    ports.AuditService
	log         zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	paymentRepo ports.PaymentRepository,
	refundRepo ports.RefundRepository,
	gateway ports.GatewayClient,
	offers ports.OfferProvider,
	transactor ports.DBTransactor,
	notifier ports.Notifier,
	auditSvc ports.AuditService,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		paymentRepo: paymentRepo,
		refundRepo:  refundRepo,
		gateway:     gateway,
		offers:      offers,
		transactor:  transactor,
		notifier:    notifier,
		auditSvc:    auditSvc,
		log:         log,
	}
}

// CreateEscrowPayment validates the offer, creates the payment, requests a
// gateway session and moves the payment to AWAITING_PAYMENT.
func (s *LedgerServiceImpl) CreateEscrowPayment(ctx context.Context, actor domain.Actor, params ports.CreateEscrowParams) (*ports.EscrowSession, error) {
	if params.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	offer, err := s.offers.GetOffer(ctx, params.OfferID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, apperror.ErrNotFound("offer")
	}
	if !offer.Accepted {
		return nil, apperror.Validation("offer has not been accepted")
	}
	if offer.SeekerID != actor.UserID && !actor.IsAdmin() {
		return nil, apperror.ErrForbidden("only the offer's seeker can fund escrow")
	}
	if params.Amount != offer.Price || params.Currency != offer.Currency {
		return nil, apperror.ErrAmountMismatch()
	}

	existing, err := s.paymentRepo.GetByOfferID(ctx, params.OfferID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check existing payment: %w", err))
	}

	var p *domain.Payment
	switch {
	case existing == nil:
		method := params.Method
		if method == "" {
			method = domain.PaymentMethodGateway
		}
		p = &domain.Payment{
			ID:        uuid.New(),
			OfferID:   offer.ID,
			PayerID:   offer.SeekerID,
			PayeeID:   offer.ProviderID,
			Amount:    params.Amount,
			Currency:  params.Currency,
			Method:    method,
			Status:    domain.PaymentStatusCreated,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.paymentRepo.Create(ctx, p); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("create payment: %w", err))
		}
	case existing.Status == domain.PaymentStatusCreated && existing.GatewaySessionID == nil:
		// A prior attempt whose checkout request failed. Reuse the row and
		// request a fresh session so a transient gateway outage never bricks
		// escrow for the offer.
		p = existing
	default:
		return nil, apperror.ErrStateConflict(string(existing.Status), "no existing escrow for offer")
	}

	var checkoutURL string
	if p.Method == domain.PaymentMethodGateway {
		session, err := s.gateway.CreateCheckoutSession(ctx, p)
		if err != nil {
			metrics.GatewayCalls.WithLabelValues("create_session", "error").Inc()
			// Payment stays CREATED; the payer can retry escrow creation
			// against a fresh session once the gateway recovers.
			return nil, err
		}
		metrics.GatewayCalls.WithLabelValues("create_session", "ok").Inc()

		if err := s.paymentRepo.SetGatewaySession(ctx, p.ID, session.SessionID, session.IntentID); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("record gateway session: %w", err))
		}
		p.GatewaySessionID = &session.SessionID
		p.GatewayIntentID = &session.IntentID
		checkoutURL = session.CheckoutURL
	}

	if err := s.transition(ctx, p, domain.PaymentStatusAwaitingPayment, nil); err != nil {
		return nil, err
	}

	s.audit(p.ID, &actor.UserID, domain.AuditActionCreateEscrow, map[string]any{
		"offer_id": offer.ID.String(),
		"amount":   params.Amount,
		"currency": params.Currency,
		"method":   string(p.Method),
	})
	s.notifier.PaymentTransition(ctx, p, "escrow_created")

	s.log.Info().
		Str("payment_id", p.ID.String()).
		Str("offer_id", offer.ID.String()).
		Int64("amount", params.Amount).
		Str("currency", params.Currency).
		Msg("escrow payment created")

	return &ports.EscrowSession{Payment: p, CheckoutURL: checkoutURL}, nil
}

// ConfirmEscrowHeld moves AWAITING_PAYMENT -> ESCROW_HELD. A repeat call for
// the same gatewayRef on an already-held payment is a no-op success.
func (s *LedgerServiceImpl) ConfirmEscrowHeld(ctx context.Context, paymentID uuid.UUID, gatewayRef string) (*domain.Payment, error) {
	p, err := s.getPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if p.Status == domain.PaymentStatusEscrowHeld &&
		p.GatewayIntentID != nil && *p.GatewayIntentID == gatewayRef {
		return p, nil
	}
	if p.Status != domain.PaymentStatusAwaitingPayment {
		return nil, apperror.ErrStateConflict(string(p.Status), string(domain.PaymentStatusAwaitingPayment))
	}

	if err := s.transition(ctx, p, domain.PaymentStatusEscrowHeld, nil); err != nil {
		return nil, err
	}

	s.audit(p.ID, nil, domain.AuditActionEscrowHeld, map[string]any{"gateway_ref": gatewayRef})
	s.notifier.PaymentTransition(ctx, p, "escrow_held")

	s.log.Info().
		Str("payment_id", p.ID.String()).
		Str("gateway_ref", gatewayRef).
		Msg("escrow held")

	return p, nil
}

// ReleaseFunds moves ESCROW_HELD -> RELEASED and issues the payout. The CAS
// update and the payout call share one database transaction: a gateway
// failure rolls the transition back, so no partial state is observable.
// Admin actors may also release from DISPUTED (dispute resolution) and are
// not gated on the completion signal.
func (s *LedgerServiceImpl) ReleaseFunds(ctx context.Context, actor domain.Actor, paymentID uuid.UUID) (*domain.Payment, error) {
	p, err := s.getPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if actor.UserID != p.PayerID && !actor.IsAdmin() {
		return nil, apperror.ErrForbidden("only the payer or an admin can release funds")
	}

	from := p.Status
	switch from {
	case domain.PaymentStatusEscrowHeld:
		// gated on the completion signal below
	case domain.PaymentStatusDisputed:
		if !actor.IsAdmin() {
			return nil, apperror.ErrAdminOnly()
		}
	default:
		return nil, apperror.ErrStateConflict(string(from), string(domain.PaymentStatusEscrowHeld))
	}

	if from == domain.PaymentStatusEscrowHeld && !actor.IsAdmin() {
		offer, err := s.offers.GetOffer(ctx, p.OfferID)
		if err != nil {
			return nil, err
		}
		if offer == nil || !offer.Completed {
			return nil, apperror.ErrWorkNotCompleted()
		}
	}

	now := time.Now().UTC()
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ok, err := s.paymentRepo.UpdateStatusCAS(ctx, dbTx, p.ID, from, domain.PaymentStatusReleased, now, nil)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if !ok {
		return nil, apperror.ErrStateConflict("changed concurrently", string(from))
	}

	payoutID, err := s.gateway.IssuePayout(ctx, p.PayeeID, p.Amount, p.Currency)
	if err != nil {
		metrics.GatewayCalls.WithLabelValues("payout", "error").Inc()
		// Rollback via the deferred call: ledger remains in `from`.
		return nil, err
	}
	metrics.GatewayCalls.WithLabelValues("payout", "ok").Inc()

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit release: %w", err))
	}

	p.Status = domain.PaymentStatusReleased
	p.ReleasedAt = &now
	metrics.EscrowTransitions.WithLabelValues(string(from), string(domain.PaymentStatusReleased)).Inc()

	s.audit(p.ID, &actor.UserID, domain.AuditActionRelease, map[string]any{"payout_id": payoutID})
	s.notifier.PaymentTransition(ctx, p, "funds_released")

	s.log.Info().
		Str("payment_id", p.ID.String()).
		Str("payout_id", payoutID).
		Int64("amount", p.Amount).
		Msg("funds released")

	return p, nil
}

// MarkDisputed moves ESCROW_HELD -> DISPUTED. Resolution is a separate
// admin action (ReleaseFunds or a refund with admin authorization).
func (s *LedgerServiceImpl) MarkDisputed(ctx context.Context, paymentID uuid.UUID, reason string) (*domain.Payment, error) {
	p, err := s.getPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PaymentStatusEscrowHeld {
		return nil, apperror.ErrStateConflict(string(p.Status), string(domain.PaymentStatusEscrowHeld))
	}

	if err := s.transition(ctx, p, domain.PaymentStatusDisputed, &reason); err != nil {
		return nil, err
	}

	s.audit(p.ID, nil, domain.AuditActionDispute, map[string]any{"reason": reason})
	s.notifier.PaymentTransition(ctx, p, "disputed")

	s.log.Info().Str("payment_id", p.ID.String()).Str("reason", reason).Msg("payment disputed")
	return p, nil
}

// Cancel moves AWAITING_PAYMENT or (pre-completion) ESCROW_HELD -> CANCELLED.
func (s *LedgerServiceImpl) Cancel(ctx context.Context, actor domain.Actor, paymentID uuid.UUID, reason string) (*domain.Payment, error) {
	p, err := s.getPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if !p.IsParticipant(actor.UserID) && !actor.IsAdmin() {
		return nil, apperror.ErrNotParticipant()
	}

	switch p.Status {
	case domain.PaymentStatusAwaitingPayment:
		// always cancellable before funding
	case domain.PaymentStatusEscrowHeld:
		offer, err := s.offers.GetOffer(ctx, p.OfferID)
		if err != nil {
			return nil, err
		}
		if offer != nil && offer.Completed {
			return nil, apperror.ErrWorkAlreadyStarted()
		}
	default:
		return nil, apperror.ErrStateConflict(string(p.Status), "AWAITING_PAYMENT or ESCROW_HELD")
	}

	if err := s.transition(ctx, p, domain.PaymentStatusCancelled, &reason); err != nil {
		return nil, err
	}

	s.audit(p.ID, &actor.UserID, domain.AuditActionCancel, map[string]any{"reason": reason})
	s.notifier.PaymentTransition(ctx, p, "cancelled")

	s.log.Info().Str("payment_id", p.ID.String()).Str("reason", reason).Msg("payment cancelled")
	return p, nil
}

// CancelAwaitingPayment cancels a payment the gateway reported as failed.
// The CAS is pinned to AWAITING_PAYMENT rather than the loaded snapshot: a
// success event committing between the read and this update must win, so
// held funds can never be cancelled by a late failure event.
func (s *LedgerServiceImpl) CancelAwaitingPayment(ctx context.Context, paymentID uuid.UUID, reason string) (*domain.Payment, error) {
	p, err := s.getPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ok, err := s.paymentRepo.UpdateStatusCAS(ctx, dbTx, p.ID,
		domain.PaymentStatusAwaitingPayment, domain.PaymentStatusCancelled, now, &reason)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if !ok {
		return nil, apperror.ErrStateConflict(string(p.Status), string(domain.PaymentStatusAwaitingPayment))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit transition: %w", err))
	}

	p.Status = domain.PaymentStatusCancelled
	p.CancelledAt = &now
	p.CancelReason = &reason
	metrics.EscrowTransitions.WithLabelValues(
		string(domain.PaymentStatusAwaitingPayment), string(domain.PaymentStatusCancelled)).Inc()

	s.audit(p.ID, nil, domain.AuditActionCancel, map[string]any{"reason": reason})
	s.notifier.PaymentTransition(ctx, p, "cancelled")

	s.log.Info().Str("payment_id", p.ID.String()).Str("reason", reason).Msg("payment cancelled")
	return p, nil
}

// RecordRefund appends a refund entry. A refund that exhausts the remaining
// balance drives the payment to REFUNDED; a partial refund leaves the status
// in place but still revalidates it under the row lock so a concurrent
// release cannot interleave.
func (s *LedgerServiceImpl) RecordRefund(ctx context.Context, paymentID uuid.UUID, amount int64, reason string, gatewayRefundID *string, initiatedBy uuid.UUID) (*domain.Refund, error) {
	p, err := s.getPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PaymentStatusEscrowHeld && p.Status != domain.PaymentStatusDisputed {
		return nil, apperror.ErrStateConflict(string(p.Status), "ESCROW_HELD or DISPUTED")
	}

	refunded, err := s.refundRepo.SumByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("sum refunds: %w", err))
	}
	remaining := p.Amount - refunded
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if amount > remaining {
		return nil, apperror.ErrRefundExceedsBalance()
	}

	now := time.Now().UTC()
	var actorID *uuid.UUID
	if initiatedBy != uuid.Nil {
		actorID = &initiatedBy
	}

	rf := &domain.Refund{
		ID:              uuid.New(),
		PaymentID:       p.ID,
		Amount:          amount,
		Reason:          reason,
		GatewayRefundID: gatewayRefundID,
		InitiatedBy:     initiatedBy,
		CreatedAt:       now,
	}

	from := p.Status
	to := from
	if amount == remaining {
		to = domain.PaymentStatusRefunded
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ok, err := s.paymentRepo.UpdateStatusCAS(ctx, dbTx, p.ID, from, to, now, nil)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if !ok {
		return nil, apperror.ErrStateConflict("changed concurrently", string(from))
	}

	if err := s.refundRepo.Create(ctx, dbTx, rf); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create refund: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit refund: %w", err))
	}

	if to == domain.PaymentStatusRefunded {
		p.Status = domain.PaymentStatusRefunded
		p.RefundedAt = &now
		metrics.EscrowTransitions.WithLabelValues(string(from), string(to)).Inc()
	}

	s.audit(p.ID, actorID, domain.AuditActionRefund, map[string]any{
		"amount": amount,
		"reason": reason,
		"full":   to == domain.PaymentStatusRefunded,
	})
	s.notifier.PaymentTransition(ctx, p, "refund_recorded")

	s.log.Info().
		Str("payment_id", p.ID.String()).
		Int64("refund_amount", amount).
		Int64("remaining", remaining-amount).
		Msg("refund recorded")

	return rf, nil
}

// ListRefunds returns a payment's refund sub-ledger, visible to its
// participants and admins.
func (s *LedgerServiceImpl) ListRefunds(ctx context.Context, actor domain.Actor, paymentID uuid.UUID) ([]domain.Refund, error) {
	p, err := s.getPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.IsParticipant(actor.UserID) && !actor.IsAdmin() {
		return nil, apperror.ErrNotParticipant()
	}

	refunds, err := s.refundRepo.ListByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list refunds: %w", err))
	}
	return refunds, nil
}

// GetPayment fetches a payment by id, mapping absence to NotFoundError.
func (s *LedgerServiceImpl) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return s.getPayment(ctx, id)
}

func (s *LedgerServiceImpl) getPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment: %w", err))
	}
	if p == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	return p, nil
}

// transition commits a simple CAS edge in its own transaction and updates
// the in-memory payment on success.
func (s *LedgerServiceImpl) transition(ctx context.Context, p *domain.Payment, to domain.PaymentStatus, reason *string) error {
	from := p.Status
	if !domain.CanTransition(from, to) {
		return apperror.ErrStateConflict(string(from), string(to))
	}

	now := time.Now().UTC()
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ok, err := s.paymentRepo.UpdateStatusCAS(ctx, dbTx, p.ID, from, to, now, reason)
	if err != nil {
		return apperror.InternalError(err)
	}
	if !ok {
		return apperror.ErrStateConflict("changed concurrently", string(from))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit transition: %w", err))
	}

	p.Status = to
	switch to {
	case domain.PaymentStatusEscrowHeld:
		p.EscrowHeldAt = &now
	case domain.PaymentStatusDisputed:
		p.DisputedAt = &now
		p.DisputeReason = reason
	case domain.PaymentStatusReleased:
		p.ReleasedAt = &now
	case domain.PaymentStatusRefunded:
		p.RefundedAt = &now
	case domain.PaymentStatusCancelled:
		p.CancelledAt = &now
		p.CancelReason = reason
	}

	metrics.EscrowTransitions.WithLabelValues(string(from), string(to)).Inc()
	return nil
}

// audit serializes details and hands the entry to the audit service.
func (s *LedgerServiceImpl) audit(paymentID uuid.UUID, actorID *uuid.UUID, action domain.AuditAction, details map[string]any) {
	detailsJSON, _ := json.Marshal(details)
	s.auditSvc.Record(context.Background(), &domain.AuditLog{
		ID:        uuid.New(),
		PaymentID: &paymentID,
		ActorID:   actorID,
		Action:    action,
		Details:   string(detailsJSON),
		CreatedAt: time.Now().UTC(),
	})
}
