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

// eventCacheTTL covers the gateway's redelivery window with margin.
const eventCacheTTL = 72 * time.Hour

// WebhookProcessorImpl implements ports.WebhookProcessor. Deliveries are
// at-least-once, possibly duplicated and out of order; every mapped
// transition re-validates its precondition through the ledger's
// compare-and-set, so stale events degrade to logged no-ops.
type WebhookProcessorImpl struct {
	gateway     ports.GatewayClient
	ledger      ports.LedgerService
	paymentRepo ports.PaymentRepository
	refundRepo  ports.RefundRepository
	eventRepo   ports.WebhookEventRepository
	eventCache  ports.EventCache
	auditSvc    ports.AuditService
	log         zerolog.Logger
}

// NewWebhookProcessor creates a new WebhookProcessorImpl.
func NewWebhookProcessor(
	gateway ports.GatewayClient,
	ledger ports.LedgerService,
	paymentRepo ports.PaymentRepository,
	refundRepo ports.RefundRepository,
	eventRepo ports.WebhookEventRepository,
	eventCache ports.EventCache,
	auditSvc ports.AuditService,
	log zerolog.Logger,
) *WebhookProcessorImpl {
	return &WebhookProcessorImpl{
		gateway:     gateway,
		ledger:      ledger,
		paymentRepo: paymentRepo,
		refundRepo:  refundRepo,
		eventRepo:   eventRepo,
		eventCache:  eventCache,
		auditSvc:    auditSvc,
		log:         log,
	}
}

// Process verifies, deduplicates and applies one raw webhook delivery.
func (s *WebhookProcessorImpl) Process(ctx context.Context, payload []byte, signature string) error {
	// Signature check comes before any state access: a rejected delivery
	// must leave no side effects.
	if !s.gateway.VerifySignature(payload, signature) {
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		return apperror.ErrInvalidWebhookSignature()
	}

	ev, err := domain.ParseGatewayEvent(payload)
	if err != nil {
		return apperror.Validation(err.Error())
	}

	// Layer 1: redis fast path. Best effort — a miss or error here falls
	// through to the durable check.
	if fresh, err := s.eventCache.CheckAndSet(ctx, ev.EventID, eventCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("event_id", ev.EventID).Msg("event cache unavailable, falling through to db")
	} else if !fresh {
		metrics.WebhookEvents.WithLabelValues(string(ev.Type), "duplicate").Inc()
		s.log.Debug().Str("event_id", ev.EventID).Msg("duplicate event (cache)")
		return nil
	}

	// Layer 2: durable dedup. The id is persisted before the ledger effect;
	// the unique key means a concurrent duplicate delivery cannot
	// double-apply.
	inserted, err := s.eventRepo.InsertIfAbsent(ctx, ev.Record(payload, time.Now().UTC()))
	if err != nil {
		return apperror.InternalError(fmt.Errorf("record webhook event: %w", err))
	}
	if !inserted {
		metrics.WebhookEvents.WithLabelValues(string(ev.Type), "duplicate").Inc()
		s.log.Debug().Str("event_id", ev.EventID).Msg("duplicate event (db)")
		return nil
	}

	if ev.Type == domain.GatewayEventUnknown {
		metrics.WebhookEvents.WithLabelValues("unknown", "ignored").Inc()
		s.log.Info().Str("event_id", ev.EventID).Msg("unrecognized gateway event type, ignoring")
		return nil
	}

	if err := s.apply(ctx, ev); err != nil {
		if apperror.IsKind(err, apperror.KindStateConflict) {
			// Out-of-order or late delivery: the ledger already advanced
			// past this event's precondition. Not an error.
			metrics.WebhookEvents.WithLabelValues(string(ev.Type), "stale").Inc()
			s.log.Info().
				Str("event_id", ev.EventID).
				Str("event_type", string(ev.Type)).
				Msg("stale gateway event, no-op")
			return nil
		}
		metrics.WebhookEvents.WithLabelValues(string(ev.Type), "error").Inc()
		// Release both dedup layers: the effect did not land, so the
		// gateway's redelivery must be allowed to retry instead of acking
		// against a dead record.
		if derr := s.eventRepo.Delete(ctx, ev.EventID); derr != nil {
			s.log.Error().Err(derr).Str("event_id", ev.EventID).Msg("failed to release event record for redelivery")
		}
		if cerr := s.eventCache.Invalidate(ctx, ev.EventID); cerr != nil {
			s.log.Warn().Err(cerr).Str("event_id", ev.EventID).Msg("failed to drop event from cache")
		}
		return err
	}

	metrics.WebhookEvents.WithLabelValues(string(ev.Type), "applied").Inc()
	s.auditEvent(ev)
	return nil
}

// apply maps one parsed event onto its ledger transition.
func (s *WebhookProcessorImpl) apply(ctx context.Context, ev *domain.GatewayEvent) error {
	p, err := s.paymentRepo.GetByGatewayIntentID(ctx, ev.IntentID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("find payment for intent: %w", err))
	}
	if p == nil {
		s.log.Warn().
			Str("event_id", ev.EventID).
			Str("intent_id", ev.IntentID).
			Msg("gateway event references unknown payment, ignoring")
		return nil
	}

	switch ev.Type {
	case domain.GatewayEventPaymentSucceeded:
		_, err := s.ledger.ConfirmEscrowHeld(ctx, p.ID, ev.IntentID)
		return err

	case domain.GatewayEventChargeRefunded:
		return s.applyRefund(ctx, p, ev)

	case domain.GatewayEventPaymentFailed:
		// Pinned to AWAITING_PAYMENT at the CAS, not to the snapshot read: a
		// concurrent success event must never be overwritten by a late
		// failure. The conflict surfaces as a stale no-op upstream.
		_, err := s.ledger.CancelAwaitingPayment(ctx, p.ID, "gateway: payment failed")
		return err

	case domain.GatewayEventDisputeCreated:
		_, err := s.ledger.MarkDisputed(ctx, p.ID, ev.DisputeReason)
		return err
	}
	return nil
}

// applyRefund records the gateway-reported refund. The gateway reports the
// cumulative refunded amount, so the entry to append is the delta over what
// the sub-ledger already holds; a full refund always clears the remaining
// balance.
func (s *WebhookProcessorImpl) applyRefund(ctx context.Context, p *domain.Payment, ev *domain.GatewayEvent) error {
	recorded, err := s.refundRepo.SumByPaymentID(ctx, p.ID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("sum refunds: %w", err))
	}

	var amount int64
	if ev.FullRefund() {
		amount = p.Amount - recorded
	} else {
		amount = ev.AmountRefunded - recorded
	}
	if amount <= 0 {
		s.log.Info().
			Str("payment_id", p.ID.String()).
			Int64("reported", ev.AmountRefunded).
			Int64("recorded", recorded).
			Msg("refund event already reflected in sub-ledger, no-op")
		return nil
	}

	reason := ev.RefundReason
	if reason == "" {
		reason = "gateway refund"
	}
	_, err = s.ledger.RecordRefund(ctx, p.ID, amount, reason, nil, uuid.Nil)
	return err
}

func (s *WebhookProcessorImpl) auditEvent(ev *domain.GatewayEvent) {
	details, _ := json.Marshal(map[string]any{
		"event_id":   ev.EventID,
		"event_type": string(ev.Type),
		"intent_id":  ev.IntentID,
	})
	s.auditSvc.Record(context.Background(), &domain.AuditLog{
		ID:        uuid.New(),
		Action:    domain.AuditActionWebhookEvent,
		Details:   string(details),
		CreatedAt: time.Now().UTC(),
	})
}
