package service

import (
	"context"
	"testing"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports/mocks"
	"marketplace-escrow/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type webhookTestDeps struct {
	svc         *WebhookProcessorImpl
	gateway     *mocks.MockGatewayClient
	ledger      *mocks.MockLedgerService
	paymentRepo *mocks.MockPaymentRepository
	refundRepo  *mocks.MockRefundRepository
	eventRepo   *mocks.MockWebhookEventRepository
	eventCache  *mocks.MockEventCache
	auditSvc    *mocks.MockAuditService
	ctrl        *gomock.Controller
}

func setupWebhookProcessor(t *testing.T) *webhookTestDeps {
	ctrl := gomock.NewController(t)
	d := &webhookTestDeps{
		gateway:     mocks.NewMockGatewayClient(ctrl),
		ledger:      mocks.NewMockLedgerService(ctrl),
		paymentRepo: mocks.NewMockPaymentRepository(ctrl),
		refundRepo:  mocks.NewMockRefundRepository(ctrl),
		eventRepo:   mocks.NewMockWebhookEventRepository(ctrl),
		eventCache:  mocks.NewMockEventCache(ctrl),
		auditSvc:    mocks.NewMockAuditService(ctrl),
		ctrl:        ctrl,
	}
	d.svc = NewWebhookProcessor(
		d.gateway, d.ledger, d.paymentRepo, d.refundRepo,
		d.eventRepo, d.eventCache, d.auditSvc, zerolog.Nop(),
	)
	return d
}

const testSig = "t=1,v1=abc"

func succeededPayload(eventID, intentID string) []byte {
	return []byte(`{"id":"` + eventID + `","type":"payment_intent.succeeded","data":{"object":{"id":"` + intentID + `"}}}`)
}

// expectFreshEvent wires both dedup layers to treat the delivery as new.
func (d *webhookTestDeps) expectFreshEvent(ctx context.Context) {
	d.eventCache.EXPECT().CheckAndSet(ctx, gomock.Any(), eventCacheTTL).Return(true, nil)
	d.eventRepo.EXPECT().InsertIfAbsent(ctx, gomock.Any()).Return(true, nil)
}

func TestWebhookProcessor_InvalidSignature(t *testing.T) {
	d := setupWebhookProcessor(t)
	defer d.ctrl.Finish()

	payload := succeededPayload("evt_1", "pi_1")
	d.gateway.EXPECT().VerifySignature(payload, "bad").Return(false)
	// no cache, repo or ledger calls: rejected deliveries leave no trace

	err := d.svc.Process(context.Background(), payload, "bad")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindAuthorization))
}

func TestWebhookProcessor_MalformedPayload(t *testing.T) {
	d := setupWebhookProcessor(t)
	defer d.ctrl.Finish()

	payload := []byte(`{not json`)
	d.gateway.EXPECT().VerifySignature(payload, testSig).Return(true)

	err := d.svc.Process(context.Background(), payload, testSig)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
}

func TestWebhookProcessor_PaymentSucceeded_ConfirmsEscrow(t *testing.T) {
	d := setupWebhookProcessor(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	p := heldPayment(uuid.New(), uuid.New())
	p.Status = domain.PaymentStatusAwaitingPayment
	payload := succeededPayload("evt_1", "pi_123")

	d.gateway.EXPECT().VerifySignature(payload, testSig).Return(true)
	d.expectFreshEvent(ctx)
	d.paymentRepo.EXPECT().GetByGatewayIntentID(ctx, "pi_123").Return(p, nil)
	d.ledger.EXPECT().ConfirmEscrowHeld(ctx, p.ID, "pi_123").Return(p, nil)
	d.auditSvc.EXPECT().Record(gomock.Any(), gomock.Any())

	require.NoError(t, d.svc.Process(ctx, payload, testSig))
}

func TestWebhookProcessor_DuplicateInCache(t *testing.T) {
	d := setupWebhookProcessor(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payload := succeededPayload("evt_1", "pi_123")

	d.gateway.EXPECT().VerifySignature(payload, testSig).Return(true)
	d.eventCache.EXPECT().CheckAndSet(ctx, "evt_1", eventCacheTTL).Return(false, nil)
	// no db insert, no ledger effect

	require.NoError(t, d.svc.Process(ctx, payload, testSig))
}

func TestWebhookProcessor_DuplicateInDB(t *testing.T) {
	d := setupWebhookProcessor(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payload := succeededPayload("evt_1", "pi_123")

	d.gateway.EXPECT().VerifySignature(payload, testSig).Return(true)
	d.eventCache.EXPECT().CheckAndSet(ctx, "evt_1", eventCacheTTL).Return(true, nil)
	d.eventRepo.EXPECT().InsertIfAbsent(ctx, gomock.Any()).Return(false, nil)

	require.NoError(t, d.svc.Process(ctx, payload, testSig))
}

func TestWebhookProcessor_CacheOutageFallsThroughToDB(t *testing.T) {
	d := setupWebhookProcessor(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	p := heldPayment(uuid.New(), uuid.New())
	payload := succeededPayload("evt_1", "pi_123")

	d.gateway.EXPECT().VerifySignature(payload, testSig).Return(true)
	d.eventCache.EXPECT().CheckAndSet(ctx, "evt_1", eventCacheTTL).Return(false, assert.AnError)
	d.eventRepo.EXPECT().InsertIfAbsent(ctx, gomock.Any()).Return(true, nil)
	d.paymentRepo.EXPECT().GetByGatewayIntentID(ctx, "pi_123").Return(p, nil)
	d.ledger.EXPECT().ConfirmEscrowHeld(ctx, p.ID, "pi_123").Return(p, nil)
	d.auditSvc.EXPECT().Record(gomock.Any(), gomock.Any())

	require.NoError(t, d.svc.Process(ctx, payload, testSig))
}

func TestWebhookProcessor_UnknownEventType_RecordedAndIgnored(t *testing.T) {
	d := setupWebhookProcessor(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payload := []byte(`{"id":"evt_9","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

	d.gateway.EXPECT().VerifySignature(payload, testSig).Return(true)
	d.expectFreshEvent(ctx)
	// recorded for dedup but never applied

	require.NoError(t, d.svc.Process(ctx, payload, testSig))
}

func TestWebhookProcessor_UnknownPayment_NoOp(t *testing.T) {
	d := setupWebhookProcessor(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payload := succeededPayload("evt_1", "pi_missing")

	d.gateway.EXPECT().VerifySignature(payload, testSig).Return(true)
	d.expectFreshEvent(ctx)
	d.paymentRepo.EXPECT().GetByGatewayIntentID(ctx, "pi_missing").Return(nil, nil)
	d.auditSvc.EXPECT().Record(gomock.Any(), gomock.Any())

	require.NoError(t, d.svc.Process(ctx, payload, testSig))
}

func TestWebhookProcessor_StaleEvent_StateConflictIsNoOp(t *testing.T) {
	d := setupWebhookProcessor(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	p := heldPayment(uuid.New(), uuid.New())
	p.Status = domain.PaymentStatusReleased
	payload := succeededPayload("evt_1", "pi_123")

	d.gateway.EXPECT().VerifySignature(payload, testSig).Return(true)
	d.expectFreshEvent(ctx)
	d.paymentRepo.EXPECT().GetByGatewayIntentID(ctx, "pi_123").Return(p, nil)
	d.ledger.EXPECT().ConfirmEscrowHeld(ctx, p.ID, "pi_123").
		Return(nil, apperror.ErrStateConflict("RELEASED", "AWAITING_PAYMENT"))

	// late delivery after the ledger advanced: swallowed, logged, ack'd
	require.NoError(t, d.svc.Process(ctx, payload, testSig))
}

func TestWebhookProcessor_PaymentFailed_CancelsAwaitingOnly(t *testing.T) {
	d := setupWebhookProcessor(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payload := []byte(`{"id":"evt_2","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_123"}}}`)

	t.Run("awaiting payment is cancelled", func(t *testing.T) {
		p := heldPayment(uuid.New(), uuid.New())
		p.Status = domain.PaymentStatusAwaitingPayment

		d.gateway.EXPECT().VerifySignature(payload, testSig).Return(true)
		d.expectFreshEvent(ctx)
		d.paymentRepo.EXPECT().GetByGatewayIntentID(ctx, "pi_123").Return(p, nil)
		d.ledger.EXPECT().CancelAwaitingPayment(ctx, p.ID, "gateway: payment failed").Return(p, nil)
		d.auditSvc.EXPECT().Record(gomock.Any(), gomock.Any())

		require.NoError(t, d.svc.Process(ctx, payload, testSig))
	})

	// The snapshot read can be stale: a success event may commit between the
	// processor's read and the cancel. The cancel still goes through the
	// ledger's pinned CAS, which misses and surfaces as a stale no-op — the
	// held funds are never touched.
	t.Run("concurrent success wins over the failure event", func(t *testing.T) {
		p := heldPayment(uuid.New(), uuid.New())
		p.Status = domain.PaymentStatusAwaitingPayment // stale snapshot

		d.gateway.EXPECT().VerifySignature(payload, testSig).Return(true)
		d.expectFreshEvent(ctx)
		d.paymentRepo.EXPECT().GetByGatewayIntentID(ctx, "pi_123").Return(p, nil)
		d.ledger.EXPECT().CancelAwaitingPayment(ctx, p.ID, "gateway: payment failed").
			Return(nil, apperror.ErrStateConflict("ESCROW_HELD", "AWAITING_PAYMENT"))
		// stale no-op: the event stays recorded and no dedup release happens

		require.NoError(t, d.svc.Process(ctx, payload, testSig))
	})
}

// A transient internal failure while applying must release both dedup layers
// so the gateway's redelivery retries the effect instead of acking a lost
// event.
func TestWebhookProcessor_ApplyFailureReleasesDedup(t *testing.T) {
	d := setupWebhookProcessor(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	p := heldPayment(uuid.New(), uuid.New())
	p.Status = domain.PaymentStatusAwaitingPayment
	payload := succeededPayload("evt_7", "pi_123")

	d.gateway.EXPECT().VerifySignature(payload, testSig).Return(true)
	d.expectFreshEvent(ctx)
	d.paymentRepo.EXPECT().GetByGatewayIntentID(ctx, "pi_123").Return(p, nil)
	d.ledger.EXPECT().ConfirmEscrowHeld(ctx, p.ID, "pi_123").
		Return(nil, apperror.InternalError(assert.AnError))
	d.eventRepo.EXPECT().Delete(ctx, "evt_7").Return(nil)
	d.eventCache.EXPECT().Invalidate(ctx, "evt_7").Return(nil)

	err := d.svc.Process(ctx, payload, testSig)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindInternal))
}

func TestWebhookProcessor_DisputeCreated(t *testing.T) {
	d := setupWebhookProcessor(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	p := heldPayment(uuid.New(), uuid.New())
	payload := []byte(`{"id":"evt_3","type":"charge.dispute.created","data":{"object":{"payment_intent":"pi_123","reason":"product_not_received"}}}`)

	d.gateway.EXPECT().VerifySignature(payload, testSig).Return(true)
	d.expectFreshEvent(ctx)
	d.paymentRepo.EXPECT().GetByGatewayIntentID(ctx, "pi_123").Return(p, nil)
	d.ledger.EXPECT().MarkDisputed(ctx, p.ID, "product_not_received").Return(p, nil)
	d.auditSvc.EXPECT().Record(gomock.Any(), gomock.Any())

	require.NoError(t, d.svc.Process(ctx, payload, testSig))
}

func TestWebhookProcessor_ChargeRefunded_DeltaSemantics(t *testing.T) {
	ctx := context.Background()

	t.Run("partial refund records reported delta", func(t *testing.T) {
		d := setupWebhookProcessor(t)
		defer d.ctrl.Finish()

		p := heldPayment(uuid.New(), uuid.New()) // amount 500
		payload := []byte(`{"id":"evt_4","type":"charge.refunded","data":{"object":{"payment_intent":"pi_123","amount":500,"amount_refunded":200,"reason":"requested_by_customer"}}}`)

		d.gateway.EXPECT().VerifySignature(payload, testSig).Return(true)
		d.expectFreshEvent(ctx)
		d.paymentRepo.EXPECT().GetByGatewayIntentID(ctx, "pi_123").Return(p, nil)
		d.refundRepo.EXPECT().SumByPaymentID(ctx, p.ID).Return(int64(0), nil)
		d.ledger.EXPECT().
			RecordRefund(ctx, p.ID, int64(200), "requested_by_customer", nil, uuid.Nil).
			Return(&domain.Refund{ID: uuid.New(), Amount: 200}, nil)
		d.auditSvc.EXPECT().Record(gomock.Any(), gomock.Any())

		require.NoError(t, d.svc.Process(ctx, payload, testSig))
	})

	t.Run("full refund clears the remaining balance", func(t *testing.T) {
		d := setupWebhookProcessor(t)
		defer d.ctrl.Finish()

		p := heldPayment(uuid.New(), uuid.New())
		payload := []byte(`{"id":"evt_5","type":"charge.refunded","data":{"object":{"payment_intent":"pi_123","amount":500,"amount_refunded":500}}}`)

		d.gateway.EXPECT().VerifySignature(payload, testSig).Return(true)
		d.expectFreshEvent(ctx)
		d.paymentRepo.EXPECT().GetByGatewayIntentID(ctx, "pi_123").Return(p, nil)
		d.refundRepo.EXPECT().SumByPaymentID(ctx, p.ID).Return(int64(200), nil)
		d.ledger.EXPECT().
			RecordRefund(ctx, p.ID, int64(300), "gateway refund", nil, uuid.Nil).
			Return(&domain.Refund{ID: uuid.New(), Amount: 300}, nil)
		d.auditSvc.EXPECT().Record(gomock.Any(), gomock.Any())

		require.NoError(t, d.svc.Process(ctx, payload, testSig))
	})

	t.Run("already reflected refund is a no-op", func(t *testing.T) {
		d := setupWebhookProcessor(t)
		defer d.ctrl.Finish()

		p := heldPayment(uuid.New(), uuid.New())
		payload := []byte(`{"id":"evt_6","type":"charge.refunded","data":{"object":{"payment_intent":"pi_123","amount":500,"amount_refunded":200}}}`)

		d.gateway.EXPECT().VerifySignature(payload, testSig).Return(true)
		d.expectFreshEvent(ctx)
		d.paymentRepo.EXPECT().GetByGatewayIntentID(ctx, "pi_123").Return(p, nil)
		d.refundRepo.EXPECT().SumByPaymentID(ctx, p.ID).Return(int64(200), nil)
		d.auditSvc.EXPECT().Record(gomock.Any(), gomock.Any())
		// coordinator already recorded this refund: no ledger call

		require.NoError(t, d.svc.Process(ctx, payload, testSig))
	})
}
