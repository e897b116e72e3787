package service

import (
	"context"
	"testing"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/internal/core/ports/mocks"
	"marketplace-escrow/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type refundTestDeps struct {
	svc         *RefundCoordinatorImpl
	ledger      *mocks.MockLedgerService
	paymentRepo *mocks.MockPaymentRepository
	refundRepo  *mocks.MockRefundRepository
	gateway     *mocks.MockGatewayClient
	ctrl        *gomock.Controller
}

func setupRefundCoordinator(t *testing.T) *refundTestDeps {
	ctrl := gomock.NewController(t)
	d := &refundTestDeps{
		ledger:      mocks.NewMockLedgerService(ctrl),
		paymentRepo: mocks.NewMockPaymentRepository(ctrl),
		refundRepo:  mocks.NewMockRefundRepository(ctrl),
		gateway:     mocks.NewMockGatewayClient(ctrl),
		ctrl:        ctrl,
	}
	d.svc = NewRefundCoordinator(d.ledger, d.paymentRepo, d.refundRepo, d.gateway, zerolog.Nop())
	return d
}

func TestRefundCoordinator_Refund_FullByDefault(t *testing.T) {
	d := setupRefundCoordinator(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	p := heldPayment(uuid.New(), uuid.New()) // amount 500
	actor := domain.Actor{UserID: p.PayerID, Role: domain.RoleSeeker}

	d.paymentRepo.EXPECT().GetByID(ctx, p.ID).Return(p, nil)
	d.refundRepo.EXPECT().SumByPaymentID(ctx, p.ID).Return(int64(100), nil)
	// omitted amount: refund the full remaining 400
	d.gateway.EXPECT().IssueRefund(ctx, "pi_123", int64(400), "USD", "not delivered").Return("re_1", nil)
	d.ledger.EXPECT().
		RecordRefund(ctx, p.ID, int64(400), "not delivered", gomock.Any(), actor.UserID).
		Return(&domain.Refund{ID: uuid.New(), PaymentID: p.ID, Amount: 400}, nil)

	rf, err := d.svc.Refund(ctx, actor, ports.RefundParams{PaymentID: p.ID, Reason: "not delivered"})
	require.NoError(t, err)
	assert.Equal(t, int64(400), rf.Amount)
}

func TestRefundCoordinator_Refund_PartialAmount(t *testing.T) {
	d := setupRefundCoordinator(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	p := heldPayment(uuid.New(), uuid.New())
	actor := domain.Actor{UserID: p.PayeeID, Role: domain.RoleProvider}
	amount := int64(150)

	d.paymentRepo.EXPECT().GetByID(ctx, p.ID).Return(p, nil)
	d.refundRepo.EXPECT().SumByPaymentID(ctx, p.ID).Return(int64(0), nil)
	d.gateway.EXPECT().IssueRefund(ctx, "pi_123", int64(150), "USD", "partial settlement").Return("re_2", nil)
	d.ledger.EXPECT().
		RecordRefund(ctx, p.ID, int64(150), "partial settlement", gomock.Any(), actor.UserID).
		Return(&domain.Refund{ID: uuid.New(), PaymentID: p.ID, Amount: 150}, nil)

	rf, err := d.svc.Refund(ctx, actor, ports.RefundParams{PaymentID: p.ID, Amount: &amount, Reason: "partial settlement"})
	require.NoError(t, err)
	assert.Equal(t, int64(150), rf.Amount)
}

func TestRefundCoordinator_Refund_NotParticipant(t *testing.T) {
	d := setupRefundCoordinator(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	p := heldPayment(uuid.New(), uuid.New())

	d.paymentRepo.EXPECT().GetByID(ctx, p.ID).Return(p, nil)

	_, err := d.svc.Refund(ctx, domain.Actor{UserID: uuid.New(), Role: domain.RoleSeeker}, ports.RefundParams{PaymentID: p.ID, Reason: "x"})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindAuthorization))
}

func TestRefundCoordinator_Refund_DisputedAdminOnly(t *testing.T) {
	d := setupRefundCoordinator(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	p := heldPayment(uuid.New(), uuid.New())
	p.Status = domain.PaymentStatusDisputed

	t.Run("participant is rejected", func(t *testing.T) {
		d.paymentRepo.EXPECT().GetByID(ctx, p.ID).Return(p, nil)

		_, err := d.svc.Refund(ctx, domain.Actor{UserID: p.PayerID, Role: domain.RoleSeeker}, ports.RefundParams{PaymentID: p.ID, Reason: "x"})
		require.Error(t, err)
		assert.True(t, apperror.IsKind(err, apperror.KindAuthorization))
	})

	t.Run("admin resolves the dispute", func(t *testing.T) {
		admin := domain.Actor{UserID: uuid.New(), Role: domain.RoleAdmin}

		d.paymentRepo.EXPECT().GetByID(ctx, p.ID).Return(p, nil)
		d.refundRepo.EXPECT().SumByPaymentID(ctx, p.ID).Return(int64(0), nil)
		d.gateway.EXPECT().IssueRefund(ctx, "pi_123", int64(500), "USD", "dispute resolved").Return("re_3", nil)
		d.ledger.EXPECT().
			RecordRefund(ctx, p.ID, int64(500), "dispute resolved", gomock.Any(), admin.UserID).
			Return(&domain.Refund{ID: uuid.New(), Amount: 500}, nil)

		_, err := d.svc.Refund(ctx, admin, ports.RefundParams{PaymentID: p.ID, Reason: "dispute resolved"})
		require.NoError(t, err)
	})
}

func TestRefundCoordinator_Refund_WrongState(t *testing.T) {
	d := setupRefundCoordinator(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	p := heldPayment(uuid.New(), uuid.New())
	p.Status = domain.PaymentStatusReleased

	d.paymentRepo.EXPECT().GetByID(ctx, p.ID).Return(p, nil)

	_, err := d.svc.Refund(ctx, domain.Actor{UserID: p.PayerID, Role: domain.RoleSeeker}, ports.RefundParams{PaymentID: p.ID, Reason: "x"})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindStateConflict))
}

func TestRefundCoordinator_Refund_ExceedsRemaining(t *testing.T) {
	d := setupRefundCoordinator(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	p := heldPayment(uuid.New(), uuid.New()) // amount 500
	amount := int64(400)

	d.paymentRepo.EXPECT().GetByID(ctx, p.ID).Return(p, nil)
	d.refundRepo.EXPECT().SumByPaymentID(ctx, p.ID).Return(int64(200), nil)
	// 400 > remaining 300: rejected before the gateway is touched

	_, err := d.svc.Refund(ctx, domain.Actor{UserID: p.PayerID, Role: domain.RoleSeeker}, ports.RefundParams{PaymentID: p.ID, Amount: &amount, Reason: "x"})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
}

func TestRefundCoordinator_Refund_GatewayFailureLeavesLedgerUntouched(t *testing.T) {
	d := setupRefundCoordinator(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	p := heldPayment(uuid.New(), uuid.New())

	d.paymentRepo.EXPECT().GetByID(ctx, p.ID).Return(p, nil)
	d.refundRepo.EXPECT().SumByPaymentID(ctx, p.ID).Return(int64(0), nil)
	d.gateway.EXPECT().IssueRefund(ctx, "pi_123", int64(500), "USD", "x").
		Return("", apperror.ErrGatewayUnavailable(assert.AnError))
	// no RecordRefund: ledger stays as it was

	_, err := d.svc.Refund(ctx, domain.Actor{UserID: p.PayerID, Role: domain.RoleSeeker}, ports.RefundParams{PaymentID: p.ID, Reason: "x"})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindGateway))
}

func TestRefundCoordinator_CancelService_BeforeFunding(t *testing.T) {
	d := setupRefundCoordinator(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	p := heldPayment(uuid.New(), uuid.New())
	p.Status = domain.PaymentStatusAwaitingPayment
	actor := domain.Actor{UserID: p.PayerID, Role: domain.RoleSeeker}

	d.paymentRepo.EXPECT().GetByOfferID(ctx, p.OfferID).Return(p, nil)
	// unfunded: pure ledger transition, no gateway involvement
	d.ledger.EXPECT().Cancel(ctx, actor, p.ID, "offer withdrawn").Return(p, nil)

	_, err := d.svc.CancelService(ctx, actor, p.OfferID, "offer withdrawn")
	require.NoError(t, err)
}

func TestRefundCoordinator_CancelService_FundedRefundsRemainingFirst(t *testing.T) {
	d := setupRefundCoordinator(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	p := heldPayment(uuid.New(), uuid.New())
	actor := domain.Actor{UserID: p.PayerID, Role: domain.RoleSeeker}

	d.paymentRepo.EXPECT().GetByOfferID(ctx, p.OfferID).Return(p, nil)
	d.refundRepo.EXPECT().SumByPaymentID(ctx, p.ID).Return(int64(100), nil)
	d.gateway.EXPECT().IssueRefund(ctx, "pi_123", int64(400), "USD", "mutual agreement").Return("re_4", nil)
	d.ledger.EXPECT().Cancel(ctx, actor, p.ID, "mutual agreement").Return(p, nil)

	_, err := d.svc.CancelService(ctx, actor, p.OfferID, "mutual agreement")
	require.NoError(t, err)
}

func TestRefundCoordinator_CancelService_GatewayFailureAborts(t *testing.T) {
	d := setupRefundCoordinator(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	p := heldPayment(uuid.New(), uuid.New())
	actor := domain.Actor{UserID: p.PayerID, Role: domain.RoleSeeker}

	d.paymentRepo.EXPECT().GetByOfferID(ctx, p.OfferID).Return(p, nil)
	d.refundRepo.EXPECT().SumByPaymentID(ctx, p.ID).Return(int64(0), nil)
	d.gateway.EXPECT().IssueRefund(ctx, "pi_123", int64(500), "USD", "x").
		Return("", apperror.ErrGatewayUnavailable(assert.AnError))
	// no Cancel: the ledger must not move to CANCELLED with funds still held

	_, err := d.svc.CancelService(ctx, actor, p.OfferID, "x")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindGateway))
}

func TestRefundCoordinator_CancelService_UnknownOffer(t *testing.T) {
	d := setupRefundCoordinator(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	offerID := uuid.New()
	d.paymentRepo.EXPECT().GetByOfferID(ctx, offerID).Return(nil, nil)

	_, err := d.svc.CancelService(ctx, domain.Actor{UserID: uuid.New(), Role: domain.RoleSeeker}, offerID, "x")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestRefundCoordinator_CancelService_NotParticipant(t *testing.T) {
	d := setupRefundCoordinator(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	p := heldPayment(uuid.New(), uuid.New())

	d.paymentRepo.EXPECT().GetByOfferID(ctx, p.OfferID).Return(p, nil)

	_, err := d.svc.CancelService(ctx, domain.Actor{UserID: uuid.New(), Role: domain.RoleSeeker}, p.OfferID, "x")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindAuthorization))
}
