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

type txTestDeps struct {
	svc    *TransactionServiceImpl
	reader *mocks.MockTransactionReader
	stats  *mocks.MockStatsReader
	ctrl   *gomock.Controller
}

func setupTransactionService(t *testing.T) *txTestDeps {
	ctrl := gomock.NewController(t)
	d := &txTestDeps{
		reader: mocks.NewMockTransactionReader(ctrl),
		stats:  mocks.NewMockStatsReader(ctrl),
		ctrl:   ctrl,
	}
	d.svc = NewTransactionService(d.reader, d.stats, zerolog.Nop())
	return d
}

func TestTransactionService_List_ScopedToActor(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	actor := domain.Actor{UserID: uuid.New(), Role: domain.RoleSeeker}

	d.reader.EXPECT().
		List(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
			assert.Equal(t, actor.UserID, params.UserID)
			assert.False(t, params.AllUsers)
			assert.Equal(t, 1, params.Page)
			assert.Equal(t, defaultPageSize, params.PageSize)
			return []domain.Transaction{{ID: uuid.New()}}, 1, nil
		})

	items, total, err := d.svc.List(ctx, actor, ports.TransactionListParams{}, nil)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int64(1), total)
}

func TestTransactionService_List_NonAdminCannotFilterByUser(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	other := uuid.New()
	_, _, err := d.svc.List(context.Background(),
		domain.Actor{UserID: uuid.New(), Role: domain.RoleProvider},
		ports.TransactionListParams{}, &other)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindAuthorization))
}

func TestTransactionService_List_AdminSeesAllUsers(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	admin := domain.Actor{UserID: uuid.New(), Role: domain.RoleAdmin}

	d.reader.EXPECT().
		List(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
			assert.True(t, params.AllUsers)
			return nil, 0, nil
		})

	_, _, err := d.svc.List(ctx, admin, ports.TransactionListParams{}, nil)
	require.NoError(t, err)
}

func TestTransactionService_List_AdminFiltersByUser(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	admin := domain.Actor{UserID: uuid.New(), Role: domain.RoleAdmin}
	target := uuid.New()

	d.reader.EXPECT().
		List(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
			assert.Equal(t, target, params.UserID)
			assert.False(t, params.AllUsers)
			return nil, 0, nil
		})

	_, _, err := d.svc.List(ctx, admin, ports.TransactionListParams{}, &target)
	require.NoError(t, err)
}

func TestTransactionService_List_PageSizeClamped(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	actor := domain.Actor{UserID: uuid.New(), Role: domain.RoleSeeker}

	d.reader.EXPECT().
		List(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
			assert.Equal(t, maxPageSize, params.PageSize)
			return nil, 0, nil
		})

	_, _, err := d.svc.List(ctx, actor, ports.TransactionListParams{Page: 2, PageSize: 5000}, nil)
	require.NoError(t, err)
}

func TestTransactionService_List_ReaderFailure(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.reader.EXPECT().List(ctx, gomock.Any()).Return(nil, int64(0), assert.AnError)

	_, _, err := d.svc.List(ctx, domain.Actor{UserID: uuid.New(), Role: domain.RoleSeeker}, ports.TransactionListParams{}, nil)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindInternal))
}

func TestTransactionService_Stats_AdminOnly(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()

	t.Run("non-admin rejected", func(t *testing.T) {
		_, err := d.svc.Stats(ctx, domain.Actor{UserID: uuid.New(), Role: domain.RoleSeeker})
		require.Error(t, err)
		assert.True(t, apperror.IsKind(err, apperror.KindAuthorization))
	})

	t.Run("admin gets counters", func(t *testing.T) {
		d.stats.EXPECT().GetLedgerStats(ctx).Return(&ports.LedgerStats{
			TotalPayments: 10, EscrowHeld: 3, Released: 4, Refunded: 2, Cancelled: 1, HeldAmount: 1500,
		}, nil)

		out, err := d.svc.Stats(ctx, domain.Actor{UserID: uuid.New(), Role: domain.RoleAdmin})
		require.NoError(t, err)
		assert.Equal(t, int64(10), out.TotalPayments)
		assert.Equal(t, int64(1500), out.HeldAmount)
	})
}
