package postgres

import (
	"context"
	"testing"
	"time"

	"marketplace-escrow/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefundRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRefundRepo(mock)
	refundID := "re_1"
	rf := &domain.Refund{
		ID:              uuid.New(),
		PaymentID:       uuid.New(),
		Amount:          200,
		Reason:          "partial settlement",
		GatewayRefundID: &refundID,
		InitiatedBy:     uuid.New(),
		CreatedAt:       time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO refunds").
		WithArgs(rf.ID, rf.PaymentID, rf.Amount, rf.Reason, rf.GatewayRefundID, rf.InitiatedBy, rf.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, repo.Create(context.Background(), tx, rf))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundRepo_SumByPaymentID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRefundRepo(mock)
	paymentID := uuid.New()

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(paymentID).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(int64(300)))

	sum, err := repo.SumByPaymentID(context.Background(), paymentID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), sum)
}

func TestRefundRepo_ListByPaymentID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRefundRepo(mock)
	paymentID := uuid.New()
	initiatedBy := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM refunds WHERE payment_id").
		WithArgs(paymentID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "payment_id", "amount", "reason", "gateway_refund_id", "initiated_by", "created_at"}).
			AddRow(uuid.New(), paymentID, int64(100), "first", (*string)(nil), initiatedBy, now).
			AddRow(uuid.New(), paymentID, int64(200), "second", (*string)(nil), initiatedBy, now.Add(time.Minute)))

	refunds, err := repo.ListByPaymentID(context.Background(), paymentID)
	require.NoError(t, err)
	require.Len(t, refunds, 2)
	assert.Equal(t, int64(100), refunds[0].Amount)
	assert.Equal(t, int64(200), refunds[1].Amount)
}
