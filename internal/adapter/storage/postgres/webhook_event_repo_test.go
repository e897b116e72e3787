package postgres

import (
	"context"
	"testing"
	"time"

	"marketplace-escrow/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() *domain.WebhookEvent {
	return &domain.WebhookEvent{
		EventID:         "evt_1",
		EventType:       "payment_intent.succeeded",
		GatewayIntentID: "pi_1",
		Payload:         []byte(`{"id":"evt_1"}`),
		ReceivedAt:      time.Now().UTC(),
	}
}

func TestWebhookEventRepo_InsertIfAbsent(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh event is inserted", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewWebhookEventRepo(mock)
		ev := sampleEvent()

		mock.ExpectExec("INSERT INTO webhook_events").
			WithArgs(ev.EventID, ev.EventType, ev.GatewayIntentID, ev.Payload, ev.ReceivedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		inserted, err := repo.InsertIfAbsent(ctx, ev)
		require.NoError(t, err)
		assert.True(t, inserted)
	})

	t.Run("duplicate event id is reported, not an error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewWebhookEventRepo(mock)
		ev := sampleEvent()

		mock.ExpectExec("INSERT INTO webhook_events").
			WithArgs(ev.EventID, ev.EventType, ev.GatewayIntentID, ev.Payload, ev.ReceivedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		inserted, err := repo.InsertIfAbsent(ctx, ev)
		require.NoError(t, err)
		assert.False(t, inserted)
	})
}

func TestWebhookEventRepo_Delete(t *testing.T) {
	ctx := context.Background()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookEventRepo(mock)

	mock.ExpectExec("DELETE FROM webhook_events").
		WithArgs("evt_1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, repo.Delete(ctx, "evt_1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookEventRepo_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewWebhookEventRepo(mock)
		ev := sampleEvent()

		mock.ExpectQuery("SELECT (.+) FROM webhook_events WHERE event_id").
			WithArgs(ev.EventID).
			WillReturnRows(pgxmock.NewRows([]string{"event_id", "event_type", "gateway_intent_id", "payload", "received_at"}).
				AddRow(ev.EventID, ev.EventType, ev.GatewayIntentID, ev.Payload, ev.ReceivedAt))

		got, err := repo.Get(ctx, ev.EventID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, ev.EventID, got.EventID)
		assert.Equal(t, ev.Payload, got.Payload)
	})

	t.Run("missing returns nil", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewWebhookEventRepo(mock)

		mock.ExpectQuery("SELECT (.+) FROM webhook_events WHERE event_id").
			WithArgs("evt_missing").
			WillReturnError(pgx.ErrNoRows)

		got, err := repo.Get(ctx, "evt_missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
