package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{"created to awaiting", PaymentStatusCreated, PaymentStatusAwaitingPayment, true},
		{"awaiting to held", PaymentStatusAwaitingPayment, PaymentStatusEscrowHeld, true},
		{"awaiting to cancelled", PaymentStatusAwaitingPayment, PaymentStatusCancelled, true},
		{"held to released", PaymentStatusEscrowHeld, PaymentStatusReleased, true},
		{"held to refunded", PaymentStatusEscrowHeld, PaymentStatusRefunded, true},
		{"held to disputed", PaymentStatusEscrowHeld, PaymentStatusDisputed, true},
		{"held to cancelled", PaymentStatusEscrowHeld, PaymentStatusCancelled, true},
		{"disputed to released", PaymentStatusDisputed, PaymentStatusReleased, true},
		{"disputed to refunded", PaymentStatusDisputed, PaymentStatusRefunded, true},
		{"no back edge held to awaiting", PaymentStatusEscrowHeld, PaymentStatusAwaitingPayment, false},
		{"disputed cannot cancel", PaymentStatusDisputed, PaymentStatusCancelled, false},
		{"created cannot skip to held", PaymentStatusCreated, PaymentStatusEscrowHeld, false},
		{"released is terminal", PaymentStatusReleased, PaymentStatusRefunded, false},
		{"refunded is terminal", PaymentStatusRefunded, PaymentStatusReleased, false},
		{"cancelled is terminal", PaymentStatusCancelled, PaymentStatusAwaitingPayment, false},
		{"self edge rejected", PaymentStatusEscrowHeld, PaymentStatusEscrowHeld, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestPaymentStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status PaymentStatus
		want   bool
	}{
		{PaymentStatusCreated, false},
		{PaymentStatusAwaitingPayment, false},
		{PaymentStatusEscrowHeld, false},
		{PaymentStatusDisputed, false},
		{PaymentStatusReleased, true},
		{PaymentStatusRefunded, true},
		{PaymentStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsTerminal())
		})
	}
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	all := []PaymentStatus{
		PaymentStatusCreated, PaymentStatusAwaitingPayment, PaymentStatusEscrowHeld,
		PaymentStatusDisputed, PaymentStatusReleased, PaymentStatusRefunded, PaymentStatusCancelled,
	}
	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "terminal %s must not transition to %s", from, to)
		}
	}
}

func TestPayment_IsParticipant(t *testing.T) {
	payer := uuid.New()
	payee := uuid.New()
	p := &Payment{PayerID: payer, PayeeID: payee}

	assert.True(t, p.IsParticipant(payer))
	assert.True(t, p.IsParticipant(payee))
	assert.False(t, p.IsParticipant(uuid.New()))
}

func TestTimestampColumn(t *testing.T) {
	assert.Equal(t, "escrow_held_at", TimestampColumn(PaymentStatusEscrowHeld))
	assert.Equal(t, "disputed_at", TimestampColumn(PaymentStatusDisputed))
	assert.Equal(t, "released_at", TimestampColumn(PaymentStatusReleased))
	assert.Equal(t, "refunded_at", TimestampColumn(PaymentStatusRefunded))
	assert.Equal(t, "cancelled_at", TimestampColumn(PaymentStatusCancelled))
	assert.Equal(t, "", TimestampColumn(PaymentStatusCreated))
	assert.Equal(t, "", TimestampColumn(PaymentStatusAwaitingPayment))
}

func TestParseGatewayEvent(t *testing.T) {
	t.Run("payment succeeded", func(t *testing.T) {
		payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)
		ev, err := ParseGatewayEvent(payload)
		require.NoError(t, err)
		assert.Equal(t, "evt_1", ev.EventID)
		assert.Equal(t, GatewayEventPaymentSucceeded, ev.Type)
		assert.Equal(t, "pi_123", ev.IntentID)
	})

	t.Run("charge refunded partial", func(t *testing.T) {
		payload := []byte(`{"id":"evt_2","type":"charge.refunded","data":{"object":{"id":"ch_1","payment_intent":"pi_123","amount":500,"amount_refunded":200,"reason":"requested_by_customer"}}}`)
		ev, err := ParseGatewayEvent(payload)
		require.NoError(t, err)
		assert.Equal(t, GatewayEventChargeRefunded, ev.Type)
		assert.Equal(t, "pi_123", ev.IntentID)
		assert.Equal(t, int64(200), ev.AmountRefunded)
		assert.Equal(t, int64(500), ev.AmountTotal)
		assert.False(t, ev.FullRefund())
	})

	t.Run("charge refunded full", func(t *testing.T) {
		payload := []byte(`{"id":"evt_3","type":"charge.refunded","data":{"object":{"payment_intent":"pi_123","amount":500,"amount_refunded":500}}}`)
		ev, err := ParseGatewayEvent(payload)
		require.NoError(t, err)
		assert.True(t, ev.FullRefund())
	})

	t.Run("payment failed", func(t *testing.T) {
		payload := []byte(`{"id":"evt_4","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_123"}}}`)
		ev, err := ParseGatewayEvent(payload)
		require.NoError(t, err)
		assert.Equal(t, GatewayEventPaymentFailed, ev.Type)
	})

	t.Run("dispute created", func(t *testing.T) {
		payload := []byte(`{"id":"evt_5","type":"charge.dispute.created","data":{"object":{"payment_intent":"pi_123","reason":"product_not_received"}}}`)
		ev, err := ParseGatewayEvent(payload)
		require.NoError(t, err)
		assert.Equal(t, GatewayEventDisputeCreated, ev.Type)
		assert.Equal(t, "product_not_received", ev.DisputeReason)
	})

	t.Run("unknown type is not an error", func(t *testing.T) {
		payload := []byte(`{"id":"evt_6","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
		ev, err := ParseGatewayEvent(payload)
		require.NoError(t, err)
		assert.Equal(t, GatewayEventUnknown, ev.Type)
	})

	t.Run("missing event id", func(t *testing.T) {
		_, err := ParseGatewayEvent([]byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`))
		assert.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := ParseGatewayEvent([]byte(`{not json`))
		assert.Error(t, err)
	})
}

func TestGatewayEvent_Record(t *testing.T) {
	payload := []byte(`{"id":"evt_7","type":"payment_intent.succeeded","data":{"object":{"id":"pi_9"}}}`)
	ev, err := ParseGatewayEvent(payload)
	require.NoError(t, err)

	now := time.Now().UTC()
	row := ev.Record(payload, now)
	assert.Equal(t, "evt_7", row.EventID)
	assert.Equal(t, string(GatewayEventPaymentSucceeded), row.EventType)
	assert.Equal(t, "pi_9", row.GatewayIntentID)
	assert.Equal(t, payload, row.Payload)
	assert.Equal(t, now, row.ReceivedAt)
}

func TestTransactionFromPayment_CounterpartyPerspective(t *testing.T) {
	payer := uuid.New()
	payee := uuid.New()
	p := &Payment{
		ID: uuid.New(), PayerID: payer, PayeeID: payee,
		Amount: 500, Currency: "USD", Method: PaymentMethodGateway,
		Status: PaymentStatusEscrowHeld, CreatedAt: time.Now(),
	}

	fromPayer := TransactionFromPayment(p, payer)
	assert.Equal(t, payee, fromPayer.CounterpartyID)

	fromPayee := TransactionFromPayment(p, payee)
	assert.Equal(t, payer, fromPayee.CounterpartyID)

	assert.Equal(t, TransactionTypePayment, fromPayer.Type)
	assert.Equal(t, int64(500), fromPayer.Amount)
}

func TestTransactionFromRefund(t *testing.T) {
	payer := uuid.New()
	payee := uuid.New()
	p := &Payment{ID: uuid.New(), PayerID: payer, PayeeID: payee, Currency: "USD", Method: PaymentMethodGateway}
	r := &Refund{ID: uuid.New(), PaymentID: p.ID, Amount: 200, CreatedAt: time.Now()}

	tx := TransactionFromRefund(r, p, payer)
	assert.Equal(t, TransactionTypeRefund, tx.Type)
	assert.Equal(t, int64(200), tx.Amount)
	assert.Equal(t, "USD", tx.Currency)
	assert.Equal(t, payee, tx.CounterpartyID)
	assert.Equal(t, "REFUNDED", tx.Status)
}

func TestTransactionFromSubscriptionCharge_PlatformCounterparty(t *testing.T) {
	c := &SubscriptionCharge{ID: uuid.New(), UserID: uuid.New(), Amount: 100, Currency: "USD", Status: SubscriptionChargePaid, CreatedAt: time.Now()}
	tx := TransactionFromSubscriptionCharge(c)
	assert.Equal(t, TransactionTypeSubscription, tx.Type)
	assert.Equal(t, uuid.Nil, tx.CounterpartyID)
}
