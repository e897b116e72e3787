package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// WebhookEvent is the durable record of a processed gateway notification,
// keyed by the gateway-assigned event id. Used purely for deduplication and
// never deleted during the gateway's redelivery window.
type WebhookEvent struct {
	EventID         string    `json:"event_id"`
	EventType       string    `json:"event_type"`
	GatewayIntentID string    `json:"gateway_intent_id"`
	Payload         []byte    `json:"-"`
	ReceivedAt      time.Time `json:"received_at"`
}

// GatewayEventType enumerates the gateway notifications this system reacts
// to. Anything else parses as GatewayEventUnknown and is a logged no-op.
type GatewayEventType string

const (
	GatewayEventPaymentSucceeded GatewayEventType = "payment_intent.succeeded"
	GatewayEventPaymentFailed    GatewayEventType = "payment_intent.payment_failed"
	GatewayEventChargeRefunded   GatewayEventType = "charge.refunded"
	GatewayEventDisputeCreated   GatewayEventType = "charge.dispute.created"
	GatewayEventUnknown          GatewayEventType = "unknown"
)

// GatewayEvent is the closed, tagged form of an inbound gateway payload.
type GatewayEvent struct {
	EventID  string
	Type     GatewayEventType
	IntentID string

	// Refund fields, populated for charge.refunded only.
	AmountRefunded int64 // cumulative amount refunded as reported by the gateway
	AmountTotal    int64 // original charge amount
	RefundReason   string

	// Dispute fields, populated for charge.dispute.created only.
	DisputeReason string
}

// FullRefund reports whether a charge.refunded event covers the whole charge.
func (e *GatewayEvent) FullRefund() bool {
	return e.Type == GatewayEventChargeRefunded && e.AmountRefunded >= e.AmountTotal
}

// gatewayEnvelope mirrors the gateway's wire shape.
type gatewayEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID             string `json:"id"`
			PaymentIntent  string `json:"payment_intent"`
			Amount         int64  `json:"amount"`
			AmountRefunded int64  `json:"amount_refunded"`
			Reason         string `json:"reason"`
		} `json:"object"`
	} `json:"data"`
}

// ParseGatewayEvent converts a raw webhook body into a GatewayEvent.
// Unrecognized event types are not an error; they map to GatewayEventUnknown
// so the processor can acknowledge and ignore them.
func ParseGatewayEvent(payload []byte) (*GatewayEvent, error) {
	var env gatewayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("parse gateway event: %w", err)
	}
	if env.ID == "" {
		return nil, fmt.Errorf("parse gateway event: missing event id")
	}

	ev := &GatewayEvent{EventID: env.ID}

	// payment_intent.* events carry the intent id as the object id;
	// charge.* events reference it through payment_intent.
	ev.IntentID = env.Data.Object.PaymentIntent
	if ev.IntentID == "" {
		ev.IntentID = env.Data.Object.ID
	}

	switch GatewayEventType(env.Type) {
	case GatewayEventPaymentSucceeded:
		ev.Type = GatewayEventPaymentSucceeded
	case GatewayEventPaymentFailed:
		ev.Type = GatewayEventPaymentFailed
	case GatewayEventChargeRefunded:
		ev.Type = GatewayEventChargeRefunded
		ev.AmountRefunded = env.Data.Object.AmountRefunded
		ev.AmountTotal = env.Data.Object.Amount
		ev.RefundReason = env.Data.Object.Reason
	case GatewayEventDisputeCreated:
		ev.Type = GatewayEventDisputeCreated
		ev.DisputeReason = env.Data.Object.Reason
	default:
		ev.Type = GatewayEventUnknown
	}

	return ev, nil
}

// Record builds the durable WebhookEvent row for a parsed event.
func (e *GatewayEvent) Record(payload []byte, receivedAt time.Time) *WebhookEvent {
	return &WebhookEvent{
		EventID:         e.EventID,
		EventType:       string(e.Type),
		GatewayIntentID: e.IntentID,
		Payload:         payload,
		ReceivedAt:      receivedAt,
	}
}
