package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited ledger action.
type AuditAction string

const (
	AuditActionCreateEscrow AuditAction = "CREATE_ESCROW"
	AuditActionEscrowHeld   AuditAction = "ESCROW_HELD"
	AuditActionRelease      AuditAction = "RELEASE"
	AuditActionRefund       AuditAction = "REFUND"
	AuditActionCancel       AuditAction = "CANCEL"
	AuditActionDispute      AuditAction = "DISPUTE"
	AuditActionWebhookEvent AuditAction = "WEBHOOK_EVENT"
)

// AuditLog records a single committed ledger action. Rows are append-only
// and double as the dispute/cancellation history.
type AuditLog struct {
	ID        uuid.UUID   `json:"id"`
	PaymentID *uuid.UUID  `json:"payment_id,omitempty"`
	ActorID   *uuid.UUID  `json:"actor_id,omitempty"` // nil for gateway-driven actions
	Action    AuditAction `json:"action"`
	Details   string      `json:"details,omitempty"` // JSON string
	CreatedAt time.Time   `json:"created_at"`
}
