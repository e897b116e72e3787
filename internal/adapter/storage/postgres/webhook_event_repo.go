package postgres

import (
	"context"
	"errors"
	"fmt"

	"marketplace-escrow/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// WebhookEventRepo implements ports.WebhookEventRepository.
type WebhookEventRepo struct {
	pool Pool
}

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(pool Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

// InsertIfAbsent records the event, returning false when the gateway event
// id was already present. The primary key on event_id makes the check and
// the record a single atomic statement.
func (r *WebhookEventRepo) InsertIfAbsent(ctx context.Context, ev *domain.WebhookEvent) (bool, error) {
	query := `INSERT INTO webhook_events (event_id, event_type, gateway_intent_id, payload, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		ev.EventID, ev.EventType, ev.GatewayIntentID, ev.Payload, ev.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes an event record whose ledger effect did not commit, so the
// gateway's redelivery passes the dedup check and retries the effect.
func (r *WebhookEventRepo) Delete(ctx context.Context, eventID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM webhook_events WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("delete webhook event: %w", err)
	}
	return nil
}

// Get fetches a processed event by gateway event id.
func (r *WebhookEventRepo) Get(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	query := `SELECT event_id, event_type, gateway_intent_id, payload, received_at
		FROM webhook_events WHERE event_id = $1`

	ev := &domain.WebhookEvent{}
	err := r.pool.QueryRow(ctx, query, eventID).Scan(
		&ev.EventID, &ev.EventType, &ev.GatewayIntentID, &ev.Payload, &ev.ReceivedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return ev, nil
}
