package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// EventCache is the fast-path webhook deduplication layer, using Redis
// SET NX. The durable check stays in PostgreSQL; this cache only short-cuts
// redeliveries that arrive while the key is warm.
type EventCache struct {
	client *goredis.Client
	prefix string
}

// NewEventCache creates a new Redis-backed event cache.
func NewEventCache(client *goredis.Client) *EventCache {
	return &EventCache{
		client: client,
		prefix: "gwevent:",
	}
}

// CheckAndSet atomically checks if an event id was seen, marking it if not.
// Returns true if the id is new.
func (c *EventCache) CheckAndSet(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	key := c.prefix + eventID
	result, err := c.client.SetArgs(ctx, key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			// Key already exists — event already seen
			return false, nil
		}
		return false, fmt.Errorf("redis event check: %w", err)
	}
	return result == "OK", nil
}

// Invalidate drops a marked event id so a redelivery is seen as fresh.
func (c *EventCache) Invalidate(ctx context.Context, eventID string) error {
	if err := c.client.Del(ctx, c.prefix+eventID).Err(); err != nil {
		return fmt.Errorf("redis event invalidate: %w", err)
	}
	return nil
}
