package cache

import (
	"context"
	"fmt"
	"time"

	"ms-gatepass/internal/models"

	"github.com/go-redis/redis/v8"
)

const statusKeyPrefix = "ticket_status:"

// DefaultTTL bounds how long a cached status is trusted. Stale entries only
// affect the provisional offline display, never the server decision, so a
// generous TTL is fine.
const DefaultTTL = 24 * time.Hour

// RedisStatusCache keeps the last server-reported status per ticket. The
// offline queue consults it for its provisional accept/reject display.
type RedisStatusCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisStatusCache(client *redis.Client) *RedisStatusCache {
	return &RedisStatusCache{Client: client, TTL: DefaultTTL}
}

func (c *RedisStatusCache) LastKnownStatus(ctx context.Context, ticketID string) (models.TicketStatus, bool, error) {
	val, err := c.Client.Get(ctx, statusKeyPrefix+ticketID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("status cache get %s: %w", ticketID, err)
	}
	return models.TicketStatus(val), true, nil
}

func (c *RedisStatusCache) SetStatus(ctx context.Context, ticketID string, status models.TicketStatus) error {
	ttl := c.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if err := c.Client.Set(ctx, statusKeyPrefix+ticketID, string(status), ttl).Err(); err != nil {
		return fmt.Errorf("status cache set %s: %w", ticketID, err)
	}
	return nil
}
