package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/storefront-core/internal/domain"
)

type CachedStatus struct {
	Status    domain.OrderStatus `json:"status"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// StatusCache is the read-through cache behind GET /orders/{id}/status.
type StatusCache struct {
	RDB *redis.Client
	TTL time.Duration
}

func (c *StatusCache) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return TTLStatusCache
}

// SetStatus caches status as of at, the time the order last changed. A value
// older than what is cached is dropped, so late or redelivered events cannot
// move the status backwards.
func (c *StatusCache) SetStatus(ctx context.Context, orderID string, status domain.OrderStatus, at time.Time) error {
	key := fmt.Sprintf(KeyOrderStatus, orderID)
	b, err := json.Marshal(CachedStatus{Status: status, UpdatedAt: at.UTC()})
	if err != nil {
		return err
	}
	set := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var cs CachedStatus
			if json.Unmarshal(cur, &cs) == nil && at.Before(cs.UpdatedAt) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, c.ttl())
			return nil
		})
		return err
	}
	for i := 0; i < 3; i++ {
		err = c.RDB.Watch(ctx, set, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (c *StatusCache) GetStatus(ctx context.Context, orderID string) (CachedStatus, bool, error) {
	b, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedStatus{}, false, nil
	}
	if err != nil {
		return CachedStatus{}, false, err
	}
	var cs CachedStatus
	if err := json.Unmarshal(b, &cs); err != nil {
		return CachedStatus{}, false, err
	}
	return cs, true, nil
}

func (c *StatusCache) Invalidate(ctx context.Context, orderID string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}
