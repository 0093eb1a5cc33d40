package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// MarkOnce reports true the first time id is seen for service within TTLDedup.
func MarkOnce(ctx context.Context, rdb *redis.Client, service, id string) (bool, error) {
	return rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, service, id), 1, TTLDedup).Result()
}

// Idempotency maps checkout external ids to order ids.
type Idempotency struct {
	RDB *redis.Client
	TTL time.Duration
}

func (i *Idempotency) Lookup(ctx context.Context, externalID string) (string, bool, error) {
	id, err := i.RDB.Get(ctx, fmt.Sprintf(KeyIdemCheckout, externalID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (i *Idempotency) Remember(ctx context.Context, externalID, orderID string) error {
	ttl := i.TTL
	if ttl <= 0 {
		ttl = TTLIdempotency
	}
	return i.RDB.SetNX(ctx, fmt.Sprintf(KeyIdemCheckout, externalID), orderID, ttl).Err()
}
