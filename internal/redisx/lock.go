package redisx

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// hapus hanya kalau token masih milik kita
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// perpanjang hanya kalau token masih milik kita
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Lock is a single-holder lease (SET NX PX). It keeps two notifier
// replicas from draining the outbox at the same time. While held, the lease
// is extended every TTL/3.
type Lock struct {
	RDB *redis.Client
	Key string
	TTL time.Duration
}

// TryLock returns a context that stays live while the lease is ours. It is
// cancelled when release is called or when a renewal finds the key gone or
// owned by someone else.
func (l *Lock) TryLock(ctx context.Context) (context.Context, func(), bool, error) {
	key, ttl := l.Key, l.TTL
	if key == "" {
		key = KeyOutboxLock
	}
	if ttl <= 0 {
		ttl = TTLOutboxLock
	}
	token := uuid.NewString()
	ok, err := l.RDB.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, nil, false, err
	}

	held, cancel := context.WithCancel(ctx)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		every := ttl / 3
		if every <= 0 {
			every = ttl
		}
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-held.Done():
				return
			case <-t.C:
			}
			kept, err := l.renew(key, token, ttl)
			if err != nil {
				log.Printf("[redisx] renew %s: %v", key, err)
				continue
			}
			if !kept {
				log.Printf("[redisx] lease %s lost", key)
				cancel()
				return
			}
		}
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			cancel()
			ctx, cancelRel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancelRel()
			if err := unlockScript.Run(ctx, l.RDB, []string{key}, token).Err(); err != nil {
				log.Printf("[redisx] release %s: %v", key, err)
			}
		})
	}
	return held, release, true, nil
}

func (l *Lock) renew(key, token string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := renewScript.Run(ctx, l.RDB, []string{key}, token, ttl.Milliseconds()).Int64()
	return n == 1, err
}
