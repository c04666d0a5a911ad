package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bindery-orders/internal/apperror"
	"bindery-orders/internal/infra"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockPollInterval = 50 * time.Millisecond

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

var _ infra.Locker = (*Locker)(nil)

func NewLocker(client *redis.Client, ttl, wait time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl, wait: wait}
}

func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	k := lockKey(key)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := releaseScript.Run(ctx, l.client, []string{k}, token).Err(); err != nil {
					slog.Warn("redis unlock failed", "key", key, "err", err)
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, apperror.ErrBusy
		}
		select {
		case <-time.After(lockPollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}
