package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/booking-reminders/pkg/logging"
)

// ErrLockBusy is returned when the lock stays held past the wait budget.
var ErrLockBusy = errors.New("admission: lock busy")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a single-instance Redis lock (SET NX PX with a random
// token, released by compare-and-delete).
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	logger *logging.Logger
}

// NewRedisLocker holds locks for at most ttl and waits up to wait for a busy
// lock before giving up.
func NewRedisLocker(client redis.UniversalClient, ttl, wait time.Duration, logger *logging.Logger) *RedisLocker {
	if client == nil {
		panic("admission: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait < 0 {
		wait = 0
	}
	return &RedisLocker{client: client, ttl: ttl, wait: wait, retry: 25 * time.Millisecond, logger: logger}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("admission: setnx %s: %w", key, err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	release := func() {
		// The caller's context may already be cancelled; the lock must still go.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("admission lock release failed", "key", key, "error", err)
		}
	}
	return release, nil
}

var _ Locker = (*RedisLocker)(nil)
