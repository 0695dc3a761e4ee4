package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/booking-reminders/pkg/logging"
)

// RateLimiter is a fixed-window counter per caller kept in Redis, so every
// API replica shares the same budget.
type RateLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
	logger *logging.Logger
}

// NewRateLimiter allows limit requests per caller per window.
func NewRateLimiter(client redis.UniversalClient, limit int, window time.Duration, logger *logging.Logger) *RateLimiter {
	if logger == nil {
		logger = logging.Default()
	}
	if window < time.Second {
		window = time.Minute
	}
	return &RateLimiter{client: client, limit: limit, window: window, prefix: "ratelimit", now: time.Now, logger: logger}
}

// Allow counts one request for key and reports whether it is within budget.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := rl.now().Unix() / int64(rl.window/time.Second)
	redisKey := fmt.Sprintf("%s:%s:%d", rl.prefix, key, bucket)

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("ratelimit: incr: %w", err)
	}
	return incr.Val() <= int64(rl.limit), nil
}

// RateLimit rejects callers over budget with 429. Authenticated callers are
// keyed by account id, anonymous ones by IP. Redis errors fail open.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl == nil || rl.client == nil || rl.limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if host, _, err := net.SplitHostPort(key); err == nil {
				key = host
			}
			if claims, ok := ClaimsFromContext(r.Context()); ok {
				key = "acct:" + claims.Subject
			}
			ok, err := rl.Allow(r.Context(), key)
			if err != nil {
				rl.logger.Warn("rate limit check failed", "error", err)
			} else if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.window/time.Second)))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
