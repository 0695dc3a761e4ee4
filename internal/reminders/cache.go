// Package reminders sends the day-ahead and hours-ahead notifications for
// active bookings and keeps the per-booking markers that stop duplicates.
package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tier is a reminder horizon.
type Tier string

const (
	TierDayAhead   Tier = "dayAhead"
	TierHoursAhead Tier = "hoursAhead"
)

// Tiers lists every tier in sweep order.
var Tiers = []Tier{TierDayAhead, TierHoursAhead}

// Key is the dedup marker for one booking and tier.
func Key(tier Tier, bookingID string) string {
	return "notify:" + string(tier) + ":" + bookingID
}

// Keys returns the markers of every tier for a booking.
func Keys(bookingID string) []string {
	keys := make([]string, len(Tiers))
	for i, t := range Tiers {
		keys[i] = Key(t, bookingID)
	}
	return keys
}

// DedupCache stores "already notified" markers.
type DedupCache interface {
	Exists(ctx context.Context, key string) (bool, error)
	// Set writes a marker; ttl 0 means no expiry.
	Set(ctx context.Context, key string, ttl time.Duration) error
	// Delete removes keys; missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Claim sets key for lease only when it is absent and reports whether
	// this caller got it.
	Claim(ctx context.Context, key string, lease time.Duration) (bool, error)
	// Confirm turns a held claim into a marker. It reports false, writing
	// nothing, when the claim is gone.
	Confirm(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

const (
	markerValue = "1"
	claimValue  = "claimed"
)

// RedisCache is the go-redis DedupCache.
type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	if client == nil {
		panic("reminders: redis client required")
	}
	return &RedisCache{client: client}
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("reminders: exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, key, markerValue, ttl).Err(); err != nil {
		return fmt.Errorf("reminders: set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("reminders: delete: %w", err)
	}
	return nil
}

func (c *RedisCache) Claim(ctx context.Context, key string, lease time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, claimValue, lease).Result()
	if err != nil {
		return false, fmt.Errorf("reminders: claim %s: %w", key, err)
	}
	return ok, nil
}

// confirmScript swaps the claim for the marker only while the claim is
// still there, so an invalidation during delivery is not undone.
var confirmScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

func (c *RedisCache) Confirm(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	n, err := confirmScript.Run(ctx, c.client, []string{key}, claimValue, markerValue, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("reminders: confirm %s: %w", key, err)
	}
	return n == 1, nil
}

var _ DedupCache = (*RedisCache)(nil)
