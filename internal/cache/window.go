package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithExpireScript atomically increments a window counter and sets
// its TTL on first touch, in one round trip. Keys embed the aligned
// window start, so expiry doubles as the window reset.
var incrWithExpireScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return count
`)

// Increment bumps the counter at key, arranging for it to expire after
// ttl, and returns the post-increment count. Satisfies
// ratelimit.CounterStore.
func (c *Cache) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return incrWithExpireScript.Run(ctx, c.client, []string{key}, ttl.Milliseconds()).Int64()
}
