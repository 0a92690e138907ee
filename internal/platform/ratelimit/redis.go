package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow trims entries older than the window, then admits the request when fewer than
// ARGV[4] remain. Returns the new count, or -1 when the request is rejected.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowMs = tonumber(ARGV[3])
local limit = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)
local count = redis.call('ZCARD', key)
if count >= limit then
  return -1
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, windowMs)
return count + 1
`)

// Redis is a sliding-window limiter shared across API instances.
type Redis struct {
	client redis.Scripter
	prefix string
	limit  int
	window time.Duration
	clock  func() time.Time
}

// NewRedis constructs a limiter storing windows under prefix:key.
func NewRedis(client redis.Scripter, prefix string, limit int, window time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, limit: limit, window: window, clock: time.Now}
}

// Allow implements Limiter.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if r == nil || r.client == nil || r.limit <= 0 {
		return true, nil
	}
	now := r.clock()
	nowMs := now.UnixMilli()
	member := fmt.Sprintf("%d-%d", nowMs, now.UnixNano())

	res, err := slidingWindow.Run(ctx, r.client,
		[]string{r.prefix + ":" + normaliseKey(key)},
		nowMs, nowMs-r.window.Milliseconds(), r.window.Milliseconds(), r.limit, member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis eval: %w", err)
	}
	return res >= 0, nil
}
