package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// bucketScript is the RateLimit algorithm run atomically inside redis, timed
// by the server clock so every process sees the same "now".
var bucketScript = redis.NewScript(`
local calls = tonumber(ARGV[1])
local period = tonumber(ARGV[2])
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call('HMGET', KEYS[1], 'tokens', 'last')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = calls
  last = now
end

local elapsed = now - last
if elapsed > 0 then
  tokens = math.min(calls, tokens + math.floor(elapsed / period * calls))
  last = now
end

local ok = 0
if tokens > 0 then
  tokens = tokens - 1
  ok = 1
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'last', last)
redis.call('PEXPIRE', KEYS[1], period * 2)
return ok
`)

// RedisBucket is a token bucket kept in redis so several processes calling
// the same API share one budget. It implements Limiter.
type RedisBucket struct {
	rdb    redis.Scripter
	key    string
	calls  int
	period time.Duration

	mu      sync.Mutex
	lastErr error
}

// NewRedisBucket returns a bucket stored under key. The hash expires after
// two idle periods, at which point it would be full anyway.
func NewRedisBucket(rdb redis.Scripter, key string, calls int, period time.Duration) *RedisBucket {
	return &RedisBucket{
		rdb:    rdb,
		key:    strings.Trim(key, ":"),
		calls:  calls,
		period: period,
	}
}

// Err returns the last redis error seen on the blocking path, where Acquire
// has no way to report it.
func (b *RedisBucket) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Acquire reports false when redis fails; see Err.
func (b *RedisBucket) Acquire() bool {
	ok, err := b.run(context.Background())
	b.mu.Lock()
	b.lastErr = err
	b.mu.Unlock()
	return ok
}

func (b *RedisBucket) WaitForSlot() {
	for !b.Acquire() {
		time.Sleep(interval(b.calls, b.period))
	}
}

func (b *RedisBucket) AcquireAsync(ctx context.Context) (bool, error) {
	return b.run(ctx)
}

func (b *RedisBucket) WaitForSlotAsync(ctx context.Context) error {
	return waitAsync(ctx, b.AcquireAsync, interval(b.calls, b.period))
}

func (b *RedisBucket) run(ctx context.Context) (bool, error) {
	periodMs := max(b.period.Milliseconds(), 1)
	n, err := bucketScript.Run(ctx, b.rdb, []string{b.key}, b.calls, periodMs).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

var _ Limiter = (*RedisBucket)(nil)
