package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/wrenchgate/clock"
)

// RedisLimiter is a Redis-backed Limiter for deployments where several
// gateway instances must share one quota per client. Each client key maps to
// a sorted set of hit timestamps (millisecond scores); a Lua script prunes,
// counts, and conditionally records in one server-side step, so the
// check-then-record sequence stays atomic across instances.
//
// State lives only as long as its TTL; this backend shares counts, it does
// not promise durability.
type RedisLimiter struct {
	client       *redis.Client
	maxPerMinute int
	maxPerHour   int
	clk          clock.Clock
	seq          atomic.Uint64
}

var _ Limiter = (*RedisLimiter)(nil)

// RedisConfig for creating a RedisLimiter.
type RedisConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string // empty for no auth
	DB       int
}

// checkScript prunes the hour window, projects both counts and the oldest
// surviving timestamps, and records the hit when admitted and ARGV[5] is 1.
// Reply: {allowed, minute_count, hour_count, oldest_minute_ms, oldest_hour_ms}.
var checkScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local max_minute = tonumber(ARGV[2])
local max_hour = tonumber(ARGV[3])
local member = ARGV[4]
local record = tonumber(ARGV[5])

local minute_cutoff = now - 60000
local hour_cutoff = now - 3600000

redis.call('ZREMRANGEBYSCORE', key, '-inf', hour_cutoff)

local hour_count = redis.call('ZCARD', key)
local minute_count = redis.call('ZCOUNT', key, '(' .. minute_cutoff, '+inf')

local oldest_hour = 0
local oh = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oh[2] then oldest_hour = tonumber(oh[2]) end

local oldest_minute = 0
local om = redis.call('ZRANGEBYSCORE', key, '(' .. minute_cutoff, '+inf', 'WITHSCORES', 'LIMIT', 0, 1)
if om[2] then oldest_minute = tonumber(om[2]) end

if minute_count >= max_minute or hour_count >= max_hour then
	return {0, minute_count, hour_count, oldest_minute, oldest_hour}
end

if record == 1 then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, 3600000)
	minute_count = minute_count + 1
	hour_count = hour_count + 1
end

return {1, minute_count, hour_count, oldest_minute, oldest_hour}
`)

// NewRedisLimiter creates a Redis-backed limiter. A nil clk defaults to the
// real clock.
func NewRedisLimiter(cfg Config, rcfg RedisConfig, clk clock.Clock) (*RedisLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rcfg.Addr,
		Password: rcfg.Password,
		DB:       rcfg.DB,
	})

	return &RedisLimiter{
		client:       client,
		maxPerMinute: cfg.MaxPerMinute,
		maxPerHour:   cfg.MaxPerHour,
		clk:          clk,
	}, nil
}

// CheckAndRecord implements Limiter.
func (l *RedisLimiter) CheckAndRecord(ctx context.Context, key string) (Info, error) {
	if key == "" {
		return Info{}, ErrInvalidKey
	}

	now := l.clk.Now()
	member := fmt.Sprintf("%d-%d", now.UnixNano(), l.seq.Add(1))

	info, allowed, err := l.run(ctx, key, now, member, true)
	if err != nil {
		return Info{}, err
	}
	if !allowed {
		return info, &LimitExceededError{Info: info}
	}
	return info, nil
}

// Status implements Limiter.
func (l *RedisLimiter) Status(ctx context.Context, key string) (Info, error) {
	if key == "" {
		return Info{}, ErrInvalidKey
	}

	info, _, err := l.run(ctx, key, l.clk.Now(), "", false)
	if err != nil {
		return Info{}, err
	}
	return info, nil
}

// PruneIdle implements Limiter. Idle eviction is delegated to Redis key TTLs
// (set one hour past the last hit), so there is nothing to sweep here.
func (l *RedisLimiter) PruneIdle(context.Context) (int, error) {
	return 0, nil
}

func (l *RedisLimiter) run(ctx context.Context, key string, now time.Time, member string, record bool) (Info, bool, error) {
	rec := 0
	if record {
		rec = 1
	}

	res, err := checkScript.Run(ctx, l.client,
		[]string{"wrenchgate:rl:" + key},
		now.UnixMilli(), l.maxPerMinute, l.maxPerHour, member, rec,
	).Slice()
	if err != nil {
		return Info{}, false, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(res) != 5 {
		return Info{}, false, fmt.Errorf("rate limit script returned %d values, want 5", len(res))
	}

	allowed := asInt64(res[0]) == 1
	minuteCount := int(asInt64(res[1]))
	hourCount := int(asInt64(res[2]))
	oldestMinuteMs := asInt64(res[3])
	oldestHourMs := asInt64(res[4])

	var reset int64
	switch {
	case minuteCount >= l.maxPerMinute:
		reset = resetFromMs(now, oldestMinuteMs, minuteWindow)
	case hourCount >= l.maxPerHour:
		reset = resetFromMs(now, oldestHourMs, hourWindow)
	}

	return Info{
		RemainingMinute: clampRemaining(l.maxPerMinute, minuteCount),
		RemainingHour:   clampRemaining(l.maxPerHour, hourCount),
		ResetInSeconds:  reset,
	}, allowed, nil
}

func resetFromMs(now time.Time, oldestMs int64, window time.Duration) int64 {
	horizon := int64(window / time.Second)
	if oldestMs == 0 {
		return horizon
	}
	elapsed := (now.UnixMilli() - oldestMs) / 1000
	if elapsed >= horizon {
		return 0
	}
	return horizon - elapsed
}

func asInt64(v interface{}) int64 {
	n, _ := v.(int64)
	return n
}

// Clear removes all rate-limit keys. Test helper.
func (l *RedisLimiter) Clear(ctx context.Context) error {
	iter := l.client.Scan(ctx, 0, "wrenchgate:rl:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := l.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Ping checks the Redis connection.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
