package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a per key sliding window. Allow returns zero when the call is admitted,
// otherwise how long the caller must wait.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (time.Duration, error)
}

// slidingWindowScript trims the window, then admits and records the call only when the
// window still has room. Returns the wait in milliseconds, or 0 when admitted.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local wait = window
  if oldest[2] then
    wait = tonumber(oldest[2]) + window - now
  end
  if wait < 1 then
    wait = 1
  end
  return wait
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 0
`)

type redisRateLimiter struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter returns a Redis backed limiter shared by every node, or an in-process
// limiter when client is nil.
func NewRateLimiter(client *redis.Client, prefix string, max int, window time.Duration) RateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if client == nil {
		return newMemoryRateLimiter(max, window, time.Now)
	}
	return &redisRateLimiter{client: client, prefix: prefix, max: max, window: window, now: time.Now}
}

func (l *redisRateLimiter) Allow(ctx context.Context, key string) (time.Duration, error) {
	now := l.now().UnixMilli()
	member := strconv.FormatInt(now, 10) + ":" + uuid.NewString()

	wait, err := slidingWindowScript.Run(ctx, l.client,
		[]string{fmt.Sprintf("%s:ratelimit:%s", l.prefix, key)},
		now, l.window.Milliseconds(), l.max, member,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("rate limit check: %w", err)
	}

	return time.Duration(wait) * time.Millisecond, nil
}

type memoryRateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	max    int
	window time.Duration
	now    func() time.Time
}

func newMemoryRateLimiter(max int, window time.Duration, now func() time.Time) *memoryRateLimiter {
	return &memoryRateLimiter{hits: make(map[string][]time.Time), max: max, window: window, now: now}
}

func (l *memoryRateLimiter) Allow(_ context.Context, key string) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.hits[key][:0]
	for _, hit := range l.hits[key] {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}

	if len(kept) >= l.max {
		l.hits[key] = kept
		return kept[0].Add(l.window).Sub(now), nil
	}

	l.hits[key] = append(kept, now)
	return 0, nil
}
