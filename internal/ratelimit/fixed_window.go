// Package ratelimit throttles login attempts per key in fixed time windows.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more attempt for key fits the current window.
type Limiter interface {
	Allow(key string) bool
}

var errBadQuota = errors.New("rate limiter requires positive limit and window")

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "unknown"
	}
	return key
}

// MemoryLimiter counts attempts in process.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	counts map[string]memoryCount
}

type memoryCount struct {
	slot  int64
	count int
}

// NewMemoryLimiter allows limit attempts per key per window.
func NewMemoryLimiter(limit int, window time.Duration) (*MemoryLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errBadQuota
	}
	return &MemoryLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		counts: make(map[string]memoryCount),
	}, nil
}

func (l *MemoryLimiter) Allow(key string) bool {
	key = normalizeKey(key)
	slot := l.now().UTC().UnixMilli() / l.window.Milliseconds()
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.counts[key]
	if c.slot != slot {
		c = memoryCount{slot: slot}
	}
	c.count++
	l.counts[key] = c
	return c.count <= l.limit
}

// RedisLimiter shares counters between processes through Redis.
// Redis failures reject the attempt.
type RedisLimiter struct {
	limit  int
	window time.Duration
	client *redis.Client
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter. An empty prefix defaults to
// "docsign:ratelimit".
func NewRedisLimiter(addr, password, prefix string, limit int, window time.Duration) (*RedisLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errBadQuota
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "docsign:ratelimit"
	}
	return &RedisLimiter{
		limit:  limit,
		window: window,
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
	}, nil
}

func (l *RedisLimiter) Allow(key string) bool {
	windowMs := l.window.Milliseconds()
	if windowMs <= 0 {
		return true
	}
	slot := time.Now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, normalizeKey(key), slot)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64()
	if err != nil {
		return false
	}
	return n <= int64(l.limit)
}

// Close releases the Redis connection pool.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
