package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracker persists lifecycle entries keyed by document id.
type Tracker interface {
	Get(id int64) (Entry, bool, error)
	Put(id int64, e Entry) error
	Delete(id int64) error
}

// MemoryTracker keeps entries for the lifetime of the process.
type MemoryTracker struct {
	mu      sync.RWMutex
	entries map[int64]Entry
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{entries: make(map[int64]Entry)}
}

func (t *MemoryTracker) Get(id int64) (Entry, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	return e, ok, nil
}

func (t *MemoryTracker) Put(id int64, e Entry) error {
	t.mu.Lock()
	t.entries[id] = e
	t.mu.Unlock()
	return nil
}

func (t *MemoryTracker) Delete(id int64) error {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
	return nil
}

// RedisTracker stores one JSON entry per document so state survives
// between CLI invocations.
type RedisTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisTracker builds a Redis-backed tracker. Keys live under namespace;
// a zero ttl keeps entries forever.
func NewRedisTracker(addr, password, namespace string, ttl time.Duration) (*RedisTracker, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("lifecycle redis addr is required")
	}
	namespace = strings.Trim(strings.TrimSpace(namespace), ":")
	if namespace == "" {
		namespace = "docsign:lifecycle"
	}
	return &RedisTracker{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: namespace + ":doc:",
		ttl:    ttl,
	}, nil
}

func (t *RedisTracker) key(id int64) string {
	return t.prefix + strconv.FormatInt(id, 10)
}

func (t *RedisTracker) Get(id int64) (Entry, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	raw, err := t.client.Get(ctx, t.key(id)).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (t *RedisTracker) Put(id int64, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return t.client.Set(ctx, t.key(id), raw, t.ttl).Err()
}

func (t *RedisTracker) Delete(id int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := t.client.Del(ctx, t.key(id)).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

func (t *RedisTracker) Close() error {
	return t.client.Close()
}
