package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend persists the bearer token between process runs.
type Backend interface {
	Load() (token string, ok bool, err error)
	// Save stores token; ttl == 0 means no expiry hint.
	Save(token string, ttl time.Duration) error
	Delete() error
}

// MemoryBackend keeps the token in-process only.
type MemoryBackend struct {
	mu    sync.Mutex
	token string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Load() (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token, b.token != "", nil
}

func (b *MemoryBackend) Save(token string, _ time.Duration) error {
	b.mu.Lock()
	b.token = token
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Delete() error {
	b.mu.Lock()
	b.token = ""
	b.mu.Unlock()
	return nil
}

// FileBackend stores the token in a user-private file.
type FileBackend struct {
	path string
}

type fileRecord struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"savedAt"`
}

// NewFileBackend uses path, or DefaultSessionPath when path is empty.
func NewFileBackend(path string) (*FileBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		p, err := DefaultSessionPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &FileBackend{path: path}, nil
}

// DefaultSessionPath is <user config dir>/docsign/session.json.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "docsign", "session.json"), nil
}

func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) Load() (string, bool, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read session file: %w", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", false, fmt.Errorf("parse session file: %w", err)
	}
	token := strings.TrimSpace(rec.Token)
	return token, token != "", nil
}

func (b *FileBackend) Save(token string, _ time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.Marshal(fileRecord{Token: token, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func (b *FileBackend) Delete() error {
	if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// RedisBackend keeps the token under a single Redis key, expiring it together
// with the token when the token carries exp.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend builds a Redis-backed token backend.
func NewRedisBackend(addr, password, key string) (*RedisBackend, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("session redis addr is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "docsign:session"
	}
	return &RedisBackend{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		key: key,
	}, nil
}

func (b *RedisBackend) Load() (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	val, err := b.client.Get(ctx, b.key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, val != "", nil
}

func (b *RedisBackend) Save(token string, ttl time.Duration) error {
	if ttl < 0 {
		return b.Delete()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return b.client.Set(ctx, b.key, token, ttl).Err()
}

func (b *RedisBackend) Delete() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := b.client.Del(ctx, b.key).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// Close releases the Redis connection pool.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
