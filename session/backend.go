package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	guard "github.com/goliatone/go-route-guard"
	"github.com/redis/go-redis/v9"
)

// Backend persists settled session states
type Backend interface {
	Load(ctx context.Context, sid string) (guard.State, bool, error)
	Save(ctx context.Context, sid string, state guard.State, ttl time.Duration) error
	Delete(ctx context.Context, sid string) error
}

type memoryEntry struct {
	state     guard.State
	expiresAt time.Time
}

// MemoryBackend keeps states in process memory
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryBackend) Load(_ context.Context, sid string) (guard.State, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[sid]
	m.mu.RUnlock()

	if !ok {
		return guard.State{}, false, nil
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, sid)
		m.mu.Unlock()
		return guard.State{}, false, nil
	}
	return e.state, true, nil
}

func (m *MemoryBackend) Save(_ context.Context, sid string, state guard.State, ttl time.Duration) error {
	e := memoryEntry{state: state.Normalize()}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[sid] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, sid string) error {
	m.mu.Lock()
	delete(m.entries, sid)
	m.mu.Unlock()
	return nil
}

// RedisBackend stores JSON encoded states under prefix+sid
type RedisBackend struct {
	rdb    redis.Cmdable
	prefix string
}

var _ Backend = (*RedisBackend)(nil)

func NewRedisBackend(rdb redis.Cmdable, prefix string) *RedisBackend {
	return &RedisBackend{rdb: rdb, prefix: prefix}
}

func (r *RedisBackend) key(sid string) string {
	return r.prefix + sid
}

func (r *RedisBackend) Load(ctx context.Context, sid string) (guard.State, bool, error) {
	raw, err := r.rdb.Get(ctx, r.key(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return guard.State{}, false, nil
	}
	if err != nil {
		return guard.State{}, false, fmt.Errorf("redis load session: %w", err)
	}

	var state guard.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return guard.State{}, false, fmt.Errorf("decode session %s: %w", sid, err)
	}
	return state.Normalize(), true, nil
}

func (r *RedisBackend) Save(ctx context.Context, sid string, state guard.State, ttl time.Duration) error {
	raw, err := json.Marshal(state.Normalize())
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sid, err)
	}
	if err := r.rdb.Set(ctx, r.key(sid), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, sid string) error {
	if err := r.rdb.Del(ctx, r.key(sid)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}
