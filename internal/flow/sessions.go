package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matthewjhunter/quill/internal/config"
)

// SessionStore keeps one Session per external user id.
type SessionStore interface {
	// Get returns the session or nil when the user has none.
	Get(ctx context.Context, externalID int64) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, externalID int64) error
	// Expire drops sessions not updated within idle and reports how many
	// were removed.
	Expire(ctx context.Context, idle time.Duration) (int, error)
}

// NewSessionStore builds the backend selected in cfg.
func NewSessionStore(ctx context.Context, cfg config.SessionConfig) (SessionStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemorySessionStore(), nil
	case "redis":
		return NewRedisSessionStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			time.Duration(cfg.IdleMinutes)*time.Minute)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// MemorySessionStore is a process-local SessionStore.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[int64]*Session), now: time.Now}
}

func (m *MemorySessionStore) Get(_ context.Context, externalID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[externalID].Clone(), nil
}

func (m *MemorySessionStore) Put(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s.Clone()
	c.UpdatedAt = m.now()
	m.sessions[s.ExternalID] = c
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, externalID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, externalID)
	return nil
}

func (m *MemorySessionStore) Expire(_ context.Context, idle time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-idle)
	removed := 0
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// RedisSessionStore keeps sessions as JSON values with a TTL, so they survive
// bot restarts and expire on their own.
type RedisSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

const sessionKeyPrefix = "quill:session:"

func NewRedisSessionStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisSessionStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisSessionStore{rdb: rdb, ttl: ttl}, nil
}

func sessionKey(externalID int64) string {
	return sessionKeyPrefix + strconv.FormatInt(externalID, 10)
}

func (r *RedisSessionStore) Get(ctx context.Context, externalID int64) (*Session, error) {
	data, err := r.rdb.Get(ctx, sessionKey(externalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisSessionStore) Put(ctx context.Context, s *Session) error {
	c := s.Clone()
	c.UpdatedAt = time.Now()
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.rdb.Set(ctx, sessionKey(s.ExternalID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, externalID int64) error {
	return r.rdb.Del(ctx, sessionKey(externalID)).Err()
}

// Expire is a no-op: keys carry their own TTL.
func (r *RedisSessionStore) Expire(context.Context, time.Duration) (int, error) {
	return 0, nil
}

func (r *RedisSessionStore) Close() error {
	return r.rdb.Close()
}
