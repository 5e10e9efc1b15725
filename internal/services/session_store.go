package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/libraryhub/backend/internal/models"
)

// SessionStore keeps the identity bound to a session id. A session holds
// exactly one identity; Put replaces whatever was there.
type SessionStore interface {
	Put(ctx context.Context, sid string, identity models.Identity, ttl time.Duration) error
	Get(ctx context.Context, sid string) (models.Identity, error)
	Delete(ctx context.Context, sid string) error
}

func sessionKey(sid string) string {
	return fmt.Sprintf("session:%s", sid)
}

type RedisSessionStore struct {
	redis *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{redis: client}
}

func (s *RedisSessionStore) Put(ctx context.Context, sid string, identity models.Identity, ttl time.Duration) error {
	body, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, sessionKey(sid), body, ttl).Err()
}

func (s *RedisSessionStore) Get(ctx context.Context, sid string) (models.Identity, error) {
	body, err := s.redis.Get(ctx, sessionKey(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Anonymous, ErrUnauthenticated
	}
	if err != nil {
		return models.Anonymous, fmt.Errorf("load session: %w", err)
	}

	var identity models.Identity
	if err := json.Unmarshal(body, &identity); err != nil {
		return models.Anonymous, fmt.Errorf("decode session: %w", err)
	}
	return identity, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, sid string) error {
	return s.redis.Del(ctx, sessionKey(sid)).Err()
}

type memorySession struct {
	identity  models.Identity
	expiresAt time.Time
}

// MemorySessionStore is used when redis is not reachable. Sessions do not
// survive a restart.
type MemorySessionStore struct {
	sessions map[string]memorySession
	mu       sync.RWMutex
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Put(_ context.Context, sid string, identity models.Identity, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sid] = memorySession{identity: identity, expiresAt: s.now().Add(ttl)}
	s.sweepLocked()
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, sid string) (models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sid]
	if !ok || s.now().After(session.expiresAt) {
		return models.Anonymous, ErrUnauthenticated
	}
	return session.identity, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, sid string) error {
	s.mu.Lock()
	delete(s.sessions, sid)
	s.mu.Unlock()
	return nil
}

// caller holds mu
func (s *MemorySessionStore) sweepLocked() {
	now := s.now()
	for sid, session := range s.sessions {
		if now.After(session.expiresAt) {
			delete(s.sessions, sid)
		}
	}
}
