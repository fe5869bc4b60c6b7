package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// SessionDuration is 7 days
	SessionDuration = 7 * 24 * time.Hour
	// SessionKeyPrefix is the Redis key prefix for sessions
	SessionKeyPrefix = "session:"
	// UserSessionKeyPrefix is the Redis key prefix for user->session mapping
	UserSessionKeyPrefix = "user_session:"
)

// SessionStore maps opaque bearer tokens to users. A user holds at most one
// session; creating a new one invalidates the previous token.
type SessionStore interface {
	Create(ctx context.Context, userID uuid.UUID) (string, error)
	Resolve(ctx context.Context, token string) (uuid.UUID, bool, error)
	Delete(ctx context.Context, token string) error
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// RedisSessions keeps sessions in Redis with a fixed 7 day TTL.
type RedisSessions struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessions(client *redis.Client) *RedisSessions {
	return &RedisSessions{client: client, ttl: SessionDuration}
}

// Create invalidates any existing session for the user so the 7-day timer
// restarts from this login.
func (s *RedisSessions) Create(ctx context.Context, userID uuid.UUID) (string, error) {
	if err := s.DeleteUser(ctx, userID); err != nil {
		return "", err
	}
	token, err := newToken()
	if err != nil {
		return "", err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, SessionKeyPrefix+token, userID.String(), s.ttl)
	pipe.Set(ctx, UserSessionKeyPrefix+userID.String(), token, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

func (s *RedisSessions) Resolve(ctx context.Context, token string) (uuid.UUID, bool, error) {
	if token == "" {
		return uuid.Nil, false, nil
	}
	raw, err := s.client.Get(ctx, SessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

func (s *RedisSessions) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	userID, err := s.client.Get(ctx, SessionKeyPrefix+token).Result()
	if err == nil && userID != "" {
		s.client.Del(ctx, UserSessionKeyPrefix+userID)
	}
	return s.client.Del(ctx, SessionKeyPrefix+token).Err()
}

// DeleteUser invalidates the user's session, e.g. after a password change.
func (s *RedisSessions) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	userKey := UserSessionKeyPrefix + userID.String()
	token, err := s.client.Get(ctx, userKey).Result()
	if err == nil && token != "" {
		s.client.Del(ctx, SessionKeyPrefix+token)
	}
	return s.client.Del(ctx, userKey).Err()
}

type memorySession struct {
	userID  uuid.UUID
	expires time.Time
}

// MemorySessions is a process-local SessionStore.
type MemorySessions struct {
	mu     sync.Mutex
	tokens map[string]memorySession
	byUser map[uuid.UUID]string
	ttl    time.Duration
	now    func() time.Time
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{
		tokens: make(map[string]memorySession),
		byUser: make(map[uuid.UUID]string),
		ttl:    SessionDuration,
		now:    time.Now,
	}
}

func (s *MemorySessions) Create(_ context.Context, userID uuid.UUID) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byUser[userID]; ok {
		delete(s.tokens, old)
	}
	s.tokens[token] = memorySession{userID: userID, expires: s.now().Add(s.ttl)}
	s.byUser[userID] = token
	return token, nil
}

func (s *MemorySessions) Resolve(_ context.Context, token string) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.tokens[token]
	if !ok {
		return uuid.Nil, false, nil
	}
	if !s.now().Before(sess.expires) {
		delete(s.tokens, token)
		delete(s.byUser, sess.userID)
		return uuid.Nil, false, nil
	}
	return sess.userID, true, nil
}

func (s *MemorySessions) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.tokens[token]; ok {
		delete(s.byUser, sess.userID)
		delete(s.tokens, token)
	}
	return nil
}

func (s *MemorySessions) DeleteUser(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := s.byUser[userID]; ok {
		delete(s.tokens, token)
		delete(s.byUser, userID)
	}
	return nil
}
