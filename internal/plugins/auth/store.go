package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes for per-browser state.
const (
	sessionKeyPrefix = "authportal:session:"
	submitKeyPrefix  = "authportal:submit:"
)

// SessionStore persists one Session per browser session id. Only the
// Provider writes through it.
type SessionStore interface {
	// Load returns the stored session, or an unauthenticated session when
	// none exists.
	Load(ctx context.Context, id string) (*Session, error)

	// Save persists s. Saving an unauthenticated session removes the entry.
	Save(ctx context.Context, id string, s *Session) error

	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// AcquireSubmit takes the in-flight lock for a login/signup submission.
	// It returns false when another submission for id holds it.
	AcquireSubmit(ctx context.Context, id string, ttl time.Duration) (bool, error)

	// ReleaseSubmit drops the in-flight lock.
	ReleaseSubmit(ctx context.Context, id string) error
}

// redisStore implements SessionStore on Redis. Sessions are JSON values
// with a TTL, refreshed on every save.
type redisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a Redis-backed SessionStore whose entries live for ttl.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) SessionStore {
	return &redisStore{rdb: rdb, ttl: ttl}
}

// Load reads the session for id.
func (s *redisStore) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return UnauthenticatedSession(), nil
	}

	data, err := s.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return UnauthenticatedSession(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session from Redis: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	// A corrupted entry is treated as signed out rather than half-trusted.
	if !session.Valid() {
		return UnauthenticatedSession(), nil
	}
	return &session, nil
}

// Save writes s under id with the store TTL.
func (s *redisStore) Save(ctx context.Context, id string, session *Session) error {
	if id == "" {
		return errors.New("saving session: empty session id")
	}
	if !session.Valid() {
		return errInvalidSession
	}
	if !session.IsAuthenticated {
		return s.Delete(ctx, id)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKeyPrefix+id, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing session in Redis: %w", err)
	}
	return nil
}

// Delete removes the session for id.
func (s *redisStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("deleting session from Redis: %w", err)
	}
	return nil
}

// AcquireSubmit sets the submit lock if it is free.
func (s *redisStore) AcquireSubmit(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, submitKeyPrefix+id, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring submit lock: %w", err)
	}
	return ok, nil
}

// ReleaseSubmit removes the submit lock.
func (s *redisStore) ReleaseSubmit(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, submitKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("releasing submit lock: %w", err)
	}
	return nil
}
