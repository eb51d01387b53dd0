package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

var (
	ErrMissingID = errors.New("session: missing session_id or user_id")
	ErrExpired   = errors.New("session: expires_at must be in the future")
	ErrExists    = errors.New("session: id already in use")
	ErrNotFound  = errors.New("session: not found")
)

// RedisStore keeps each session as a JSON value under session:<id>. The key
// TTL tracks ExpiresAt, so Redis drops sessions on its own.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

// encode validates s and returns its value and remaining TTL. A zero TTL
// means the session is already over.
func encode(s Session, now time.Time) ([]byte, time.Duration, error) {
	if s.SessionID == "" || s.UserID == "" {
		return nil, 0, ErrMissingID
	}
	ttl := s.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return nil, 0, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, 0, fmt.Errorf("session: marshal: %w", err)
	}
	return data, ttl, nil
}

// Create stores a new session. It never overwrites: a colliding id is
// reported as ErrExists.
func (r *RedisStore) Create(ctx context.Context, s Session) error {
	data, ttl, err := encode(s, r.now())
	if err != nil {
		return err
	}
	if ttl == 0 {
		return ErrExpired
	}

	ok, err := r.client.SetNX(ctx, key(s.SessionID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	val, err := r.client.Get(ctx, key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: get: %w", err)
	}

	var s Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, key(sessionID)).Err()
}

// Update rewrites an existing session, typically after an org switch. A
// session that ended meanwhile (logout, TTL) yields ErrNotFound instead of
// being resurrected; an elapsed ExpiresAt deletes it.
func (r *RedisStore) Update(ctx context.Context, s Session) error {
	data, ttl, err := encode(s, r.now())
	if err != nil {
		return err
	}
	if ttl == 0 {
		return r.Delete(ctx, s.SessionID)
	}

	ok, err := r.client.SetXX(ctx, key(s.SessionID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("session: update: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
