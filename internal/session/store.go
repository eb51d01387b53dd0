package session

import (
	"context"
	"time"
)

// Session represents an authenticated user session.
// It stores identity pointers and the active organization scope only.
type Session struct {
	SessionID         string    `json:"session_id"`
	UserID            string    `json:"user_id"`          // references users.id
	OrgID             string    `json:"org_id,omitempty"` // active organization, "" until onboarding
	CreatedAt         time.Time `json:"created_at"`
	AbsoluteExpiresAt time.Time `json:"absolute_expires_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// Expired reports whether the session is past either expiry at now.
func (s Session) Expired(now time.Time) bool {
	if !s.AbsoluteExpiresAt.IsZero() && now.After(s.AbsoluteExpiresAt) {
		return true
	}
	return now.After(s.ExpiresAt)
}

// New builds a session for userID that lives for ttl.
func New(userID string, ttl time.Duration) (Session, error) {
	id, err := GenerateID()
	if err != nil {
		return Session{}, err
	}
	now := time.Now()
	return Session{
		SessionID:         id,
		UserID:            userID,
		CreatedAt:         now,
		AbsoluteExpiresAt: now.Add(ttl),
		ExpiresAt:         now.Add(ttl),
	}, nil
}

// Store defines how sessions are stored and retrieved.
// Get returns (nil, nil) when the session does not exist.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}
