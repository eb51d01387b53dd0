package middleware

import (
	"context"
	"net/http"
	"time"

	"carelog/internal/logger"
	"carelog/internal/session"
)

// unexported, collision-proof context keys
type (
	userIDContextKeyType  struct{}
	sessionContextKeyType struct{}
)

var (
	userIDKey  = userIDContextKeyType{}
	sessionKey = sessionContextKeyType{}
)

// UserIDFromContext extracts the authenticated user ID from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

// SessionFromContext returns the live session attached by the middleware.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok && s != nil
}

// WithSession attaches s and its user id to ctx.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	ctx = context.WithValue(ctx, sessionKey, s)
	return context.WithValue(ctx, userIDKey, s.UserID)
}

type AuthMiddleware struct {
	Store session.Store
}

func NewAuthMiddleware(store session.Store) *AuthMiddleware {
	return &AuthMiddleware{Store: store}
}

// load returns the live session for r, or nil when the caller has none.
// Expired sessions are deleted. A non-nil error means the store itself
// failed and the caller's state is unknown.
func (a *AuthMiddleware) load(r *http.Request) (*session.Session, error) {
	id := session.IDFromRequest(r)
	if id == "" {
		return nil, nil
	}

	sess, err := a.Store.Get(r.Context(), id)
	if err != nil {
		logger.Error("session lookup failed", map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	if sess.Expired(time.Now()) {
		_ = a.Store.Delete(r.Context(), id)
		return nil, nil
	}
	return sess, nil
}

// RequireAuth rejects requests without a live session with 401, and with
// 503 when the session store cannot answer.
func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := a.load(r)
		if err != nil {
			http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
			return
		}
		if sess == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

// LoadSession attaches the session when there is one. It never rejects an
// anonymous caller, but answers 503 when the store fails rather than
// passing a signed-in caller on as anonymous.
func (a *AuthMiddleware) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := a.load(r)
		if err != nil {
			http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
			return
		}
		if sess != nil {
			r = r.WithContext(WithSession(r.Context(), sess))
		}
		next.ServeHTTP(w, r)
	})
}
