package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Gin context keys set by the adapters.
const (
	GinUserIDKey  = "userID"
	GinSessionKey = "session"
)

// GinRequireAuth adapts AuthMiddleware.RequireAuth to Gin.
// Auth decisions stay session-based and provider-agnostic.
func GinRequireAuth(auth *AuthMiddleware) gin.HandlerFunc {
	return adapt(auth.RequireAuth)
}

// GinLoadSession adapts AuthMiddleware.LoadSession to Gin.
func GinLoadSession(auth *AuthMiddleware) gin.HandlerFunc {
	return adapt(auth.LoadSession)
}

func adapt(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		reached := false

		// Bridge handler to allow net/http middleware execution
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			c.Request = r
			if sess, ok := SessionFromContext(r.Context()); ok {
				c.Set(GinSessionKey, sess)
				c.Set(GinUserIDKey, sess.UserID)
			}
			c.Next()
		})

		mw(next).ServeHTTP(c.Writer, c.Request)

		// the net/http middleware answered the request itself
		if !reached {
			c.Abort()
		}
	}
}
