// Package api serves the session-protected endpoints the app calls after
// sign in: profile, organization scope, and backend token resolution.
package api

import (
	"net/http"

	"carelog/internal/auth/template"
	"carelog/internal/middleware"
	"carelog/internal/org"
	"carelog/internal/session"
	"carelog/internal/token"

	"github.com/gin-gonic/gin"
)

// TokenSource binds a principal to the identity provider's token
// capability. *template.Issuer is the production source.
type TokenSource interface {
	ForPrincipal(p template.Principal) token.Fetcher
}

type Handler struct {
	orgs     org.Store
	sessions session.Store
	issuer   TokenSource
	tokens   *token.Resolver
}

func NewHandler(orgs org.Store, sessions session.Store, issuer TokenSource, tokens *token.Resolver) *Handler {
	return &Handler{
		orgs:     orgs,
		sessions: sessions,
		issuer:   issuer,
		tokens:   tokens,
	}
}

// RegisterRoutes mounts the handlers on a group already guarded by
// middleware.GinRequireAuth.
func (h *Handler) RegisterRoutes(g gin.IRouter) {
	g.GET("/me", h.me)
	g.GET("/orgs", h.listOrgs)
	g.POST("/orgs", h.createOrg)
	g.POST("/orgs/:id/activate", h.activateOrg)
	g.GET("/token", h.token)
}

func currentSession(c *gin.Context) *session.Session {
	sess, ok := middleware.SessionFromContext(c.Request.Context())
	if !ok {
		// GinRequireAuth guarantees a session; reaching here is a wiring bug.
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	return sess
}

func (h *Handler) me(c *gin.Context) {
	sess := currentSession(c)
	if sess == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id": sess.UserID,
		"org_id":  sess.OrgID,
	})
}
