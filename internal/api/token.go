package api

import (
	"errors"
	"net/http"

	"carelog/internal/auth/template"
	"carelog/internal/logger"
	"carelog/internal/org"
	"carelog/internal/session"

	"github.com/gin-gonic/gin"
)

// token resolves the credential the app hands to the backend database
// client. An absent token is a normal outcome the client renders as an
// offline/unauthenticated state.
func (h *Handler) token(c *gin.Context) {
	sess := currentSession(c)
	if sess == nil {
		return
	}

	principal, ok := h.principal(c, sess)
	if !ok {
		return
	}

	res, err := h.tokens.Resolve(c.Request.Context(), h.issuer.ForPrincipal(principal))
	if err != nil {
		logger.Error("token resolution failed", map[string]any{
			"user_id":  sess.UserID,
			"attempts": len(res.Attempts),
			"error":    err.Error(),
		})
		c.JSON(http.StatusBadGateway, gin.H{"error": "token unavailable"})
		return
	}

	if !res.Found() {
		c.JSON(http.StatusOK, gin.H{"token": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    res.Token,
		"template": res.Template,
	})
}

// principal builds the token subject for sess. Org claims are only carried
// for a confirmed membership. A session whose org the user has left loses
// its scope, so the next route lookup sends them to onboarding. It writes
// the error response itself when the caller must stop.
func (h *Handler) principal(c *gin.Context, sess *session.Session) (template.Principal, bool) {
	p := template.Principal{
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
	}
	if sess.OrgID == "" {
		return p, true
	}

	role, err := h.orgs.Role(c.Request.Context(), sess.OrgID, sess.UserID)
	switch {
	case err == nil:
		p.OrgID = sess.OrgID
		p.OrgRole = role
		return p, true
	case errors.Is(err, org.ErrNotMember):
		logger.Warn("session org no longer a membership", map[string]any{
			"user_id": sess.UserID,
			"org_id":  sess.OrgID,
		})
		return p, h.switchOrg(c, sess, "")
	default:
		logger.Error("org role lookup failed", map[string]any{
			"org_id": sess.OrgID,
			"error":  err.Error(),
		})
		c.JSON(http.StatusBadGateway, gin.H{"error": "token unavailable"})
		return p, false
	}
}
