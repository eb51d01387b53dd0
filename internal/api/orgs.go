package api

import (
	"errors"
	"net/http"

	"carelog/internal/auth/handler"
	"carelog/internal/logger"
	"carelog/internal/org"
	"carelog/internal/session"

	"github.com/gin-gonic/gin"
)

type createOrgRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) listOrgs(c *gin.Context) {
	sess := currentSession(c)
	if sess == nil {
		return
	}

	orgs, err := h.orgs.ListForUser(c.Request.Context(), sess.UserID)
	if err != nil {
		logger.Error("list orgs failed", map[string]any{"user_id": sess.UserID, "error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list organizations"})
		return
	}
	if orgs == nil {
		orgs = []org.Organization{}
	}

	c.JSON(http.StatusOK, gin.H{
		"organizations": orgs,
		"active":        sess.OrgID,
	})
}

// createOrg completes onboarding: the new organization becomes the
// session's active scope.
func (h *Handler) createOrg(c *gin.Context) {
	sess := currentSession(c)
	if sess == nil {
		return
	}

	var req createOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	o, err := h.orgs.Create(c.Request.Context(), sess.UserID, req.Name)
	if err != nil {
		if errors.Is(err, org.ErrInvalidName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("create org failed", map[string]any{"user_id": sess.UserID, "error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create organization"})
		return
	}

	if !h.switchOrg(c, sess, o.ID) {
		return
	}

	body := handler.RouteBody(sess)
	body["organization"] = o
	c.JSON(http.StatusCreated, body)
}

func (h *Handler) activateOrg(c *gin.Context) {
	sess := currentSession(c)
	if sess == nil {
		return
	}

	orgID := c.Param("id")
	if _, err := h.orgs.Role(c.Request.Context(), orgID, sess.UserID); err != nil {
		if errors.Is(err, org.ErrNotMember) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this organization"})
			return
		}
		logger.Error("membership check failed", map[string]any{"org_id": orgID, "error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}

	if !h.switchOrg(c, sess, orgID) {
		return
	}
	c.JSON(http.StatusOK, handler.RouteBody(sess))
}

// switchOrg persists orgID as the active scope of sess; "" clears it. It
// writes the error response itself and reports whether the caller may
// continue.
func (h *Handler) switchOrg(c *gin.Context, sess *session.Session, orgID string) bool {
	sess.OrgID = orgID
	err := h.sessions.Update(c.Request.Context(), *sess)
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session ended"})
		return false
	}
	if err != nil {
		logger.Error("session update failed", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update session"})
		return false
	}
	return true
}
