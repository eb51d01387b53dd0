package handler

import (
	"errors"
	"net/http"

	"carelog/internal/auth/credentials"
	"carelog/internal/logger"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	userID, err := h.credentialService.Authenticate(
		c.Request.Context(),
		req.Email,
		req.Password,
	)
	if err != nil {
		if !errors.Is(err, credentials.ErrInvalidCredentials) {
			logger.Error("password authentication failed", map[string]any{"error": err.Error()})
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	sess, err := h.startSession(c, userID)
	if err != nil {
		logger.Error("session create failed", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return
	}

	respondSignedIn(c, http.StatusOK, "logged_in", sess)
}
