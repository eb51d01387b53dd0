package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"carelog/internal/auth/provider"
	"carelog/internal/auth/resolver"
	"carelog/internal/logger"
	"carelog/internal/middleware"
	"carelog/internal/org"
	"carelog/internal/route"
	"carelog/internal/session"

	"github.com/gin-gonic/gin"
)

// CredentialService is the email+password backend.
type CredentialService interface {
	Register(ctx context.Context, email, password string) (string, error)
	Authenticate(ctx context.Context, email, password string) (string, error)
}

type Deps struct {
	Providers    *provider.Registry
	Sessions     session.Store
	Resolver     resolver.Resolver
	Credentials  CredentialService
	Orgs         org.Store
	Middleware   *middleware.AuthMiddleware
	SessionTTL   time.Duration
	CookieSecure bool
}

type Handler struct {
	providers         *provider.Registry
	sessionStore      session.Store
	resolver          resolver.Resolver
	credentialService CredentialService
	orgs              org.Store
	mw                *middleware.AuthMiddleware
	sessionTTL        time.Duration
	cookies           session.Cookies
}

func NewHandler(d Deps) *Handler {
	ttl := d.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Handler{
		providers:         d.Providers,
		sessionStore:      d.Sessions,
		resolver:          d.Resolver,
		credentialService: d.Credentials,
		orgs:              d.Orgs,
		mw:                d.Middleware,
		sessionTTL:        ttl,
		cookies:           session.NewCookies(d.CookieSecure),
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/oauth/login/:provider", h.login)
	r.GET("/oauth/callback/:provider", h.callback)
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/logout", h.Logout)
	r.GET("/auth/route", middleware.GinLoadSession(h.mw), h.Route)
}

// AuthState derives the route resolver input from an optional session.
func AuthState(sess *session.Session) route.AuthState {
	if sess == nil {
		return route.AuthState{}
	}
	return route.AuthState{IsSignedIn: true, OrgID: sess.OrgID}
}

// RouteBody is the JSON shape describing where the client should land.
func RouteBody(sess *session.Session) gin.H {
	state := AuthState(sess)
	target := route.ResolveInitialRoute(state)
	return gin.H{
		"signed_in": state.IsSignedIn,
		"org_id":    state.OrgID,
		"target":    target.String(),
		"href":      target.Href(),
	}
}

// Route reports the initial navigation target for the caller's session.
func (h *Handler) Route(c *gin.Context) {
	sess, _ := middleware.SessionFromContext(c.Request.Context())
	c.JSON(http.StatusOK, RouteBody(sess))
}

// startSession creates and persists a session for userID, restores the
// user's first organization as the active scope, and issues the cookie.
func (h *Handler) startSession(c *gin.Context, userID string) (*session.Session, error) {
	sess, err := session.New(userID, h.sessionTTL)
	if err != nil {
		return nil, err
	}

	if h.orgs != nil {
		orgs, err := h.orgs.ListForUser(c.Request.Context(), userID)
		if err != nil {
			logger.Warn("org lookup failed at sign in", map[string]any{
				"user_id": userID,
				"error":   err.Error(),
			})
		} else if len(orgs) > 0 {
			sess.OrgID = orgs[0].ID
		}
	}

	if err := h.sessionStore.Create(c.Request.Context(), sess); err != nil {
		return nil, err
	}

	h.cookies.Set(c.Writer, sess)
	return &sess, nil
}

// respondSignedIn writes the sign-in result together with the landing route.
func respondSignedIn(c *gin.Context, code int, status string, sess *session.Session) {
	body := RouteBody(sess)
	body["status"] = status
	body["session_id"] = sess.SessionID
	c.JSON(code, body)
}

func (h *Handler) login(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	state, err := generateState(c, h.cookies.Secure)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state error"})
		return
	}
	_, codeChallenge, err := generatePKCE(c, h.cookies.Secure)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pkce error"})
		return
	}

	c.Redirect(http.StatusFound, p.AuthCodeURL(state, codeChallenge))
}

func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	if !validateState(c) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid state",
		})
		return
	}

	// Provider-side errors (cancelled consent, registration flows) restart sign in.
	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("oidc callback returned error", map[string]any{
			"provider": providerName,
			"error":    errParam,
			"desc":     c.Query("error_description"),
		})
		c.Redirect(http.StatusFound, route.Login.Href())
		return
	}

	code := c.Query("code")
	if code == "" {
		logger.Error("oidc callback missing code and error", nil)
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	codeVerifier := getPKCEVerifier(c)
	if codeVerifier == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing pkce verifier",
		})
		return
	}

	identity, err := p.ExchangeCode(
		c.Request.Context(),
		code,
		codeVerifier,
	)
	if err != nil {
		logger.Error("oauth code exchange failed", map[string]any{
			"provider": providerName,
			"error":    err.Error(),
		})
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "authentication failed",
		})
		return
	}

	userID, err := h.resolver.Resolve(c.Request.Context(), identity)
	if errors.Is(err, resolver.ErrEmailConflict) {
		logger.Warn("identity email already in use", map[string]any{
			"provider": providerName,
		})
		c.JSON(http.StatusConflict, gin.H{
			"error": "email already registered; sign in with your original method",
		})
		return
	}
	if err != nil {
		logger.Error("identity resolution failed", map[string]any{
			"provider": providerName,
			"error":    err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to resolve user",
		})
		return
	}

	sess, err := h.startSession(c, userID)
	if err != nil {
		logger.Error("session create failed", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to persist session",
		})
		return
	}

	logger.Info("login succeeded", map[string]any{
		"user_id":  userID,
		"provider": providerName,
		"ip":       c.ClientIP(),
	})

	respondSignedIn(c, http.StatusOK, "authenticated", sess)
}

func (h *Handler) Logout(c *gin.Context) {
	// 1. Read session cookie or bearer id (best-effort delete)
	if id := session.IDFromRequest(c.Request); id != "" {
		_ = h.sessionStore.Delete(c.Request.Context(), id)
		logger.Info("logout", map[string]any{"ip": c.ClientIP()})
	}

	// 2. Clear cookie
	h.cookies.Clear(c.Writer)

	// 3. Idempotent response
	c.Status(http.StatusNoContent)
}
