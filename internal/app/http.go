package app

import (
	"context"
	"errors"
	"net/http"

	"carelog/internal/api"
	"carelog/internal/auth/credentials"
	"carelog/internal/auth/handler"
	"carelog/internal/auth/provider"
	"carelog/internal/auth/provider/oidc"
	"carelog/internal/auth/resolver"
	"carelog/internal/auth/template"
	"carelog/internal/config"
	"carelog/internal/logger"
	"carelog/internal/middleware"
	"carelog/internal/org"
	"carelog/internal/session"
	"carelog/internal/token"

	"github.com/gin-gonic/gin"
)

// Services are the collaborators the router is built from.
type Services struct {
	Providers   *provider.Registry
	Sessions    session.Store
	Resolver    resolver.Resolver
	Credentials handler.CredentialService
	Orgs        org.Store
	Issuer      api.TokenSource
}

func setupProviders(ctx context.Context, cfg config.Config) (*provider.Registry, error) {
	var list []provider.OAuthProvider

	if cfg.GoogleEnabled() {
		p, err := oidc.New(ctx, oidc.Google(
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.GoogleRedirectURL,
		))
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	if cfg.KeycloakEnabled() {
		p, err := oidc.New(ctx, oidc.Keycloak(
			cfg.KeycloakIssuer,
			cfg.KeycloakClientID,
			cfg.KeycloakRedirectURL,
			cfg.KeycloakPublicBaseURL,
		))
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	registry := provider.NewRegistry(list...)
	logger.Info("oauth providers configured", map[string]any{"providers": registry.Names()})
	return registry, nil
}

func setupIssuer(cfg config.Config) (*template.Issuer, error) {
	if cfg.TokenSigningKey == "" {
		return nil, errors.New("TOKEN_SIGNING_KEY is required")
	}
	return template.NewIssuer(template.Config{
		SigningKey: []byte(cfg.TokenSigningKey),
		Issuer:     cfg.TokenIssuer,
		Audience:   cfg.TokenAudience,
		Lifetime:   cfg.TokenTTL,
	}, template.Convex(cfg.TokenTTL))
}

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	registry, err := setupProviders(ctx, cfg)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	issuer, err := setupIssuer(cfg)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	router := NewRouter(cfg, Services{
		Providers:   registry,
		Sessions:    infra.Sessions,
		Resolver:    resolver.NewDBResolver(infra.DB),
		Credentials: credentials.NewService(infra.DB),
		Orgs:        org.NewPGStore(infra.DB),
		Issuer:      issuer,
	})

	return router, infra.Close, nil
}

// NewRouter builds the gin engine from already constructed services.
func NewRouter(cfg config.Config, s Services) *gin.Engine {
	authMiddleware := middleware.NewAuthMiddleware(s.Sessions)

	authHandler := handler.NewHandler(handler.Deps{
		Providers:    s.Providers,
		Sessions:     s.Sessions,
		Resolver:     s.Resolver,
		Credentials:  s.Credentials,
		Orgs:         s.Orgs,
		Middleware:   authMiddleware,
		SessionTTL:   cfg.SessionTTL,
		CookieSecure: cfg.CookieSecure,
	})

	apiHandler := api.NewHandler(
		s.Orgs,
		s.Sessions,
		s.Issuer,
		token.NewResolver(cfg.JWTTemplate),
	)

	router := gin.New()
	router.Use(gin.Recovery())

	// ----------------------------
	// Public Routes
	// ----------------------------

	authHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	protected := router.Group("/api")
	protected.Use(middleware.GinRequireAuth(authMiddleware))
	apiHandler.RegisterRoutes(protected)

	return router
}
