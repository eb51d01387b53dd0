// Package oidc implements provider.OAuthProvider for any OpenID Connect
// issuer using discovery, PKCE (S256) and id_token verification.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"carelog/internal/auth"
	"carelog/internal/logger"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

type Config struct {
	Name         string // registry key, e.g. "google"
	Issuer       string
	ClientID     string
	ClientSecret string // empty for public clients
	RedirectURL  string

	// AuthURL overrides the discovered authorization endpoint. Keycloak
	// behind a proxy advertises an internal host the browser cannot reach.
	AuthURL string
}

// Provider returns identity facts only; no user/session decisions are made here.
type Provider struct {
	name        string
	oauthConfig *oauth2.Config
	verifier    *gooidc.IDTokenVerifier
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Name == "" || cfg.Issuer == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("oidc: provider config missing required fields")
	}

	oidcProvider, err := gooidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init %s oidc provider: %w", cfg.Name, err)
	}

	ep := oidcProvider.Endpoint()
	if cfg.AuthURL != "" {
		ep.AuthURL = cfg.AuthURL
	}

	return &Provider{
		name: cfg.Name,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     ep,
			Scopes: []string{
				gooidc.ScopeOpenID,
				"profile",
				"email",
			},
		},
		verifier: oidcProvider.Verifier(&gooidc.Config{
			ClientID: cfg.ClientID,
		}),
	}, nil
}

// Google is the preset for accounts.google.com.
func Google(clientID, clientSecret, redirectURL string) Config {
	return Config{
		Name:         "google",
		Issuer:       "https://accounts.google.com",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
	}
}

// Keycloak is the preset for a Keycloak realm. issuer is the realm issuer
// URL, e.g. http://localhost:8081/realms/carelog; publicBaseURL is the
// browser-facing Keycloak origin.
func Keycloak(issuer, clientID, redirectURL, publicBaseURL string) Config {
	cfg := Config{
		Name:        "keycloak",
		Issuer:      issuer,
		ClientID:    clientID,
		RedirectURL: redirectURL,
	}
	if publicBaseURL != "" {
		if i := strings.Index(issuer, "/realms/"); i >= 0 {
			cfg.AuthURL = strings.TrimRight(publicBaseURL, "/") + issuer[i:] + "/protocol/openid-connect/auth"
		}
	}
	return cfg
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return p.name
}

// AuthCodeURL builds the OAuth authorization URL with PKCE parameters.
func (p *Provider) AuthCodeURL(state string, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
	codeVerifier string,
) (*auth.Identity, error) {

	tok, err := p.oauthConfig.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange failed: %w", p.name, err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%s did not return id_token", p.name)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%s id_token verification failed: %w", p.name, err)
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s id_token claims parse failed: %w", p.name, err)
	}

	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("%s id_token missing required claims", p.name)
	}

	logger.Info("oidc identity verified", map[string]any{
		"provider":       p.name,
		"issuer":         idToken.Issuer,
		"email_verified": claims.EmailVerified,
		"audience":       idToken.Audience,
		"expiry_unix":    idToken.Expiry.Unix(),
	})

	return &auth.Identity{
		Provider:       p.name,
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
		EmailVerified:  claims.EmailVerified,
	}, nil
}
