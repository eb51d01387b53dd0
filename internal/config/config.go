package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppPort  string
	LogLevel string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	KeycloakIssuer        string
	KeycloakClientID      string
	KeycloakRedirectURL   string
	KeycloakPublicBaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseDSN string

	SessionTTL   time.Duration
	CookieSecure bool

	// JWTTemplate names the preferred credential template for backend
	// tokens. Optional; blank means the built-in default.
	JWTTemplate     string
	TokenSigningKey string
	TokenIssuer     string
	TokenAudience   string
	TokenTTL        time.Duration
}

func Load() Config {

	cfg := Config{

		AppPort:  envDefault("APP_PORT", "8080"),
		LogLevel: envDefault("LOG_LEVEL", "info"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),

		KeycloakIssuer:        os.Getenv("KEYCLOAK_ISSUER"),
		KeycloakClientID:      os.Getenv("KEYCLOAK_CLIENT_ID"),
		KeycloakRedirectURL:   os.Getenv("KEYCLOAK_REDIRECT_URL"),
		KeycloakPublicBaseURL: os.Getenv("KEYCLOAK_PUBLIC_BASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envIntDefault("REDIS_DB", 0),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),

		SessionTTL:   time.Duration(envIntDefault("SESSION_TTL_HOURS", 24)) * time.Hour,
		CookieSecure: envBoolDefault("COOKIE_SECURE", true),

		JWTTemplate:     strings.TrimSpace(os.Getenv("JWT_TEMPLATE")),
		TokenSigningKey: os.Getenv("TOKEN_SIGNING_KEY"),
		TokenIssuer:     envDefault("TOKEN_ISSUER", "carelog"),
		TokenAudience:   envDefault("TOKEN_AUDIENCE", "carelog"),
		TokenTTL:        time.Duration(envIntDefault("TOKEN_TTL_SECONDS", 60)) * time.Second,
	}

	return cfg

}

// GoogleEnabled reports whether Google sign-in is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// KeycloakEnabled reports whether Keycloak sign-in is configured.
func (c Config) KeycloakEnabled() bool {
	return c.KeycloakIssuer != "" && c.KeycloakClientID != "" && c.KeycloakRedirectURL != ""
}

func envDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
