package template

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carelog/internal/token"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrUnknownTemplate   = errors.New("template: unknown jwt template")
	ErrDuplicateTemplate = errors.New("template: duplicate jwt template")
	ErrNoSession         = errors.New("template: no active session")
)

const minKeyLength = 32

// Template shapes the claims of an issued token.
type Template struct {
	Name       string
	Audience   string
	Lifetime   time.Duration
	IncludeOrg bool // embed org_id / org_role
}

// Claims are the claims carried by every issued token.
type Claims struct {
	SessionID string `json:"session_id,omitempty"`
	OrgID     string `json:"org_id,omitempty"`
	OrgRole   string `json:"org_role,omitempty"`
	Template  string `json:"template,omitempty"`
	jwt.RegisteredClaims
}

// Principal is whoever the token is minted for.
type Principal struct {
	UserID    string
	SessionID string
	OrgID     string
	OrgRole   string
}

type Config struct {
	SigningKey []byte
	Issuer     string
	Audience   string        // audience of untemplated session tokens
	Lifetime   time.Duration // lifetime of untemplated session tokens
}

// Issuer mints HS256 tokens for a fixed set of named templates.
type Issuer struct {
	key       []byte
	issuer    string
	audience  string
	lifetime  time.Duration
	templates map[string]Template
	now       func() time.Time
}

func NewIssuer(cfg Config, templates ...Template) (*Issuer, error) {
	if len(cfg.SigningKey) < minKeyLength {
		return nil, fmt.Errorf("template: signing key must be at least %d bytes", minKeyLength)
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("template: issuer is required")
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = time.Minute
	}

	m := make(map[string]Template, len(templates))
	for _, t := range templates {
		if strings.TrimSpace(t.Name) == "" {
			return nil, errors.New("template: template name is required")
		}
		if _, ok := m[t.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTemplate, t.Name)
		}
		if t.Lifetime <= 0 {
			t.Lifetime = cfg.Lifetime
		}
		m[t.Name] = t
	}

	return &Issuer{
		key:       cfg.SigningKey,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		lifetime:  cfg.Lifetime,
		templates: m,
		now:       time.Now,
	}, nil
}

// Lookup returns the template registered under the exact name.
func (i *Issuer) Lookup(name string) (Template, bool) {
	t, ok := i.templates[name]
	return t, ok
}

// ForPrincipal binds the issuer to p, yielding the token capability the
// token resolver consumes.
func (i *Issuer) ForPrincipal(p Principal) token.Fetcher {
	return token.FetcherFunc(func(ctx context.Context, opts *token.Options) (string, error) {
		return i.issue(ctx, p, opts)
	})
}

func (i *Issuer) issue(ctx context.Context, p Principal, opts *token.Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.UserID == "" {
		return "", ErrNoSession
	}

	audience := i.audience
	lifetime := i.lifetime
	claims := Claims{SessionID: p.SessionID}

	if opts != nil {
		t, ok := i.templates[opts.Template]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, opts.Template)
		}
		audience = t.Audience
		lifetime = t.Lifetime
		claims.Template = t.Name
		if t.IncludeOrg {
			claims.OrgID = p.OrgID
			claims.OrgRole = p.OrgRole
		}
	}

	now := i.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    i.issuer,
		Subject:   p.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("template: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses raw and checks signature, issuer, expiry and, when
// audience is non-empty, the audience.
func (i *Issuer) Verify(raw, audience string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("template: verify token: %w", err)
	}
	return &claims, nil
}
