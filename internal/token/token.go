// Package token resolves the credential handed to the backend database
// client. Candidate credential templates are tried one at a time, in
// order, until one yields a token; if none does, a single untemplated
// fetch is made.
package token

import (
	"context"
	"strings"

	"carelog/internal/logger"
)

// DefaultTemplate is used when no template name is configured.
const DefaultTemplate = "convex"

var fallbackTemplates = []string{"convex", "Convex"}

// Options parameterizes a token fetch. A nil *Options asks the identity
// provider for its untemplated, session-scoped token.
type Options struct {
	Template string
}

// Fetcher is the identity provider's token capability. An empty token
// with a nil error means the template produced no token.
type Fetcher interface {
	GetToken(ctx context.Context, opts *Options) (string, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context, opts *Options) (string, error)

func (f FetcherFunc) GetToken(ctx context.Context, opts *Options) (string, error) {
	return f(ctx, opts)
}

// Attempt records one fetch call made during resolution.
type Attempt struct {
	Template  string
	Templated bool
	Empty     bool
	Err       error
}

// Result is the outcome of a resolution. Token is "" when absent.
type Result struct {
	Token    string
	Template string // template that produced Token, "" for the untemplated fetch
	Attempts []Attempt
}

// Found reports whether a token was obtained.
func (r Result) Found() bool {
	return r.Token != ""
}

// Candidates builds the ordered template list: the configured name (or
// DefaultTemplate when blank), then the fixed fallbacks, each at most once.
func Candidates(configured string) []string {
	first := strings.TrimSpace(configured)
	if first == "" {
		first = DefaultTemplate
	}

	out := make([]string, 0, len(fallbackTemplates)+1)
	seen := make(map[string]struct{}, len(fallbackTemplates)+1)
	for _, name := range append([]string{first}, fallbackTemplates...) {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Resolve tries each candidate in order and returns the first non-empty
// token. Per-template errors are logged and skipped. When every candidate
// comes back empty, one untemplated fetch is made and its outcome,
// including any error, is returned as is.
func Resolve(ctx context.Context, candidates []string, f Fetcher) (Result, error) {
	res := Result{Attempts: make([]Attempt, 0, len(candidates)+1)}

	for _, name := range candidates {
		tok, err := f.GetToken(ctx, &Options{Template: name})
		res.Attempts = append(res.Attempts, Attempt{
			Template:  name,
			Templated: true,
			Empty:     err == nil && tok == "",
			Err:       err,
		})

		if err != nil {
			logger.Warn("token template failed", map[string]any{
				"template": name,
				"error":    err.Error(),
			})
			continue
		}
		if tok != "" {
			res.Token = tok
			res.Template = name
			return res, nil
		}
	}

	tok, err := f.GetToken(ctx, nil)
	res.Attempts = append(res.Attempts, Attempt{
		Empty: err == nil && tok == "",
		Err:   err,
	})
	if err != nil {
		return res, err
	}
	res.Token = tok
	return res, nil
}

// Resolver binds a configured default template name.
type Resolver struct {
	configured string
}

func NewResolver(configured string) *Resolver {
	return &Resolver{configured: configured}
}

// Candidates returns a fresh candidate list for this resolver.
func (r *Resolver) Candidates() []string {
	return Candidates(r.configured)
}

func (r *Resolver) Resolve(ctx context.Context, f Fetcher) (Result, error) {
	return Resolve(ctx, r.Candidates(), f)
}
