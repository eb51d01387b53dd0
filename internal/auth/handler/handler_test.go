package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"carelog/internal/auth"
	"carelog/internal/auth/provider"
	"carelog/internal/auth/resolver"
	"carelog/internal/middleware"
	"carelog/internal/route"
	"carelog/internal/session"

	"github.com/gin-gonic/gin"
)

type stubProvider struct {
	gotVerifier string
	identity    *auth.Identity
	err         error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) AuthCodeURL(state, challenge string) string {
	return "https://idp.example/auth?state=" + url.QueryEscape(state) + "&code_challenge=" + url.QueryEscape(challenge)
}

func (p *stubProvider) ExchangeCode(_ context.Context, _ string, verifier string) (*auth.Identity, error) {
	p.gotVerifier = verifier
	return p.identity, p.err
}

type stubResolver struct {
	userID string
	err    error
}

func (r stubResolver) Resolve(context.Context, *auth.Identity) (string, error) {
	return r.userID, r.err
}

func newTestHandler(p *stubProvider, store session.Store) *gin.Engine {
	return newTestHandlerWith(p, store, stubResolver{userID: "user_oauth"})
}

func newTestHandlerWith(p *stubProvider, store session.Store, res resolver.Resolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(Deps{
		Providers:  provider.NewRegistry(p),
		Sessions:   store,
		Resolver:   res,
		Middleware: middleware.NewAuthMiddleware(store),
		SessionTTL: time.Hour,
	})
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func TestPKCEChallengeRFC7636(t *testing.T) {
	got := pkceChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	if want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"; got != want {
		t.Fatalf("challenge = %q, want %q", got, want)
	}
}

func TestAuthState(t *testing.T) {
	if got := AuthState(nil); got.IsSignedIn {
		t.Fatalf("nil session should be signed out: %+v", got)
	}
	got := AuthState(&session.Session{UserID: "u", OrgID: "o"})
	if !got.IsSignedIn || got.OrgID != "o" {
		t.Fatalf("unexpected state %+v", got)
	}
	if route.ResolveInitialRoute(got) != route.Dashboard {
		t.Fatal("session with org should land on dashboard")
	}
}

func TestOAuthRoundTrip(t *testing.T) {
	p := &stubProvider{identity: &auth.Identity{Provider: "stub", ProviderUserID: "sub", Email: "a@b.c"}}
	store := session.NewMemoryStore()
	r := newTestHandler(p, store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/login/stub", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("login: %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	state := loc.Query().Get("state")

	var verifier string
	cookies := rec.Result().Cookies()
	for _, c := range cookies {
		if c.Name == pkceCookieName {
			verifier = c.Value
		}
	}
	if pkceChallenge(verifier) != loc.Query().Get("code_challenge") {
		t.Fatal("challenge does not match the stored verifier")
	}

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback/stub?code=abc&state="+url.QueryEscape(state), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("callback: %d %s", rec.Code, rec.Body.String())
	}
	if p.gotVerifier != verifier {
		t.Fatalf("provider got verifier %q, want %q", p.gotVerifier, verifier)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "authenticated" || body["href"] != route.Onboarding.Href() {
		t.Fatalf("unexpected body %v", body)
	}
	sess, _ := store.Get(context.Background(), body["session_id"].(string))
	if sess == nil || sess.UserID != "user_oauth" {
		t.Fatalf("session not persisted: %+v", sess)
	}
}

func TestCallbackRejects(t *testing.T) {
	p := &stubProvider{err: errors.New("exchange failed")}
	r := newTestHandler(p, session.NewMemoryStore())

	stateCookie := &http.Cookie{Name: stateCookieName, Value: "st"}
	pkceCookie := &http.Cookie{Name: pkceCookieName, Value: "verifier"}

	cases := []struct {
		name    string
		path    string
		cookies []*http.Cookie
		code    int
	}{
		{"unknown provider", "/oauth/callback/nope?state=st", nil, http.StatusBadRequest},
		{"state mismatch", "/oauth/callback/stub?state=other&code=x", []*http.Cookie{stateCookie}, http.StatusUnauthorized},
		{"provider error", "/oauth/callback/stub?state=st&error=access_denied", []*http.Cookie{stateCookie}, http.StatusFound},
		{"missing code", "/oauth/callback/stub?state=st", []*http.Cookie{stateCookie}, http.StatusBadRequest},
		{"missing verifier", "/oauth/callback/stub?state=st&code=x", []*http.Cookie{stateCookie}, http.StatusUnauthorized},
		{"exchange failure", "/oauth/callback/stub?state=st&code=x", []*http.Cookie{stateCookie, pkceCookie}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for _, c := range tc.cookies {
				req.AddCookie(c)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.code {
				t.Fatalf("got %d, want %d", rec.Code, tc.code)
			}
			if tc.code == http.StatusFound && rec.Header().Get("Location") != route.Login.Href() {
				t.Fatalf("redirect to %q", rec.Header().Get("Location"))
			}
		})
	}
}

func TestRouteEndpointIgnoresExpiredSession(t *testing.T) {
	store := session.NewMemoryStore()
	r := newTestHandler(&stubProvider{}, store)

	req := httptest.NewRequest(http.MethodGet, "/auth/route", nil)
	req.Header.Set("Authorization", "Bearer does-not-exist")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusOK || body["target"] != "LOGIN" {
		t.Fatalf("got %d %v", rec.Code, body)
	}
}

func TestCallbackEmailConflict(t *testing.T) {
	p := &stubProvider{identity: &auth.Identity{Provider: "stub", ProviderUserID: "sub", Email: "taken@b.c"}}
	store := session.NewMemoryStore()
	r := newTestHandlerWith(p, store, stubResolver{err: resolver.ErrEmailConflict})

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback/stub?state=st&code=x", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "st"})
	req.AddCookie(&http.Cookie{Name: pkceCookieName, Value: "verifier"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("got %d %s, want 409", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			t.Fatalf("no session cookie expected on conflict, got %+v", c)
		}
	}
}
