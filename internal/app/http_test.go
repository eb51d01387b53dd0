package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"carelog/internal/api"
	"carelog/internal/auth"
	"carelog/internal/auth/credentials"
	"carelog/internal/auth/provider"
	"carelog/internal/auth/template"
	"carelog/internal/config"
	"carelog/internal/org"
	"carelog/internal/session"
	"carelog/internal/token"

	"github.com/gin-gonic/gin"
)

type fakeCredentials struct {
	mu    sync.Mutex
	users map[string]string // email -> password
}

func (f *fakeCredentials) Register(_ context.Context, email, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[email]; ok {
		return "", credentials.ErrAlreadyRegistered
	}
	f.users[email] = password
	return "user-" + email, nil
}

func (f *fakeCredentials) Authenticate(_ context.Context, email, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pw, ok := f.users[email]; !ok || pw != password {
		return "", credentials.ErrInvalidCredentials
	}
	return "user-" + email, nil
}

type fakeOrgs struct {
	mu      sync.Mutex
	next    int
	members map[string]map[string]string // orgID -> userID -> role
	orgs    map[string]org.Organization
	roleErr error
}

func (f *fakeOrgs) removeMember(orgID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[orgID], userID)
}

func newFakeOrgs() *fakeOrgs {
	return &fakeOrgs{members: map[string]map[string]string{}, orgs: map[string]org.Organization{}}
}

func (f *fakeOrgs) Create(_ context.Context, userID, name string) (org.Organization, error) {
	name, err := org.NormalizeName(name)
	if err != nil {
		return org.Organization{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	o := org.Organization{ID: fmt.Sprintf("org_%d", f.next), Name: name, CreatedAt: time.Now()}
	f.orgs[o.ID] = o
	f.members[o.ID] = map[string]string{userID: org.RoleAdmin}
	o.Role = org.RoleAdmin
	return o, nil
}

func (f *fakeOrgs) ListForUser(_ context.Context, userID string) ([]org.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []org.Organization
	for id := 1; id <= f.next; id++ {
		oid := fmt.Sprintf("org_%d", id)
		if role, ok := f.members[oid][userID]; ok {
			o := f.orgs[oid]
			o.Role = role
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrgs) Role(_ context.Context, orgID, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roleErr != nil {
		return "", f.roleErr
	}
	role, ok := f.members[orgID][userID]
	if !ok {
		return "", org.ErrNotMember
	}
	return role, nil
}

type noResolver struct{}

func (noResolver) Resolve(context.Context, *auth.Identity) (string, error) {
	return "", fmt.Errorf("no oauth in this test")
}

type testEnv struct {
	router *gin.Engine
	issuer *template.Issuer
	orgs   *fakeOrgs
}

// stubTokens answers every fetch with the same outcome.
type stubTokens struct {
	tok string
	err error
}

func (s stubTokens) ForPrincipal(template.Principal) token.Fetcher {
	return token.FetcherFunc(func(context.Context, *token.Options) (string, error) {
		return s.tok, s.err
	})
}

func newTestEnv(t *testing.T, jwtTemplate string) *testEnv {
	return newTestEnvWith(t, jwtTemplate, nil)
}

// newTestEnvWith uses tokens as the token source when non-nil, else a
// real issuer.
func newTestEnvWith(t *testing.T, jwtTemplate string, tokens api.TokenSource) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		SessionTTL:  time.Hour,
		TokenTTL:    time.Minute,
		JWTTemplate: jwtTemplate,
	}
	issuer, err := template.NewIssuer(template.Config{
		SigningKey: []byte(strings.Repeat("s", 32)),
		Issuer:     "carelog-test",
		Audience:   "carelog",
		Lifetime:   time.Minute,
	}, template.Convex(time.Minute))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	if tokens == nil {
		tokens = issuer
	}

	orgs := newFakeOrgs()
	router := NewRouter(cfg, Services{
		Providers:   provider.NewRegistry(),
		Sessions:    session.NewMemoryStore(),
		Resolver:    noResolver{},
		Credentials: &fakeCredentials{users: map[string]string{}},
		Orgs:        orgs,
		Issuer:      tokens,
	})
	return &testEnv{router: router, issuer: issuer, orgs: orgs}
}

func (e *testEnv) call(t *testing.T, method, path, sessionID string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("Authorization", "Bearer "+sessionID)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

func TestOnboardingFlow(t *testing.T) {
	env := newTestEnv(t, "")

	code, body := env.call(t, http.MethodGet, "/auth/route", "", nil)
	if code != http.StatusOK || body["href"] != "/(auth)/login" || body["signed_in"] != false {
		t.Fatalf("anonymous route: %d %v", code, body)
	}

	code, body = env.call(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "parent@example.com", "password": "longenough",
	})
	if code != http.StatusCreated || body["target"] != "ONBOARDING" {
		t.Fatalf("register: %d %v", code, body)
	}
	sid, _ := body["session_id"].(string)
	if sid == "" {
		t.Fatalf("register returned no session id: %v", body)
	}

	code, body = env.call(t, http.MethodGet, "/auth/route", sid, nil)
	if code != http.StatusOK || body["href"] != "/(auth)/onboarding" {
		t.Fatalf("signed-in route: %d %v", code, body)
	}

	code, body = env.call(t, http.MethodPost, "/api/orgs", sid, map[string]string{"name": "The Smiths"})
	if code != http.StatusCreated || body["href"] != "/(tabs)/dashboard" {
		t.Fatalf("create org: %d %v", code, body)
	}
	orgID, _ := body["org_id"].(string)

	code, body = env.call(t, http.MethodGet, "/api/me", sid, nil)
	if code != http.StatusOK || body["org_id"] != orgID {
		t.Fatalf("me: %d %v", code, body)
	}

	code, body = env.call(t, http.MethodGet, "/api/token", sid, nil)
	if code != http.StatusOK || body["template"] != "convex" {
		t.Fatalf("token: %d %v", code, body)
	}
	claims, err := env.issuer.Verify(body["token"].(string), "convex")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.OrgID != orgID || claims.OrgRole != org.RoleAdmin || claims.Subject != "user-parent@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	code, _ = env.call(t, http.MethodPost, "/auth/logout", sid, nil)
	if code != http.StatusNoContent {
		t.Fatalf("logout: %d", code)
	}
	if code, _ = env.call(t, http.MethodGet, "/api/me", sid, nil); code != http.StatusUnauthorized {
		t.Fatalf("me after logout: %d", code)
	}
}

func TestReturningUserLandsOnDashboard(t *testing.T) {
	env := newTestEnv(t, "")
	creds := map[string]string{"email": "a@example.com", "password": "longenough"}

	_, body := env.call(t, http.MethodPost, "/auth/register", "", creds)
	sid := body["session_id"].(string)
	if code, _ := env.call(t, http.MethodPost, "/api/orgs", sid, map[string]string{"name": "Fam"}); code != http.StatusCreated {
		t.Fatalf("create org: %d", code)
	}

	code, body := env.call(t, http.MethodPost, "/auth/login", "", creds)
	if code != http.StatusOK || body["target"] != "DASHBOARD" {
		t.Fatalf("login: %d %v", code, body)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t, "")
	env.call(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "a@example.com", "password": "longenough"})

	code, _ := env.call(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "a@example.com", "password": "nope-nope"})
	if code != http.StatusUnauthorized {
		t.Fatalf("login: %d", code)
	}
	code, _ = env.call(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "a@example.com", "password": "longenough"})
	if code != http.StatusConflict {
		t.Fatalf("duplicate register: %d", code)
	}
}

func TestActivateRequiresMembership(t *testing.T) {
	env := newTestEnv(t, "")

	_, a := env.call(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "a@example.com", "password": "longenough"})
	_, b := env.call(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "b@example.com", "password": "longenough"})
	sidA, sidB := a["session_id"].(string), b["session_id"].(string)

	_, created := env.call(t, http.MethodPost, "/api/orgs", sidA, map[string]string{"name": "A"})
	orgID := created["org_id"].(string)

	if code, _ := env.call(t, http.MethodPost, "/api/orgs/"+orgID+"/activate", sidB, nil); code != http.StatusForbidden {
		t.Fatalf("activate foreign org: %d", code)
	}
	code, body := env.call(t, http.MethodPost, "/api/orgs/"+orgID+"/activate", sidA, nil)
	if code != http.StatusOK || body["target"] != "DASHBOARD" {
		t.Fatalf("activate own org: %d %v", code, body)
	}

	code, body = env.call(t, http.MethodGet, "/api/orgs", sidA, nil)
	if code != http.StatusOK || body["active"] != orgID {
		t.Fatalf("list orgs: %d %v", code, body)
	}
}

func TestTokenFallsBackPastUnknownTemplate(t *testing.T) {
	env := newTestEnv(t, "Convex")

	_, body := env.call(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "a@example.com", "password": "longenough"})
	sid := body["session_id"].(string)

	code, body := env.call(t, http.MethodGet, "/api/token", sid, nil)
	if code != http.StatusOK || body["template"] != "convex" {
		t.Fatalf("token: %d %v", code, body)
	}
	claims, err := env.issuer.Verify(body["token"].(string), "convex")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.OrgID != "" {
		t.Fatalf("user without org got org claim %q", claims.OrgID)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t, "")
	for _, path := range []string{"/api/me", "/api/orgs", "/api/token"} {
		if code, _ := env.call(t, http.MethodGet, path, "", nil); code != http.StatusUnauthorized {
			t.Errorf("%s: got %d, want 401", path, code)
		}
	}
	if code, body := env.call(t, http.MethodGet, "/health", "", nil); code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health: %d %v", code, body)
	}
}

func (e *testEnv) register(t *testing.T, email string) string {
	t.Helper()
	code, body := e.call(t, http.MethodPost, "/auth/register", "", map[string]string{"email": email, "password": "longenough"})
	sid, _ := body["session_id"].(string)
	if code != http.StatusCreated || sid == "" {
		t.Fatalf("register %s: %d %v", email, code, body)
	}
	return sid
}

func TestTokenAbsentIsNotAnError(t *testing.T) {
	env := newTestEnvWith(t, "", stubTokens{})
	sid := env.register(t, "a@example.com")

	code, body := env.call(t, http.MethodGet, "/api/token", sid, nil)
	if code != http.StatusOK {
		t.Fatalf("token: %d %v", code, body)
	}
	tok, present := body["token"]
	if !present || tok != nil {
		t.Fatalf("want {\"token\":null}, got %v", body)
	}
}

func TestTokenFinalFetchErrorIsBadGateway(t *testing.T) {
	env := newTestEnvWith(t, "", stubTokens{err: errors.New("identity provider down")})
	sid := env.register(t, "a@example.com")

	code, body := env.call(t, http.MethodGet, "/api/token", sid, nil)
	if code != http.StatusBadGateway || body["error"] != "token unavailable" {
		t.Fatalf("token: %d %v", code, body)
	}
}

func TestTokenDropsOrgAfterMembershipEnds(t *testing.T) {
	env := newTestEnv(t, "")
	sid := env.register(t, "a@example.com")

	_, created := env.call(t, http.MethodPost, "/api/orgs", sid, map[string]string{"name": "Fam"})
	orgID, _ := created["org_id"].(string)
	env.orgs.removeMember(orgID, "user-a@example.com")

	code, body := env.call(t, http.MethodGet, "/api/token", sid, nil)
	if code != http.StatusOK {
		t.Fatalf("token: %d %v", code, body)
	}
	claims, err := env.issuer.Verify(body["token"].(string), "convex")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.OrgID != "" || claims.OrgRole != "" {
		t.Fatalf("non-member got org claims %q/%q", claims.OrgID, claims.OrgRole)
	}

	code, body = env.call(t, http.MethodGet, "/auth/route", sid, nil)
	if code != http.StatusOK || body["target"] != "ONBOARDING" {
		t.Fatalf("route after leaving org: %d %v", code, body)
	}
}

func TestTokenRoleLookupFailure(t *testing.T) {
	env := newTestEnv(t, "")
	sid := env.register(t, "a@example.com")
	if code, _ := env.call(t, http.MethodPost, "/api/orgs", sid, map[string]string{"name": "Fam"}); code != http.StatusCreated {
		t.Fatalf("create org: %d", code)
	}

	env.orgs.mu.Lock()
	env.orgs.roleErr = errors.New("connection reset")
	env.orgs.mu.Unlock()

	code, body := env.call(t, http.MethodGet, "/api/token", sid, nil)
	if code != http.StatusBadGateway || body["error"] != "token unavailable" {
		t.Fatalf("token: %d %v", code, body)
	}

	// the org scope survives a transient lookup failure
	if _, body = env.call(t, http.MethodGet, "/api/me", sid, nil); body["org_id"] == "" || body["org_id"] == nil {
		t.Fatalf("org scope dropped: %v", body)
	}
}
