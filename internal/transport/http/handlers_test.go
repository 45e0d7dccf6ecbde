// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentrusty/embedgate/internal/accesslog"
	"github.com/opentrusty/embedgate/internal/audit"
	"github.com/opentrusty/embedgate/internal/dashboard"
	"github.com/opentrusty/embedgate/internal/embedtoken"
	"github.com/opentrusty/embedgate/internal/identity"
	"github.com/opentrusty/embedgate/internal/relay"
	"github.com/opentrusty/embedgate/internal/session"
	"github.com/opentrusty/embedgate/internal/tenant"
)

const testPassword = "correct-horse-battery"

// =============================================================================
// In-memory stores
// =============================================================================

type memPrincipals struct {
	mu   sync.Mutex
	byID map[string]*identity.Principal
}

func (m *memPrincipals) Create(_ context.Context, p *identity.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[p.ID] = p
	return nil
}

func (m *memPrincipals) GetByID(_ context.Context, id string) (*identity.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[id]; ok {
		return p, nil
	}
	return nil, identity.ErrUserNotFound
}

func (m *memPrincipals) GetByEmail(_ context.Context, email string) (*identity.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *memPrincipals) List(context.Context) ([]*identity.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*identity.Principal, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, p)
	}
	return out, nil
}

func (m *memPrincipals) UpdateLockout(_ context.Context, id string, attempts int, until *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[id]; ok {
		p.FailedLoginAttempts, p.LockedUntil = attempts, until
	}
	return nil
}

func (m *memPrincipals) ExistsGlobalAdmin(context.Context) (bool, error) { return false, nil }

type memTenants []*tenant.Tenant

func (m memTenants) Create(context.Context, *tenant.Tenant) error { return nil }

func (m memTenants) GetByID(_ context.Context, id string) (*tenant.Tenant, error) {
	for _, t := range m {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (m memTenants) GetBySlug(_ context.Context, slug string) (*tenant.Tenant, error) {
	for _, t := range m {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (m memTenants) List(context.Context) ([]*tenant.Tenant, error) { return m, nil }

func (m memTenants) SetActive(_ context.Context, id string, active bool) error {
	for _, t := range m {
		if t.ID == id {
			t.Active = active
			return nil
		}
	}
	return tenant.ErrTenantNotFound
}

type memDashboards map[int64]*dashboard.Dashboard

func (m memDashboards) Create(context.Context, *dashboard.Dashboard) error { return nil }

func (m memDashboards) GetByID(_ context.Context, id int64) (*dashboard.Dashboard, error) {
	if d, ok := m[id]; ok {
		return d, nil
	}
	return nil, dashboard.ErrNotFound
}

func (m memDashboards) ListActiveForTenant(_ context.Context, tenantID string) ([]*dashboard.Dashboard, error) {
	var out []*dashboard.Dashboard
	for id := int64(1); id <= int64(len(m)); id++ {
		if d, ok := m[id]; ok && d.Active && d.LinkedTo(tenantID) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m memDashboards) List(context.Context) ([]*dashboard.Dashboard, error) {
	out := make([]*dashboard.Dashboard, 0, len(m))
	for _, d := range m {
		out = append(out, d)
	}
	return out, nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAudit) Log(_ context.Context, e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *recordingAudit) types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Type)
	}
	return out
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[string]*session.Session{}}
}

func (m *memSessions) Create(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memSessions) Get(_ context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, session.ErrSessionNotFound
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memSessions) DeleteByUserID(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memSessions) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, nil }

type discardSink struct{}

func (discardSink) Append(context.Context, accesslog.Entry) error { return nil }

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

// =============================================================================
// Fixture
// =============================================================================

type testServer struct {
	router   *chi.Mux
	handler  *Handler
	sessions *session.Manager
	audit    *recordingAudit

	acme, globex, initech, dormant *tenant.Tenant

	globalAdmin, tenantAdmin, analyst, consultant *identity.Principal
}

func newTestServer(t *testing.T, health HealthChecker) *testServer {
	t.Helper()
	ctx := context.Background()

	report := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>report</html>"))
	}))
	t.Cleanup(report.Close)

	ts := &testServer{audit: &recordingAudit{}}
	ts.acme = &tenant.Tenant{ID: "t-acme", Name: "Acme", Slug: "acme", Active: true}
	ts.globex = &tenant.Tenant{ID: "t-globex", Name: "Globex", Slug: "globex", Active: true}
	ts.initech = &tenant.Tenant{ID: "t-initech", Name: "Initech", Slug: "initech", Active: true}
	ts.dormant = &tenant.Tenant{ID: "t-dormant", Name: "Dormant", Slug: "dormant", Active: false}
	tenants := tenant.NewService(memTenants{ts.acme, ts.globex, ts.initech, ts.dormant}, tenant.CacheConfig{})

	dashboards := dashboard.NewService(memDashboards{
		1: {ID: 1, Title: "Sales", EmbedURL: report.URL + "/reportEmbed", Active: true, TenantIDs: []string{"t-acme"}},
		2: {ID: 2, Title: "Ops", EmbedURL: report.URL + "/reportEmbed", Active: true, TenantIDs: []string{"t-globex"}},
		3: {ID: 3, Title: "Retired", EmbedURL: report.URL + "/reportEmbed", Active: false, TenantIDs: []string{"t-acme"}},
	})

	hasher := identity.NewPasswordHasher(8*1024, 1, 1, 16, 32)
	identities := identity.NewService(&memPrincipals{byID: map[string]*identity.Principal{}}, hasher, ts.audit, 5, 15*time.Minute)

	create := func(email string, role identity.Role, primary *string, grants ...string) *identity.Principal {
		p, err := identities.CreatePrincipal(ctx, identity.CreateRequest{
			Email: email, Name: email, Password: testPassword, Role: role, PrimaryTenantID: primary, Grants: grants,
		})
		require.NoError(t, err)
		p.Active = true
		return p
	}
	ts.globalAdmin = create("root@example.com", identity.RoleGlobalAdmin, nil)
	ts.tenantAdmin = create("lead@acme.example", identity.RoleTenantAdmin, &ts.acme.ID)
	ts.analyst = create("ana@acme.example", identity.RoleRegularUser, &ts.acme.ID)
	ts.consultant = create("cy@globex.example", identity.RoleRegularUser, &ts.globex.ID, ts.acme.ID)

	sessions, err := session.NewManager([]byte(strings.Repeat("s", 32)), time.Hour, newMemSessions())
	require.NoError(t, err)
	ts.sessions = sessions

	tokens, err := embedtoken.NewService(embedtoken.Config{Secret: []byte(strings.Repeat("e", 32))})
	require.NoError(t, err)

	rl := relay.New(relay.Config{Timeout: 5 * time.Second}, tokens, dashboards, accesslog.NewRecorder(discardSink{}, accesslog.Config{}), ts.audit, nil)

	ts.handler = NewHandler(Dependencies{
		Identity:   identities,
		Tenants:    tenants,
		Dashboards: dashboards,
		Tokens:     tokens,
		Relay:      rl,
		Sessions:   sessions,
		Audit:      ts.audit,
		Health:     health,
	}, SessionConfig{
		CookieName:     "embedgate_session",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
	})
	ts.router = NewRouter(ts.handler, RouterConfig{RequestTimeout: 10 * time.Second})
	return ts
}

// do sends a request as p (anonymous when nil)
func (ts *testServer) do(t *testing.T, method, target string, p *identity.Principal, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p != nil {
		req.AddCookie(&http.Cookie{Name: "embedgate_session", Value: ts.login(t, p)})
	}
	return ts.serve(req)
}

// login opens a session for p and returns its cookie value
func (ts *testServer) login(t *testing.T, p *identity.Principal) string {
	t.Helper()
	token, _, err := ts.sessions.Issue(context.Background(), p.ID, session.Client{})
	require.NoError(t, err)
	return token
}

// doWithCookie sends a request carrying an existing session cookie value
func (ts *testServer) doWithCookie(method, target, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.AddCookie(&http.Cookie{Name: "embedgate_session", Value: cookie})
	return ts.serve(req)
}

func (ts *testServer) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

// =============================================================================
// TENANT GATE
// =============================================================================

// TestPurpose: Validates that anonymous requests to a tenant panel are sent to login.
// Scope: Unit Test
// Security: Authentication enforcement on tenant routes
// Expected: 302 to /login carrying the requested path as intended-url.
// Test Case ID: HTTP-01
func TestTenantGate_Unauthenticated_RedirectsToLogin(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/acme/power-bi", nil, nil)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?intended-url=%2Facme%2Fpower-bi", w.Header().Get("Location"))
}

// TestPurpose: Validates that a principal cannot enter a tenant it has no association with.
// Scope: Unit Test
// Security: Multi-tenant isolation (CWE-284), no cross-tenant disclosure
// Expected: 403 naming only the requested and primary tenants; an audit event is emitted.
// Test Case ID: HTTP-02
func TestTenantGate_CrossTenant_Denied(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/globex/power-bi", ts.analyst, nil)

	require.Equal(t, http.StatusForbidden, w.Code)
	body := decode[struct {
		Error  string `json:"error"`
		Detail struct {
			PrincipalID       string `json:"principal_id"`
			RequestedTenantID string `json:"requested_tenant_id"`
			PrimaryTenantID   string `json:"primary_tenant_id"`
		} `json:"detail"`
	}](t, w)
	assert.Equal(t, ts.analyst.ID, body.Detail.PrincipalID)
	assert.Equal(t, ts.globex.ID, body.Detail.RequestedTenantID)
	assert.Equal(t, ts.acme.ID, body.Detail.PrimaryTenantID)
	assert.NotContains(t, w.Body.String(), "initech")
	assert.NotContains(t, w.Body.String(), "Sales")
	assert.Contains(t, ts.audit.types(), audit.TypeTenantAccessDenied)
}

// TestPurpose: Validates tenant resolution edge cases.
// Scope: Unit Test
// Security: Inactive tenants are closed to everyone, including global admins
// Expected: Unknown and inactive slugs return 404.
// Test Case ID: HTTP-03
func TestTenantGate_UnknownAndInactiveTenants(t *testing.T) {
	ts := newTestServer(t, nil)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/nowhere", ts.globalAdmin, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/dormant", ts.globalAdmin, nil).Code)

	// Reserved words never bounce anonymous callers back to login.
	assert.NotEqual(t, http.StatusFound, ts.do(t, http.MethodGet, "/login", nil, nil).Code)
	assert.NotEqual(t, http.StatusFound, ts.do(t, http.MethodGet, "/logout", nil, nil).Code)
}

// TestPurpose: Validates that access follows primary tenant, grants and the global role.
// Scope: Unit Test
// Security: Authorization resolver wiring
// Expected: Primary, granted and global-admin access succeed and list only that tenant's active dashboards.
// Test Case ID: HTTP-04
func TestTenantGate_AuthorizedPrincipals(t *testing.T) {
	ts := newTestServer(t, nil)

	for name, p := range map[string]*identity.Principal{
		"primary":      ts.analyst,
		"grant":        ts.consultant,
		"global admin": ts.globalAdmin,
	} {
		t.Run(name, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, "/acme", p, nil)
			require.Equal(t, http.StatusOK, w.Code)

			body := decode[TenantHomeResponse](t, w)
			assert.Equal(t, "acme", body.Tenant.Slug)
			require.Len(t, body.Dashboards, 1)
			assert.Equal(t, "Sales", body.Dashboards[0].Title)
			assert.NotContains(t, w.Body.String(), "reportEmbed", "embed URL must never reach the browser")
		})
	}
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// TestPurpose: Validates login redirects and credential handling.
// Scope: Unit Test
// Security: Open redirect prevention, account enumeration resistance
// Expected: Valid credentials set a cookie and redirect to a safe intended-url or the principal's home.
// Test Case ID: HTTP-05
func TestLogin(t *testing.T) {
	ts := newTestServer(t, nil)

	login := func(target, email, password string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(LoginRequest{Email: email, Password: password})
		return ts.do(t, http.MethodPost, target, nil, body)
	}

	t.Run("wrong password", func(t *testing.T) {
		w := login("/login", "ana@acme.example", "nope-nope-nope")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid credentials")
	})

	t.Run("unknown user has the same answer", func(t *testing.T) {
		w := login("/login", "ghost@acme.example", "nope-nope-nope")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid credentials")
	})

	t.Run("missing fields", func(t *testing.T) {
		w := login("/login", "", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	cases := []struct {
		name     string
		target   string
		email    string
		redirect string
	}{
		{"home tenant", "/login", "ana@acme.example", "/acme"},
		{"intended url", "/login?intended-url=%2Facme%2Fpower-bi%2F1", "ana@acme.example", "/acme/power-bi/1"},
		{"protocol relative ignored", "/login?intended-url=%2F%2Fevil.example", "ana@acme.example", "/acme"},
		{"absolute ignored", "/login?intended-url=https%3A%2F%2Fevil.example", "ana@acme.example", "/acme"},
		{"global admin", "/login", "root@example.com", "/admin/tenants"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := login(tc.target, tc.email, testPassword)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.redirect, decode[LoginResponse](t, w).Redirect)

			cookies := w.Result().Cookies()
			require.NotEmpty(t, cookies)
			assert.Equal(t, "embedgate_session", cookies[0].Name)
			assert.True(t, cookies[0].HttpOnly)
		})
	}
}

// TestPurpose: Validates that logout revokes the session server-side.
// Scope: Integration Test
// Security: Session revocation on logout (CWE-613)
// Expected: The cookie is cleared and replaying the old cookie afterwards is treated as anonymous.
// Test Case ID: HTTP-08
func TestLogout_RevokesSession(t *testing.T) {
	ts := newTestServer(t, nil)
	cookie := ts.login(t, ts.analyst)

	require.Equal(t, http.StatusOK, ts.doWithCookie(http.MethodGet, "/acme/power-bi", cookie).Code)

	w := ts.doWithCookie(http.MethodPost, "/logout", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Less(t, cookies[0].MaxAge, 0)
	assert.Contains(t, ts.audit.types(), audit.TypeLogout)

	w = ts.doWithCookie(http.MethodGet, "/acme/power-bi", cookie)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/login?intended-url="))
	assert.Equal(t, http.StatusUnauthorized, ts.doWithCookie(http.MethodGet, "/me", cookie).Code)
}

func TestLogout_AllSessions(t *testing.T) {
	ts := newTestServer(t, nil)
	laptop := ts.login(t, ts.analyst)
	phone := ts.login(t, ts.analyst)
	other := ts.login(t, ts.consultant)

	require.Equal(t, http.StatusOK, ts.doWithCookie(http.MethodPost, "/logout?scope=all", laptop).Code)

	assert.Equal(t, http.StatusUnauthorized, ts.doWithCookie(http.MethodGet, "/me", phone).Code)
	assert.Equal(t, http.StatusOK, ts.doWithCookie(http.MethodGet, "/me", other).Code)
}

func TestMe(t *testing.T) {
	ts := newTestServer(t, nil)

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/me", nil, nil).Code)

	w := ts.do(t, http.MethodGet, "/me", ts.consultant, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[MeResponse](t, w)
	assert.Equal(t, "/globex", body.Home)

	var slugs []string
	for _, tn := range body.Tenants {
		slugs = append(slugs, tn.Slug)
	}
	assert.ElementsMatch(t, []string{"acme", "globex"}, slugs)
	assert.NotContains(t, w.Body.String(), "PasswordHash")
}

func TestSafeLocalPath(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"/acme/power-bi", true},
		{"/acme?x=1", true},
		{"", false},
		{"acme", false},
		{"//evil.example/x", false},
		{`/\evil.example`, false},
		{"https://evil.example/", false},
	}
	for _, tt := range tests {
		_, ok := safeLocalPath(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

// =============================================================================
// ADMIN PANEL
// =============================================================================

// TestPurpose: Validates that only global admins reach the admin panel.
// Scope: Unit Test
// Security: Privilege separation between panels
// Expected: Non-global principals are redirected to their home tenant.
// Test Case ID: HTTP-06
func TestAdminPanel_Guard(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/admin/tenants", ts.tenantAdmin, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/acme", w.Header().Get("Location"))

	w = ts.do(t, http.MethodGet, "/admin/tenants", nil, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/login"))

	w = ts.do(t, http.MethodGet, "/admin/tenants", ts.globalAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]*tenant.Tenant](t, w), 4)
}

// =============================================================================
// DASHBOARDS AND RELAY
// =============================================================================

// TestPurpose: Validates the show-then-relay flow inside a tenant.
// Scope: Unit Test
// Security: Tokens are scoped to the issuing tenant's dashboards
// Expected: Linked dashboards issue a relay URL that serves the report; unlinked or inactive ones are refused.
// Test Case ID: HTTP-07
func TestShowDashboard_AndRelay(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/acme/power-bi/1", ts.analyst, nil)
	require.Equal(t, http.StatusOK, w.Code)
	embed := decode[EmbedResponse](t, w)
	assert.True(t, strings.HasPrefix(embed.ProxyURL, "/acme/power-bi/proxy/"))
	assert.False(t, embed.Fullscreen)
	assert.Contains(t, ts.audit.types(), audit.TypeEmbedTokenIssued)

	w = ts.do(t, http.MethodGet, embed.ProxyURL, ts.analyst, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<html>report</html>", w.Body.String())

	// A token issued in acme is useless from globex, even for a principal with both.
	token := strings.TrimPrefix(embed.ProxyURL, "/acme/power-bi/proxy/")
	w = ts.do(t, http.MethodGet, "/globex/power-bi/proxy/"+token, ts.consultant, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodGet, "/acme/power-bi/2", ts.analyst, nil).Code)
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodGet, "/acme/power-bi/3", ts.analyst, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/acme/power-bi/99", ts.analyst, nil).Code)

	w = ts.do(t, http.MethodGet, "/acme/power-bi/1/fullscreen", ts.analyst, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[EmbedResponse](t, w).Fullscreen)
}

func TestDirectDashboard(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/acme/power-bi/direct", ts.analyst, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), decode[EmbedResponse](t, w).Dashboard.ID)

	w = ts.do(t, http.MethodGet, "/initech/power-bi/direct", ts.globalAdmin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminPreview_AndRelay(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/admin/power-bi/2/preview", ts.globalAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	embed := decode[EmbedResponse](t, w)
	require.True(t, strings.HasPrefix(embed.ProxyURL, "/admin/power-bi/proxy/"))

	w = ts.do(t, http.MethodGet, embed.ProxyURL, ts.globalAdmin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Regular users cannot open admin-context tokens.
	w = ts.do(t, http.MethodGet, embed.ProxyURL, ts.analyst, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodGet, embed.ProxyURL, nil, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?intended-url="+url.QueryEscape(embed.ProxyURL), w.Header().Get("Location"))
}

// =============================================================================
// SYSTEM
// =============================================================================

func TestHealthCheck(t *testing.T) {
	ok := newTestServer(t, stubPinger{})
	assert.Equal(t, http.StatusOK, ok.do(t, http.MethodGet, "/health", nil, nil).Code)

	down := newTestServer(t, stubPinger{err: errors.New("connection refused")})
	w := down.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestSwaggerDoc(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/swagger/doc.json", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"swagger"`)
}

func TestSessionMiddleware_InvalidCookieIsAnonymous(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "embedgate_session", Value: "forged"})
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// =============================================================================
// CLIENT ADDRESS
// =============================================================================

// TestPurpose: Validates that forwarding headers are believed only from trusted proxies.
// Scope: Unit Test
// Security: Rate-limit evasion and access-log spoofing through X-Forwarded-For
// Expected: Untrusted peers are identified by their TCP address; behind a trusted proxy the nearest untrusted hop is the client.
// Test Case ID: HTTP-09
func TestResolveClientIP(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct client spoofing xff", "203.0.113.9:5000", "1.2.3.4", "", "203.0.113.9"},
		{"direct client spoofing x-real-ip", "203.0.113.9:5000", "", "1.2.3.4", "203.0.113.9"},
		{"trusted proxy", "10.0.0.2:5000", "198.51.100.7", "", "198.51.100.7"},
		{"trusted chain with forged prefix", "10.0.0.2:5000", "1.2.3.4, 198.51.100.7, 10.0.0.3", "", "198.51.100.7"},
		{"trusted proxy with x-real-ip", "10.0.0.2:5000", "", "198.51.100.8", "198.51.100.8"},
		{"trusted proxy with garbage", "10.0.0.2:5000", "not-an-ip", "", "10.0.0.2"},
		{"no port", "203.0.113.9", "", "", "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, resolveClientIP(r, trusted))
		})
	}
}

func TestLoginLimiter_IgnoresSpoofedForwarding(t *testing.T) {
	ts := newTestServer(t, nil)
	limiter := NewRateLimiter(0.001, 2)
	t.Cleanup(limiter.Stop)
	router := NewRouter(ts.handler, RouterConfig{LoginLimiter: limiter})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{}`))
		req.RemoteAddr = "203.0.113.9:5000"
		req.Header.Set("X-Forwarded-For", "198.51.100."+string(rune('1'+i)))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}
