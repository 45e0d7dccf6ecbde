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

//go:build integration
// +build integration

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentrusty/embedgate/internal/accesslog"
	"github.com/opentrusty/embedgate/internal/audit"
	"github.com/opentrusty/embedgate/internal/dashboard"
	"github.com/opentrusty/embedgate/internal/embedtoken"
	"github.com/opentrusty/embedgate/internal/id"
	"github.com/opentrusty/embedgate/internal/identity"
	"github.com/opentrusty/embedgate/internal/relay"
	"github.com/opentrusty/embedgate/internal/session"
	"github.com/opentrusty/embedgate/internal/store/postgres"
	"github.com/opentrusty/embedgate/internal/tenant"
)

// TestPurpose: Validates tenant isolation end to end against PostgreSQL.
// Scope: Integration Test
// Security: Multi-tenant data separation (CWE-284) across login, gate, token and relay
// Expected: A user logs in, is refused a foreign tenant, opens its own report through the relay, and the access is logged.
// Test Case ID: SYS-01
func TestSystem_TenantIsolationEndToEnd(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping integration test: TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	db, err := postgres.Open(ctx, dbURL)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to database: %v", err)
	}
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx, postgres.InitialSchema))

	report := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>quarterly</html>"))
	}))
	t.Cleanup(report.Close)

	auditLogger := audit.NewSlogLogger()
	tenants := tenant.NewService(postgres.NewTenantRepository(db), tenant.CacheConfig{})
	dashboards := dashboard.NewService(postgres.NewDashboardRepository(db))
	identities := identity.NewService(postgres.NewPrincipalRepository(db),
		identity.NewPasswordHasher(8*1024, 1, 1, 16, 32), auditLogger, 5, time.Minute)

	suffix := strings.ToLower(id.NewUUIDv7()[:8])
	home, err := tenants.CreateTenant(ctx, "Home", "home-"+suffix)
	require.NoError(t, err)
	foreign, err := tenants.CreateTenant(ctx, "Foreign", "foreign-"+suffix)
	require.NoError(t, err)

	user, err := identities.CreatePrincipal(ctx, identity.CreateRequest{
		Email: "sys-" + suffix + "@example.com", Name: "Sys", Password: testPassword,
		Role: identity.RoleRegularUser, PrimaryTenantID: &home.ID,
	})
	require.NoError(t, err)

	d := &dashboard.Dashboard{Title: "Quarterly", EmbedURL: report.URL + "/reportEmbed", Active: true, TenantIDs: []string{home.ID}}
	require.NoError(t, dashboards.Create(ctx, d))

	t.Cleanup(func() {
		_, _ = db.Pool().Exec(ctx, "DELETE FROM power_bi_dashboards WHERE id = $1", d.ID)
		_, _ = db.Pool().Exec(ctx, "DELETE FROM users WHERE id = $1", user.ID)
		_, _ = db.Pool().Exec(ctx, "DELETE FROM tenants WHERE id = ANY($1)", []string{home.ID, foreign.ID})
	})

	sessions, err := session.NewManager([]byte(strings.Repeat("s", 32)), time.Hour, postgres.NewSessionRepository(db))
	require.NoError(t, err)
	tokens, err := embedtoken.NewService(embedtoken.Config{Secret: []byte(strings.Repeat("e", 32))})
	require.NoError(t, err)

	recorder := accesslog.NewRecorder(postgres.NewAccessLogRepository(db), accesslog.Config{})
	rl := relay.New(relay.Config{Timeout: 5 * time.Second, Transport: report.Client().Transport},
		tokens, dashboards, recorder, auditLogger, nil)

	h := NewHandler(Dependencies{
		Identity: identities, Tenants: tenants, Dashboards: dashboards,
		Tokens: tokens, Relay: rl, Sessions: sessions, Audit: auditLogger, Health: db,
	}, SessionConfig{CookieName: "embedgate_session", CookiePath: "/", CookieHTTPOnly: true, CookieSameSite: http.SameSiteLaxMode})
	srv := httptest.NewServer(NewRouter(h, RouterConfig{}))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar, CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	get := func(path string) (*http.Response, []byte) {
		resp, err := client.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, body
	}

	// Anonymous
	resp, _ := get("/" + home.Slug)
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	// Login
	creds, _ := json.Marshal(LoginRequest{Email: user.Email, Password: testPassword})
	loginResp, err := client.Post(srv.URL+"/login", "application/json", bytes.NewReader(creds))
	require.NoError(t, err)
	var login LoginResponse
	require.NoError(t, json.NewDecoder(loginResp.Body).Decode(&login))
	loginResp.Body.Close()
	require.Equal(t, http.StatusOK, loginResp.StatusCode)
	assert.Equal(t, home.HomePath(), login.Redirect)

	// Foreign tenant
	resp, body := get("/" + foreign.Slug + "/power-bi")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.NotContains(t, string(body), "Quarterly")

	// Own report through the relay
	resp, body = get(fmt.Sprintf("/%s/power-bi/%d", home.Slug, d.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var embed EmbedResponse
	require.NoError(t, json.Unmarshal(body, &embed))
	assert.NotContains(t, string(body), report.URL)

	resp, body = get(embed.ProxyURL)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>quarterly</html>", string(body))

	recorder.Wait()
	var logged int
	require.NoError(t, db.Pool().QueryRow(ctx,
		"SELECT COUNT(*) FROM power_bi_dashboard_access_logs WHERE dashboard_id = $1 AND user_id = $2 AND NOT is_admin_access",
		d.ID, user.ID).Scan(&logged))
	assert.Equal(t, 1, logged)

	// Logout revokes the stored session, so a replayed cookie is anonymous
	stale := jar.Cookies(mustParseURL(t, srv.URL))
	logoutResp, err := client.Post(srv.URL+"/logout", "application/json", nil)
	require.NoError(t, err)
	logoutResp.Body.Close()
	require.Equal(t, http.StatusOK, logoutResp.StatusCode)

	jar.SetCookies(mustParseURL(t, srv.URL), stale)
	resp, _ = get("/" + home.Slug + "/power-bi")
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	var remaining int
	require.NoError(t, db.Pool().QueryRow(ctx, "SELECT COUNT(*) FROM sessions WHERE user_id = $1", user.ID).Scan(&remaining))
	assert.Zero(t, remaining)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
