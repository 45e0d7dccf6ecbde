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
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/opentrusty/embedgate/internal/audit"
	"github.com/opentrusty/embedgate/internal/authz"
	"github.com/opentrusty/embedgate/internal/gate"
	"github.com/opentrusty/embedgate/internal/identity"
	"github.com/opentrusty/embedgate/internal/observability/logger"
	"github.com/opentrusty/embedgate/internal/session"
	"github.com/opentrusty/embedgate/internal/tenant"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=128"`
}

// LoginResponse tells the client where to go next
type LoginResponse struct {
	Redirect string            `json:"redirect"`
	User     PrincipalResponse `json:"user"`
}

// PrincipalResponse is the public view of a principal
type PrincipalResponse struct {
	ID              string   `json:"id"`
	Email           string   `json:"email"`
	Name            string   `json:"name"`
	Role            string   `json:"role"`
	PrimaryTenantID *string  `json:"primary_tenant_id,omitempty"`
	Grants          []string `json:"additional_tenant_ids,omitempty"`
}

// MeResponse is the principal plus the tenants it can enter
type MeResponse struct {
	User    PrincipalResponse `json:"user"`
	Tenants []*tenant.Tenant  `json:"tenants"`
	Home    string            `json:"home"`
}

func toPrincipalResponse(p *identity.Principal) PrincipalResponse {
	return PrincipalResponse{
		ID:              p.ID,
		Email:           p.Email,
		Name:            p.Name,
		Role:            p.Role.String(),
		PrimaryTenantID: p.PrimaryTenantID,
		Grants:          p.AdditionalTenantIDs,
	}
}

// Login handles user login
// @Summary User Login
// @Description Authenticates a user and sets a session cookie
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login Credentials"
// @Param intended-url query string false "Local path to return to after login"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Router /login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.StructCtx(r.Context(), req); err != nil {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	p, err := h.identityService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		// One message for every failure so accounts cannot be enumerated.
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, _, err := h.sessions.Issue(r.Context(), p.ID, session.Client{IPAddress: clientIP(r), UserAgent: r.UserAgent()})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue session", logger.UserID(p.ID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.setSessionCookie(w, token)

	redirect, ok := safeLocalPath(r.URL.Query().Get("intended-url"))
	if !ok {
		redirect = h.homePath(r, p)
	}

	respondJSON(w, http.StatusOK, LoginResponse{
		Redirect: redirect,
		User:     toPrincipalResponse(p),
	})
}

// Logout handles user logout
// @Summary User Logout
// @Description Revokes the session and clears the session cookie
// @Tags Auth
// @Produce json
// @Param scope query string false "set to all to end every session of the user"
// @Success 200 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := GetPrincipal(ctx)
	sess := GetSession(ctx)
	everywhere := r.URL.Query().Get("scope") == "all"

	var err error
	switch {
	case p != nil && everywhere:
		err = h.sessions.RevokeAll(ctx, p.ID)
	case sess != nil:
		err = h.sessions.Revoke(ctx, sess.ID)
	}
	h.clearSessionCookie(w)
	if err != nil {
		slog.ErrorContext(ctx, "failed to revoke session", logger.UserID(GetUserID(ctx)), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if p != nil {
		h.auditLogger.Log(ctx, audit.Event{
			Type:      audit.TypeLogout,
			TenantID:  p.PrimaryTenant(),
			ActorID:   p.ID,
			Resource:  "session",
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
			Metadata:  map[string]any{audit.AttrAllSessions: everywhere},
		})
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me returns the current principal and its accessible tenants
// @Summary Current Principal
// @Tags Auth
// @Produce json
// @Security CookieAuth
// @Success 200 {object} MeResponse
// @Failure 401 {object} map[string]string
// @Router /me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p := GetPrincipal(r.Context())

	accessible, err := h.resolver.AccessibleTenants(r.Context(), p)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to resolve accessible tenants", logger.UserID(p.ID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if accessible == nil {
		accessible = []*tenant.Tenant{}
	}

	respondJSON(w, http.StatusOK, MeResponse{
		User:    toPrincipalResponse(p),
		Tenants: accessible,
		Home:    homeFromAccessible(p, accessible),
	})
}

// homePath is where p lands by default: the admin panel for global admins,
// otherwise its home tenant.
func (h *Handler) homePath(r *http.Request, p *identity.Principal) string {
	if authz.CanUseAdminPanel(p) {
		return "/admin/tenants"
	}
	accessible, err := h.resolver.AccessibleTenants(r.Context(), p)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to resolve home tenant", logger.UserID(p.ID), logger.Error(err))
		return "/me"
	}
	return homeFromAccessible(p, accessible)
}

func homeFromAccessible(p *identity.Principal, accessible []*tenant.Tenant) string {
	if authz.CanUseAdminPanel(p) {
		return "/admin/tenants"
	}
	if home := gate.HomeFor(p, accessible); home != nil {
		return home.HomePath()
	}
	return "/me"
}

// safeLocalPath accepts only same-origin absolute paths
func safeLocalPath(raw string) (string, bool) {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "", false
	}
	return u.RequestURI(), true
}
