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
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opentrusty/embedgate/internal/audit"
	"github.com/opentrusty/embedgate/internal/dashboard"
	"github.com/opentrusty/embedgate/internal/observability/logger"
	"github.com/opentrusty/embedgate/internal/relay"
	"github.com/opentrusty/embedgate/internal/tenant"
)

// TenantHomeResponse is the landing payload of a tenant panel
type TenantHomeResponse struct {
	Tenant     *tenant.Tenant         `json:"tenant"`
	Dashboards []*dashboard.Dashboard `json:"dashboards"`
}

// EmbedResponse carries a dashboard and the relay URL to load it from
type EmbedResponse struct {
	Dashboard  *dashboard.Dashboard `json:"dashboard"`
	ProxyURL   string               `json:"proxy_url"`
	ExpiresAt  time.Time            `json:"expires_at"`
	Fullscreen bool                 `json:"fullscreen"`
}

// TenantHome lists the tenant's active dashboards
// @Summary Tenant Home
// @Tags Tenant
// @Produce json
// @Security CookieAuth
// @Param tenant path string true "Tenant slug"
// @Success 200 {object} TenantHomeResponse
// @Failure 403 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /{tenant} [get]
func (h *Handler) TenantHome(w http.ResponseWriter, r *http.Request) {
	h.listDashboards(w, r)
}

// TenantDashboards lists the tenant's active dashboards
// @Summary List Tenant Dashboards
// @Tags Tenant
// @Produce json
// @Security CookieAuth
// @Param tenant path string true "Tenant slug"
// @Success 200 {object} TenantHomeResponse
// @Router /{tenant}/power-bi [get]
func (h *Handler) TenantDashboards(w http.ResponseWriter, r *http.Request) {
	h.listDashboards(w, r)
}

func (h *Handler) listDashboards(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())

	list, err := h.dashboardService.ListForTenant(r.Context(), t.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list dashboards", logger.TenantID(t.ID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if list == nil {
		list = []*dashboard.Dashboard{}
	}

	respondJSON(w, http.StatusOK, TenantHomeResponse{Tenant: t, Dashboards: list})
}

// DirectDashboard opens the tenant's first active dashboard
// @Summary Direct Dashboard
// @Tags Tenant
// @Produce json
// @Security CookieAuth
// @Param tenant path string true "Tenant slug"
// @Success 200 {object} EmbedResponse
// @Failure 404 {object} map[string]string
// @Router /{tenant}/power-bi/direct [get]
func (h *Handler) DirectDashboard(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())

	d, err := h.dashboardService.FirstForTenant(r.Context(), t.ID)
	if err != nil {
		if errors.Is(err, dashboard.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no dashboards available")
			return
		}
		slog.ErrorContext(r.Context(), "failed to load direct dashboard", logger.TenantID(t.ID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondEmbed(w, r, d, t.HomePath()+"/power-bi/proxy/", false, false)
}

// ShowDashboard issues an embed token for one dashboard
// @Summary Show Dashboard
// @Tags Tenant
// @Produce json
// @Security CookieAuth
// @Param tenant path string true "Tenant slug"
// @Param dashboard path int true "Dashboard ID"
// @Success 200 {object} EmbedResponse
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /{tenant}/power-bi/{dashboard} [get]
func (h *Handler) ShowDashboard(w http.ResponseWriter, r *http.Request) {
	h.showDashboard(w, r, false)
}

// FullscreenDashboard is ShowDashboard for the fullscreen view
// @Summary Fullscreen Dashboard
// @Tags Tenant
// @Produce json
// @Security CookieAuth
// @Param tenant path string true "Tenant slug"
// @Param dashboard path int true "Dashboard ID"
// @Success 200 {object} EmbedResponse
// @Router /{tenant}/power-bi/{dashboard}/fullscreen [get]
func (h *Handler) FullscreenDashboard(w http.ResponseWriter, r *http.Request) {
	h.showDashboard(w, r, true)
}

func (h *Handler) showDashboard(w http.ResponseWriter, r *http.Request, fullscreen bool) {
	t := GetTenant(r.Context())

	dashboardID, ok := dashboardParam(w, r)
	if !ok {
		return
	}

	d, err := h.dashboardService.GetForTenant(r.Context(), dashboardID, t.ID)
	switch {
	case err == nil:
	case errors.Is(err, dashboard.ErrNotFound):
		respondError(w, http.StatusNotFound, "dashboard not found")
		return
	case errors.Is(err, dashboard.ErrNotLinked), errors.Is(err, dashboard.ErrInactive):
		slog.WarnContext(r.Context(), "dashboard not available in tenant",
			logger.DashboardID(dashboardID),
			logger.TenantID(t.ID),
			logger.Error(err),
		)
		respondError(w, http.StatusForbidden, "dashboard not available")
		return
	default:
		slog.ErrorContext(r.Context(), "failed to load dashboard", logger.DashboardID(dashboardID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondEmbed(w, r, d, t.HomePath()+"/power-bi/proxy/", false, fullscreen)
}

// TenantRelay serves the embedded report through the tenant relay
// @Summary Tenant Relay
// @Tags Tenant
// @Produce html
// @Security CookieAuth
// @Param tenant path string true "Tenant slug"
// @Param token path string true "Embed token"
// @Success 200
// @Failure 403
// @Failure 502
// @Router /{tenant}/power-bi/proxy/{token} [get]
func (h *Handler) TenantRelay(w http.ResponseWriter, r *http.Request) {
	h.serveRelay(w, r, GetTenant(r.Context()), false)
}

// AdminTenants lists every tenant visible to the global admin
// @Summary Admin Tenant List
// @Tags Admin
// @Produce json
// @Security CookieAuth
// @Success 200 {array} tenant.Tenant
// @Failure 302
// @Router /admin/tenants [get]
func (h *Handler) AdminTenants(w http.ResponseWriter, r *http.Request) {
	p := GetPrincipal(r.Context())

	accessible, err := h.resolver.AccessibleTenants(r.Context(), p)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list tenants", logger.UserID(p.ID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if accessible == nil {
		accessible = []*tenant.Tenant{}
	}
	respondJSON(w, http.StatusOK, accessible)
}

// AdminPreview issues an admin-context token for any dashboard
// @Summary Admin Dashboard Preview
// @Tags Admin
// @Produce json
// @Security CookieAuth
// @Param dashboard path int true "Dashboard ID"
// @Success 200 {object} EmbedResponse
// @Failure 404 {object} map[string]string
// @Router /admin/power-bi/{dashboard}/preview [get]
func (h *Handler) AdminPreview(w http.ResponseWriter, r *http.Request) {
	dashboardID, ok := dashboardParam(w, r)
	if !ok {
		return
	}

	d, err := h.dashboardService.Get(r.Context(), dashboardID)
	if err != nil {
		if errors.Is(err, dashboard.ErrNotFound) {
			respondError(w, http.StatusNotFound, "dashboard not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to load dashboard", logger.DashboardID(dashboardID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondEmbed(w, r, d, "/admin/power-bi/proxy/", true, false)
}

// AdminRelay serves the embedded report through the admin relay
// @Summary Admin Relay
// @Tags Admin
// @Produce html
// @Security CookieAuth
// @Param token path string true "Embed token"
// @Success 200
// @Failure 403
// @Router /admin/power-bi/proxy/{token} [get]
func (h *Handler) AdminRelay(w http.ResponseWriter, r *http.Request) {
	h.serveRelay(w, r, nil, true)
}

func (h *Handler) serveRelay(w http.ResponseWriter, r *http.Request, t *tenant.Tenant, admin bool) {
	h.relay.Serve(r.Context(), w, &relay.Request{
		Token:     chi.URLParam(r, "token"),
		Path:      chi.URLParam(r, "*"),
		RawQuery:  r.URL.RawQuery,
		Header:    r.Header,
		Principal: GetPrincipal(r.Context()),
		Tenant:    t,
		Admin:     admin,
		ClientIP:  clientIP(r),
	})
}

// respondEmbed issues a token for d and answers with its relay URL
func (h *Handler) respondEmbed(w http.ResponseWriter, r *http.Request, d *dashboard.Dashboard, proxyPrefix string, admin, fullscreen bool) {
	p := GetPrincipal(r.Context())

	token, err := h.tokens.Issue(d, p, admin)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue embed token",
			logger.DashboardID(d.ID),
			logger.UserID(p.ID),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.metrics.TokenIssued(r.Context(), admin)
	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeEmbedTokenIssued,
		TenantID:  tenantIDOf(GetTenant(r.Context())),
		ActorID:   p.ID,
		Resource:  "dashboard",
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Metadata: map[string]any{
			audit.AttrDashboardID:  d.ID,
			audit.AttrAdminContext: admin,
		},
	})

	respondJSON(w, http.StatusOK, EmbedResponse{
		Dashboard:  d,
		ProxyURL:   proxyPrefix + token,
		ExpiresAt:  time.Now().Add(h.tokens.TTL(admin)).UTC().Truncate(time.Second),
		Fullscreen: fullscreen,
	})
}

func dashboardParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	dashboardID, err := strconv.ParseInt(chi.URLParam(r, "dashboard"), 10, 64)
	if err != nil || dashboardID <= 0 {
		respondError(w, http.StatusNotFound, "dashboard not found")
		return 0, false
	}
	return dashboardID, true
}

func tenantIDOf(t *tenant.Tenant) string {
	if t == nil {
		return ""
	}
	return t.ID
}
