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
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opentrusty/embedgate/internal/audit"
	"github.com/opentrusty/embedgate/internal/authz"
	"github.com/opentrusty/embedgate/internal/gate"
	"github.com/opentrusty/embedgate/internal/observability/logger"
	"github.com/opentrusty/embedgate/internal/session"
	"github.com/opentrusty/embedgate/internal/tenant"
)

// Tenant Boundary Principles:
// 1. The route tenant comes only from the URL slug, never from headers
// 2. Every tenant-scoped handler runs behind TenantGate
// 3. A denial never reveals any tenant other than the requested one and the
//    principal's own primary tenant

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Embed tokens live in the path; log the route pattern once matched.
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(routePattern(r)),
					logger.RemoteAddr(clientIP(r)),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// SessionMiddleware resolves the session cookie into a principal.
// Requests without a valid session continue anonymously.
func (h *Handler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.getSessionFromCookie(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := h.sessions.Parse(r.Context(), token)
		if err != nil {
			if errors.Is(err, session.ErrSessionInvalid) || errors.Is(err, session.ErrSessionExpired) {
				h.clearSessionCookie(w)
			} else {
				// Store trouble: keep the cookie so the user is not signed out by an outage.
				slog.ErrorContext(r.Context(), "session lookup failed", logger.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}

		// Reloaded every request so role and grant changes apply immediately.
		p, err := h.identityService.GetPrincipal(r.Context(), sess.UserID)
		if err != nil {
			slog.InfoContext(r.Context(), "session principal unavailable",
				logger.UserID(sess.UserID),
				logger.Error(err),
			)
			h.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		ctx := withSession(withPrincipal(r.Context(), p), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects anonymous requests with 401
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetPrincipal(r.Context()) == nil {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireLogin sends anonymous browser requests to the sign-in page
func (h *Handler) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetPrincipal(r.Context()) == nil {
			redirectToLogin(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TenantGate resolves {tenant} and admits only principals that can access it.
func (h *Handler) TenantGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p := GetPrincipal(ctx)

		// Reserved words are never tenants; answering 404 first keeps
		// GET /login and friends out of the login redirect loop.
		slug := chi.URLParam(r, "tenant")
		if !tenant.ValidSlug(slug) {
			respondError(w, http.StatusNotFound, "not found")
			return
		}

		if p == nil {
			h.metrics.GateDecision(ctx, gate.Unauthenticated.String())
			redirectToLogin(w, r)
			return
		}

		t, err := h.tenantService.GetBySlug(ctx, slug)
		if err != nil {
			if !errors.Is(err, tenant.ErrTenantNotFound) {
				slog.ErrorContext(ctx, "failed to resolve tenant",
					logger.TenantSlug(slug),
					logger.Error(err),
				)
				respondError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		if !t.Active {
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}

		decision := gate.Evaluate(p, t)
		h.metrics.GateDecision(ctx, decision.Outcome.String())

		if decision.Outcome != gate.Authorized {
			slog.WarnContext(ctx, "tenant access denied",
				logger.UserID(p.ID),
				logger.TenantID(t.ID),
				logger.Outcome(decision.Outcome.String()),
			)
			h.auditLogger.Log(ctx, audit.Event{
				Type:      audit.TypeTenantAccessDenied,
				TenantID:  t.ID,
				ActorID:   p.ID,
				Resource:  "tenant",
				IPAddress: clientIP(r),
				UserAgent: r.UserAgent(),
				Metadata: map[string]any{
					audit.AttrRequestedTenantID: decision.Denial.RequestedTenantID,
					audit.AttrPrimaryTenantID:   decision.Denial.PrimaryTenantID,
				},
			})
			respondJSON(w, http.StatusForbidden, map[string]any{
				"error":  "tenant access denied",
				"detail": decision.Denial,
			})
			return
		}

		next.ServeHTTP(w, r.WithContext(withTenant(ctx, t)))
	})
}

// RequireAdminPanel admits global admins; everyone else is sent home.
func (h *Handler) RequireAdminPanel(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := GetPrincipal(r.Context())
		if p == nil {
			redirectToLogin(w, r)
			return
		}
		if !authz.CanUseAdminPanel(p) {
			http.Redirect(w, r, h.homePath(r, p), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := "/login?intended-url=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusFound)
}
