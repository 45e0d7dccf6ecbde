// @title embedgate API
// @version 1.0.0
// @description Tenant-isolated access to embedded reports
// @termsOfService http://swagger.io/terms/

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name embedgate_session

package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/swaggo/swag"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	_ "github.com/opentrusty/embedgate/docs"
	"github.com/opentrusty/embedgate/internal/audit"
	"github.com/opentrusty/embedgate/internal/authz"
	"github.com/opentrusty/embedgate/internal/dashboard"
	"github.com/opentrusty/embedgate/internal/embedtoken"
	"github.com/opentrusty/embedgate/internal/identity"
	"github.com/opentrusty/embedgate/internal/observability/logger"
	"github.com/opentrusty/embedgate/internal/observability/metrics"
	"github.com/opentrusty/embedgate/internal/relay"
	"github.com/opentrusty/embedgate/internal/session"
	"github.com/opentrusty/embedgate/internal/tenant"
)

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService  *identity.Service
	tenantService    *tenant.Service
	dashboardService *dashboard.Service
	resolver         *authz.Resolver
	tokens           *embedtoken.Service
	relay            *relay.Relay
	sessions         *session.Manager
	auditLogger      audit.Logger
	metrics          *metrics.Instruments
	health           HealthChecker
	sessionConfig    SessionConfig
	validate         *validator.Validate
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite http.SameSite
}

// Dependencies are the services a Handler is built from.
// Metrics and Health may be nil.
type Dependencies struct {
	Identity   *identity.Service
	Tenants    *tenant.Service
	Dashboards *dashboard.Service
	Tokens     *embedtoken.Service
	Relay      *relay.Relay
	Sessions   *session.Manager
	Audit      audit.Logger
	Metrics    *metrics.Instruments
	Health     HealthChecker
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies, sessionConfig SessionConfig) *Handler {
	return &Handler{
		identityService:  deps.Identity,
		tenantService:    deps.Tenants,
		dashboardService: deps.Dashboards,
		resolver:         authz.NewResolver(deps.Tenants),
		tokens:           deps.Tokens,
		relay:            deps.Relay,
		sessions:         deps.Sessions,
		auditLogger:      deps.Audit,
		metrics:          deps.Metrics,
		health:           deps.Health,
		sessionConfig:    sessionConfig,
		validate:         validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ParseSameSite maps a config value to http.SameSite, defaulting to Lax.
func ParseSameSite(v string) http.SameSite {
	switch v {
	case "Strict", "strict":
		return http.SameSiteStrictMode
	case "None", "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// RouterConfig holds router-level limits
type RouterConfig struct {
	RequestTimeout time.Duration
	RateLimiter    *RateLimiter
	LoginLimiter   *RateLimiter
	// TrustedProxies may set the client address through forwarding headers
	TrustedProxies []netip.Prefix
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(ClientIPMiddleware(cfg.TrustedProxies))
	if cfg.RateLimiter != nil {
		r.Use(RateLimitMiddleware(cfg.RateLimiter))
	}
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + routePattern(r)
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(h.SessionMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/swagger/doc.json", h.SwaggerDoc)

	// Authentication
	login := r.With()
	if cfg.LoginLimiter != nil {
		login = r.With(RateLimitMiddleware(cfg.LoginLimiter))
	}
	login.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.With(h.RequireAuth).Get("/me", h.Me)

	// Admin panel (global admins only)
	r.Route("/admin", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.RequireAdminPanel)
			r.Get("/tenants", h.AdminTenants)
			r.Get("/power-bi/{dashboard}/preview", h.AdminPreview)
		})

		// Tenant admins may preview too, so the relay sits outside the panel guard.
		r.Group(func(r chi.Router) {
			r.Use(h.RequireLogin)
			r.Get("/power-bi/proxy/{token}", h.AdminRelay)
			r.Get("/power-bi/proxy/{token}/*", h.AdminRelay)
		})
	})

	// Tenant panel
	r.Route("/{tenant}", func(r chi.Router) {
		r.Use(h.TenantGate)
		r.Get("/", h.TenantHome)
		r.Get("/power-bi", h.TenantDashboards)
		r.Get("/power-bi/direct", h.DirectDashboard)
		r.Get("/power-bi/proxy/{token}", h.TenantRelay)
		r.Get("/power-bi/proxy/{token}/*", h.TenantRelay)
		r.Get("/power-bi/{dashboard}", h.ShowDashboard)
		r.Get("/power-bi/{dashboard}/fullscreen", h.FullscreenDashboard)
	})

	return r
}

// routePattern returns the matched chi pattern so logs and spans never carry tokens
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "request"
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			slog.ErrorContext(r.Context(), "health check failed", logger.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "embedgate",
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "embedgate",
	})
}

// SwaggerDoc serves the OpenAPI document
func (h *Handler) SwaggerDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		respondError(w, http.StatusNotFound, "api documentation unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(doc))
}

// Helper functions
func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    token,
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: h.sessionConfig.CookieHTTPOnly,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   int(h.sessions.Lifetime().Seconds()),
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   h.sessionConfig.CookieName,
		Value:  "",
		Path:   h.sessionConfig.CookiePath,
		Domain: h.sessionConfig.CookieDomain,
		MaxAge: -1,
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionConfig.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
