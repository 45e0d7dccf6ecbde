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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opentrusty/embedgate/internal/accesslog"
	"github.com/opentrusty/embedgate/internal/audit"
	"github.com/opentrusty/embedgate/internal/config"
	"github.com/opentrusty/embedgate/internal/dashboard"
	"github.com/opentrusty/embedgate/internal/embedtoken"
	"github.com/opentrusty/embedgate/internal/identity"
	"github.com/opentrusty/embedgate/internal/observability/logger"
	"github.com/opentrusty/embedgate/internal/observability/metrics"
	"github.com/opentrusty/embedgate/internal/observability/tracing"
	"github.com/opentrusty/embedgate/internal/relay"
	"github.com/opentrusty/embedgate/internal/session"
	"github.com/opentrusty/embedgate/internal/store/postgres"
	"github.com/opentrusty/embedgate/internal/tenant"
	transportHTTP "github.com/opentrusty/embedgate/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting embedgate")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
		Endpoint:       cfg.Observability.OTELEndpoint,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	} else {
		defer tracer.Shutdown(context.Background())
	}

	// Initialize meter
	instruments := metrics.NoopInstruments()
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	} else if in, err := metrics.NewInstruments(meter); err != nil {
		slog.Error("failed to register instruments", logger.Error(err))
	} else {
		instruments = in
	}

	// Initialize database
	db, err := openDB(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Initialize repositories
	principalRepo := postgres.NewPrincipalRepository(db)
	tenantRepo := postgres.NewTenantRepository(db)
	dashboardRepo := postgres.NewDashboardRepository(db)
	accessLogRepo := postgres.NewAccessLogRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)

	// Initialize helpers
	auditLogger := audit.NewSlogLogger()
	passwordHasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)

	// Initialize services
	identityService := identity.NewService(
		principalRepo,
		passwordHasher,
		auditLogger,
		cfg.Security.LockoutMaxAttempts,
		cfg.Security.LockoutDuration,
	)
	tenantService := tenant.NewService(tenantRepo, tenant.CacheConfig{
		Capacity: cfg.Cache.TenantCapacity,
		Shards:   cfg.Cache.TenantShards,
		TTL:      cfg.Cache.TenantTTL,
	})
	dashboardService := dashboard.NewService(dashboardRepo)

	sessionManager, err := session.NewManager([]byte(cfg.Session.Secret), cfg.Session.Lifetime, sessionRepo)
	if err != nil {
		slog.Error("failed to initialize sessions", logger.Error(err))
		os.Exit(1)
	}
	tokenService, err := embedtoken.NewService(embedtoken.Config{
		Secret:    []byte(cfg.Embed.TokenSecret),
		TenantTTL: cfg.Embed.TenantTokenTTL,
		AdminTTL:  cfg.Embed.AdminTokenTTL,
	})
	if err != nil {
		slog.Error("failed to initialize embed tokens", logger.Error(err))
		os.Exit(1)
	}

	accessRecorder := accesslog.NewRecorder(accessLogRepo, accesslog.Config{WriteTimeout: cfg.Embed.AccessLogTimeout})
	embedRelay := relay.New(
		relay.Config{Timeout: cfg.Embed.UpstreamTimeout},
		tokenService,
		dashboardService,
		accessRecorder,
		auditLogger,
		instruments,
	)

	// Run Bootstrap (ENV driven)
	bootstrapService := identity.NewBootstrapService(identityService, auditLogger)
	if err := bootstrapService.Bootstrap(ctx, identity.BootstrapConfig{
		Email:    cfg.Bootstrap.AdminEmail,
		Password: cfg.Bootstrap.AdminPassword,
		Name:     cfg.Bootstrap.AdminName,
	}); err != nil {
		slog.Error("bootstrap failed", logger.Error(err))
	}

	// Rate Limiters
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()
	loginLimiter := transportHTTP.NewLoginRateLimiter(cfg.RateLimit.LoginPerMinute)
	defer loginLimiter.Stop()

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(transportHTTP.Dependencies{
		Identity:   identityService,
		Tenants:    tenantService,
		Dashboards: dashboardService,
		Tokens:     tokenService,
		Relay:      embedRelay,
		Sessions:   sessionManager,
		Audit:      auditLogger,
		Metrics:    instruments,
		Health:     db,
	}, transportHTTP.SessionConfig{
		CookieName:     cfg.Session.CookieName,
		CookieDomain:   cfg.Session.CookieDomain,
		CookiePath:     cfg.Session.CookiePath,
		CookieSecure:   cfg.Session.CookieSecure,
		CookieHTTPOnly: cfg.Session.CookieHTTPOnly,
		CookieSameSite: transportHTTP.ParseSameSite(cfg.Session.CookieSameSite),
	})

	trustedProxies, err := cfg.Server.TrustedProxyPrefixes()
	if err != nil {
		slog.Error("invalid trusted proxies", logger.Error(err))
		os.Exit(1)
	}

	// Create router
	router := transportHTTP.NewRouter(handler, transportHTTP.RouterConfig{
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimiter:    rateLimiter,
		LoginLimiter:   loginLimiter,
		TrustedProxies: trustedProxies,
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"), logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		slog.Error("server error", logger.Error(err))
	}

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}
	// Let queued access-log writes land before the pool closes.
	accessRecorder.Wait()

	slog.Info("server stopped")
}

func openDB(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	return postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying initial schema...")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}
