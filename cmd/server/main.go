package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"lawdesk/internal/api"
	"lawdesk/internal/api/handlers"
	"lawdesk/internal/api/middleware"
	"lawdesk/internal/app"
	"lawdesk/internal/engine/comparison"
	"lawdesk/internal/pkg/logger"
	"lawdesk/internal/platform/auth"
	"lawdesk/internal/platform/config"
	"lawdesk/internal/platform/database"
	"lawdesk/internal/platform/llm"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(cfg.Logging, "server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start services")
	}
	defer a.Close()

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	comparisons := comparison.NewService(a.Gate, llm.NewClient(cfg.LLM), a.Store, time.Now)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)
	go rateLimiter.Run(ctx)

	cookie := cfg.JWT.CookieName

	// Router
	deps := &api.Dependencies{
		AuthHandler:         handlers.NewAuthHandler(a.Users, a.Orgs, a.Registry, tokenSvc, a.Mail, cfg.JWT, cfg.Subscriptions),
		OrgHandler:          handlers.NewOrgHandler(),
		DataHandler:         handlers.NewDataHandler(a.Store, cookie),
		DocumentHandler:     handlers.NewDocumentHandler(a.Documents, a.Audit, cfg.Storage.MaxUploadBytes, cookie),
		SubscriptionHandler: handlers.NewSubscriptionHandler(a.Registry, a.Meter, a.Audit),
		FeatureHandler:      handlers.NewFeatureHandler(a.Gate),
		ComparisonHandler:   handlers.NewComparisonHandler(comparisons, a.Audit, cookie),
		AuditHandler:        handlers.NewAuditHandler(a.AuditRepo),
		HealthHandler:       handlers.NewHealthHandler(database.NewGlobalDBWrapper(a.DB), cfg.Storage.RootDir),
		MetricsHandler:      handlers.NewMetricsHandler(),
		AuthMiddleware:      middleware.NewAuthMiddleware(tokenSvc, cookie),
		TenantMiddleware:    middleware.NewTenantMiddleware(a.Orgs, a.Registry, cookie),
		RateLimiter:         rateLimiter,
		Gate:                a.Gate,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
