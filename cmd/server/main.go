package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"platewatch/internal/audit"
	"platewatch/internal/consent/cache"
	"platewatch/internal/consent/engine"
	"platewatch/internal/consent/handler"
	"platewatch/internal/consent/metrics"
	"platewatch/internal/consent/store"
	"platewatch/internal/platform/config"
	"platewatch/internal/platform/database"
	"platewatch/internal/platform/health"
	"platewatch/internal/platform/logger"
	"platewatch/internal/platform/middleware"
	platformredis "platewatch/internal/platform/redis"
	"platewatch/internal/platform/secrets"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Decision logic lives in internal/consent.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log.Info("initializing platewatch consent service",
		"addr", cfg.Server.Addr,
		"strict_mode", cfg.Enforcement.StrictMode,
		"cache_ttl", cfg.Enforcement.CacheTTL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, secrets.NewEnvProvider(), database.DefaultConfig())
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer pool.Close() //nolint:errcheck // process is exiting

	consentStore := store.NewPostgres(pool.DB())
	auditor := audit.NewPublisher(audit.NewPostgres(pool.DB()),
		audit.WithAsyncBuffer(1024),
		audit.WithPublisherLogger(log),
	)
	defer auditor.Close()

	healthHandler := health.New()
	healthHandler.RegisterCheck("database", func() error {
		checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Health(checkCtx)
	})

	var verifyCache cache.Cache
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // process is exiting
		verifyCache = cache.NewRedis(redisClient.Client)
		healthHandler.RegisterCheck("redis", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(checkCtx)
		})
		go redisClient.WatchPoolStats(ctx, 15*time.Second)
	} else {
		log.Warn("REDIS_URL not set, verification cache is process-local")
		verifyCache = cache.NewInMemory()
	}

	m := metrics.New()
	eng, err := engine.New(consentStore, verifyCache, auditor, cfg.Enforcement, log,
		engine.WithMetrics(m))
	if err != nil {
		log.Error("failed to construct consent engine", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.ClientMetadata(nil))
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.OptionalAuth(middleware.NewHMACValidator(cfg.Server.JWTSigningKey), log))

	handler.New(eng, auditor, log).Register(router)
	healthHandler.Register(router)
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("starting http server", "addr", cfg.Server.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	log.Info("shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
