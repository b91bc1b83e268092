package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/franciscofreire-cloud/lista-compras/internal/config"
	"github.com/franciscofreire-cloud/lista-compras/internal/domain"
	"github.com/franciscofreire-cloud/lista-compras/internal/handler"
	"github.com/franciscofreire-cloud/lista-compras/internal/infra/cache"
	"github.com/franciscofreire-cloud/lista-compras/internal/infra/observability"
	"github.com/franciscofreire-cloud/lista-compras/internal/infra/resilience"
	"github.com/franciscofreire-cloud/lista-compras/internal/infra/supabase"
	"github.com/franciscofreire-cloud/lista-compras/internal/port"
	"github.com/franciscofreire-cloud/lista-compras/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" || cfg.SupabaseJWTSecret == "" {
		logger.Fatal("SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY and SUPABASE_JWT_SECRET are required")
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "lista-compras")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	var snapshotCache port.Cache[*domain.ListSnapshot]
	if cfg.CacheBackend == "redis" {
		redisCache, err := cache.NewRedis[*domain.ListSnapshot](cfg.RedisURL, "lista:snapshot", cfg.CacheTTL, logger)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisCache.Close()
		snapshotCache = redisCache
		logger.Info("using redis snapshot cache", zap.String("redis_url", cfg.RedisURL))
	} else {
		snapshotCache = cache.New[*domain.ListSnapshot](cfg.CacheTTL)
	}

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("supabase")

	// --- Supabase client ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	supabaseClient := supabase.NewClient(
		httpClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		cb,
		resilienceCfg,
		logger,
	)

	// --- Services ---
	syncer := service.NewItemSyncer(supabaseClient, resilienceCfg, cfg.HTTPTimeout, metrics, logger)
	defer syncer.Close()

	listSvc := service.NewListService(supabaseClient, snapshotCache, syncer, metrics, logger)
	profileSvc := service.NewProfileService(supabaseClient, logger)
	authSvc := service.NewAuthService(supabaseClient, supabaseClient, listSvc, cfg.SupabaseJWTSecret, logger)

	// --- Router ---
	router := handler.NewRouter(listSvc, profileSvc, authSvc, metrics, cfg.CORSAllowedOrigins, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
