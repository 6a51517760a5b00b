package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aeo-scorer/backend/analyzer"
	"github.com/aeo-scorer/backend/api"
	"github.com/aeo-scorer/backend/citation"
	"github.com/aeo-scorer/backend/config"
	"github.com/aeo-scorer/backend/crawl"
	"github.com/aeo-scorer/backend/functions"
	"github.com/aeo-scorer/backend/logging"
	"github.com/aeo-scorer/backend/middleware"
	"github.com/aeo-scorer/backend/stats"
	"github.com/aeo-scorer/backend/store"
	"github.com/aeo-scorer/backend/usage"
)

func usageStore(cfg *config.Config, log *zap.Logger) usage.Store {
	if cfg.RedisURL == "" {
		log.Info("usage counters kept in memory")
		return usage.NewMemoryStore()
	}
	rdb, err := usage.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	return usage.NewRedisStore(rdb)
}

func collaborators(cfg *config.Config, log *zap.Logger) (crawl.Client, citation.Client) {
	invoker := functions.NewHTTPInvoker(cfg.FunctionsURL, cfg.FunctionsKey, 60*time.Second)

	var crawler crawl.Client = crawl.NewRemoteClient(invoker)
	if cfg.CrawlMode == "local" {
		crawler = crawl.NewCrawler(cfg.CrawlMaxPages, 15*time.Second, log.Named("crawl"))
	}

	var cites citation.Client = citation.NewRemoteClient(invoker)
	if cfg.CitationMode == "local" {
		checker := citation.NewChecker(log.Named("citation"), citation.BuildProviders(citation.ProviderConfig{
			OpenAIKey:     cfg.OpenAIKey,
			AnthropicKey:  cfg.AnthropicKey,
			PerplexityKey: cfg.PerplexityKey,
			LocalURL:      cfg.LocalLLMURL,
		})...)
		log.Info("local citation checker", zap.Any("providers", checker.Available()))
		cites = checker
	}

	log.Info("collaborators configured",
		zap.String("crawl_mode", cfg.CrawlMode),
		zap.String("citation_mode", cfg.CitationMode))
	return crawler, cites
}

func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Retry-After"},
	}
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	return cors.New(corsConfig)
}

// housekeeping prunes idle IP buckets, stale visitors and old ledger months
// until ctx ends.
func housekeeping(ctx context.Context, limiter *middleware.RateLimiter, traffic *logging.Statistics, ledger *stats.Storage) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			limiter.Prune()
			traffic.Prune()
			ledger.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}

func main() {
	if err := config.LoadEnv(); err != nil {
		zap.L().Warn("failed to load .env file", zap.Error(err))
	}
	cfg := config.Load()

	logger, err := logging.New(cfg.Env, os.Getenv("LOG_LEVEL"))
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("invalid LOG_LEVEL, using production logger", zap.Error(err))
	}
	defer logger.Sync()

	gin.SetMode(cfg.GinMode)
	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	plans, err := config.LoadPlans(cfg.PlansFile)
	if err != nil {
		logger.Fatal("failed to load plans", zap.Error(err))
	}

	dsn := cfg.DatabaseURL
	if dsn == "" && cfg.DatabaseDriver == "sqlite" {
		dsn = filepath.Join(cfg.DataDir, "aeo.db")
	}
	db, err := store.Open(context.Background(), cfg.DatabaseDriver, dsn)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	ledger, err := stats.NewStorage(cfg.DataDir, logger.Named("stats"))
	if err != nil {
		logger.Fatal("failed to initialize stats storage", zap.Error(err))
	}
	traffic, err := logging.NewStatistics(filepath.Join(cfg.DataDir, "statistics.json"), cfg.DevMode)
	if err != nil {
		logger.Warn("could not load existing statistics", zap.Error(err))
	}

	policy := usage.NewService(usageStore(cfg, logger))
	crawler, cites := collaborators(cfg, logger)
	aeo := analyzer.New(analyzer.Deps{
		Crawler:   crawler,
		Citations: cites,
		Policy:    policy,
		Plans:     plans,
		Stats:     ledger,
		Logger:    logger.Named("analyzer"),
	}, analyzer.WithDefaultModel(cfg.DefaultModel))

	limiter := middleware.NewRateLimiter(cfg.IPRate, cfg.IPBurst)
	auth := middleware.NewAuthenticator(cfg.JWTSecret)

	r := gin.New()
	r.Use(middleware.ErrorHandler(logger))
	r.Use(middleware.Logger(logger))
	r.Use(corsMiddleware(cfg))
	r.Use(limiter.RateLimit())
	r.Use(middleware.StatsMiddleware(traffic, logger, api.AnalysisPaths...))

	api.New(api.Deps{
		Analyzer: aeo,
		Store:    db,
		Policy:   policy,
		Plans:    plans,
		Traffic:  traffic,
		Logger:   logger.Named("api"),
	}).Register(r, auth.Auth())

	ctx, cancel := context.WithCancel(context.Background())
	go housekeeping(ctx, limiter, traffic, ledger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	if err := aeo.Shutdown(); err != nil {
		logger.Error("analyzer shutdown failed", zap.Error(err))
	}
	if err := traffic.Save(); err != nil {
		logger.Error("failed to save statistics", zap.Error(err))
	}
	logger.Info("server exited")
}
