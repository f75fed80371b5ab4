package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classplay/novodash/internal/config"
	"github.com/classplay/novodash/internal/database"
	"github.com/classplay/novodash/internal/ga4"
	"github.com/classplay/novodash/internal/httpserver"
	"github.com/classplay/novodash/internal/metrics"
	"github.com/classplay/novodash/internal/middleware"
	"github.com/classplay/novodash/internal/rdstation"
	"github.com/classplay/novodash/internal/slack"
	"github.com/classplay/novodash/internal/youtube"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg)
	defer logger.Sync()

	logger.Info("starting novodash",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
	)

	ctx := context.Background()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics("novodash")
	}

	// Open the embedded warehouse
	db, err := database.NewSQLiteDB(ctx, cfg.Warehouse.Path, logger)
	if err != nil {
		logger.Fatal("failed to open warehouse", zap.Error(err))
	}
	defer db.Close()

	// Redis is an optional report cache
	var redis *database.RedisDB
	if cfg.Redis.Enabled {
		redis, err = database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis not available, report caching disabled", zap.Error(err))
			redis = nil
		} else {
			defer redis.Close()
		}
	}

	// Source clients; a missing credential leaves the client nil and
	// the matching refresh endpoints report 503 instead of failing at
	// startup.
	deps := &httpserver.Dependencies{
		DB:      db,
		Redis:   redis,
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
	}

	if ga4Client, err := ga4.New(ctx, cfg.GA4, cfg.Fetch, cfg.Warehouse.CacheDir, logger, m); err != nil {
		logger.Warn("GA4 client not configured", zap.Error(err))
	} else {
		deps.GA4 = ga4Client
	}

	if ytClient, err := youtube.New(ctx, cfg.YouTube, cfg.Fetch, logger, m); err != nil {
		logger.Warn("YouTube client not configured", zap.Error(err))
	} else {
		deps.YouTube = ytClient
	}

	if crmClient, err := rdstation.New(cfg.RDStation, cfg.Fetch, logger, m); err != nil {
		logger.Warn("RD Station client not configured", zap.Error(err))
	} else {
		deps.CRM = crmClient
	}

	if slackClient, err := slack.New(cfg.Slack, logger); err != nil {
		logger.Warn("Slack client not configured", zap.Error(err))
	} else {
		deps.Slack = slackClient
	}

	handler := httpserver.NewServer(deps)

	// Middleware chain: recovery outermost, then request logging, rate
	// limiting and auth.
	handler = middleware.NewAuthMiddleware(cfg.Auth, logger).Handler(handler)
	handler = middleware.NewRateLimitMiddleware(cfg.RateLimit, logger, m).Handler(handler)
	handler = middleware.NewLoggingMiddleware(logger, m).Handler(handler)
	handler = middleware.NewRecoveryMiddleware(logger).Handler(handler)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // refresh runs fan out to slow external APIs
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func setupLogger(cfg *config.Config) *zap.Logger {
	var zapCfg zap.Config

	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	switch cfg.Log.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}

	return logger
}
