package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/newsfeed/config"
	"github.com/d60-Lab/newsfeed/internal/app"
	"github.com/d60-Lab/newsfeed/pkg/cache"
	"github.com/d60-Lab/newsfeed/pkg/database"
	"github.com/d60-Lab/newsfeed/pkg/logger"
	"github.com/d60-Lab/newsfeed/pkg/tracing"
)

// @title Newsfeed API
// @version 1.0
// @description 推文发布、写扩散时间线与关系链服务
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Log); err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			logger.Fatal("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			// 缓存不可用时降级为直连数据库；redis 时间线后端则无法启动
			if cfg.Timeline.Backend == config.TimelineBackendRedis {
				logger.Fatal("redis required by timeline backend", zap.Error(err))
			}
			logger.Warn("redis unavailable, follower/profile cache disabled", zap.Error(err))
			rdb = nil
		}
	}

	a, err := app.New(cfg, db, rdb)
	if err != nil {
		logger.Fatal("build app failed", zap.Error(err))
	}

	var stopWorker func(context.Context) error
	if a.Worker != nil {
		stopWorker = a.Worker.Start()
		logger.Info("fanout worker started", zap.Int("workers", cfg.Fanout.Workers))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           a.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server listening",
			zap.String("addr", srv.Addr),
			zap.String("fanout_mode", cfg.Fanout.Mode),
			zap.String("timeline_backend", cfg.Timeline.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", zap.Error(err))
	}
	if stopWorker != nil {
		if err := stopWorker(shutdownCtx); err != nil {
			logger.Error("fanout worker shutdown", zap.Error(err))
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
