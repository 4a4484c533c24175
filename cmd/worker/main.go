// Package main runs the background bulk registration worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/upeu-eventos/gateway/config"
	"github.com/upeu-eventos/gateway/internal/auth"
	"github.com/upeu-eventos/gateway/internal/bulk"
	"github.com/upeu-eventos/gateway/internal/events"
	"github.com/upeu-eventos/gateway/internal/realtime"
	"github.com/upeu-eventos/gateway/internal/upstream"
	"github.com/upeu-eventos/gateway/internal/validation"
	"github.com/upeu-eventos/gateway/internal/worker"
	"github.com/upeu-eventos/gateway/pkg/database"
	"github.com/upeu-eventos/gateway/pkg/queue"
	"github.com/upeu-eventos/gateway/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	api := upstream.NewClient(cfg.Upstream.APIURL, cfg.Upstream.Timeout(), logger)

	// Completion notices go to Redis only; the servers reload and broadcast locally.
	hub := realtime.NewHub(logger, realtime.NewRedisPubSub(rdb.Client, logger), nil)

	loader := events.NewLoader(api, events.NewStore(nil), events.LoaderOptions{}, logger)
	validator := validation.NewValidator(api, api, cfg.Bulk.Concurrency, logger)
	orchestrator := bulk.NewOrchestrator(api, validator, loader, hub, cfg.Bulk.Concurrency, logger)

	jobQueue := queue.NewQueue(rdb.Client, time.Duration(cfg.Bulk.ResultTTLMinutes)*time.Minute, logger)
	processor := worker.NewBulkProcessor(jobQueue, auth.NewRepository(pool), orchestrator, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
