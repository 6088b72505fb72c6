// Package main runs the background workers (results refresh, expiry sweep) outside the API process.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-polls/backend/config"
	"github.com/aura-polls/backend/internal/polls"
	"github.com/aura-polls/backend/internal/realtime"
	"github.com/aura-polls/backend/internal/worker"
	"github.com/aura-polls/backend/pkg/database"
	"github.com/aura-polls/backend/pkg/queue"
	"github.com/aura-polls/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{MaxConns: int32(cfg.Database.MaxConns)}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	pollRepo := polls.NewRepository(pool)
	resultsCache := polls.NewResultsCache(rdb.Client, cfg.Cache.ResultsTTL)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	// Publish-only hub: viewers are connected to the API instances, which receive events via Redis.
	hub := realtime.NewHub(logger, realtime.NewRedisPubSub(rdb.Client, logger), nil)

	processor := worker.NewResultsProcessor(pollRepo, resultsCache, hub, jobQueue, logger)
	sweeper := worker.NewExpirySweeper(pollRepo, resultsCache, hub, cfg.Worker.SweepInterval, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	go sweeper.Run(workerCtx)
	logger.Info("worker started", zap.Duration("sweep_interval", cfg.Worker.SweepInterval))

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
