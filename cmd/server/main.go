// Package main runs the polls HTTP server with live results over WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-polls/backend/config"
	"github.com/aura-polls/backend/internal/auth"
	"github.com/aura-polls/backend/internal/polls"
	"github.com/aura-polls/backend/internal/realtime"
	"github.com/aura-polls/backend/internal/worker"
	"github.com/aura-polls/backend/pkg/database"
	"github.com/aura-polls/backend/pkg/queue"
	"github.com/aura-polls/backend/pkg/redis"
	"github.com/aura-polls/backend/pkg/storage"
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

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var avatars auth.AvatarUploader
	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			AvatarsBucket:   cfg.AWS.AvatarsBucket,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			avatars = s3Client
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, avatars, logger)

	// Polls
	pollRepo := polls.NewRepository(pool)
	resultsCache := polls.NewResultsCache(rdb.Client, cfg.Cache.ResultsTTL)
	pollHandler := polls.NewHandler(pollRepo, resultsCache, jobQueue, logger)

	snapshot := func(ctx context.Context, pollID uuid.UUID) (interface{}, error) {
		return pollRepo.Results(ctx, pollID)
	}

	router := routes{
		logger:       logger,
		corsOrigins:  cfg.Server.CORSAllowedOrigins,
		publicOrigin: cfg.Server.PublicOrigin,
		tokens:       jwtService,
		auth:         authHandler,
		polls:        pollHandler,
		ws:           realtime.ServeWs(hub, logger, jwtService, snapshot),
	}.engine()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background workers (results refresh, expiry sweep)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Worker.Embedded {
		processor := worker.NewResultsProcessor(pollRepo, resultsCache, hub, jobQueue, logger)
		sweeper := worker.NewExpirySweeper(pollRepo, resultsCache, hub, cfg.Worker.SweepInterval, logger)
		go processor.Run(workerCtx)
		go sweeper.Run(workerCtx)
		logger.Info("embedded workers started", zap.Duration("sweep_interval", cfg.Worker.SweepInterval))
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
