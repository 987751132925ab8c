// Package main runs the sleep tracking HTTP server with WebSocket fan-out
// and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/homemic/sleep-server/config"
	"github.com/homemic/sleep-server/internal/audio"
	"github.com/homemic/sleep-server/internal/auth"
	"github.com/homemic/sleep-server/internal/bridge"
	"github.com/homemic/sleep-server/internal/imports"
	"github.com/homemic/sleep-server/internal/ingest"
	"github.com/homemic/sleep-server/internal/middleware"
	"github.com/homemic/sleep-server/internal/realtime"
	"github.com/homemic/sleep-server/internal/sessions"
	"github.com/homemic/sleep-server/internal/worker"
	"github.com/homemic/sleep-server/pkg/database"
	"github.com/homemic/sleep-server/pkg/queue"
	"github.com/homemic/sleep-server/pkg/redis"
	"github.com/homemic/sleep-server/pkg/response"
	"github.com/homemic/sleep-server/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AudioBucket:          cfg.AWS.AudioBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	defer hub.Close()

	locks := sessions.NewLocks()

	// Sessions
	sessionRepo := sessions.NewRepository(pool)
	ingestRepo := ingest.NewRepository(pool)
	scorer := sessions.NewScorer(sessionRepo, ingestRepo)
	sessionHandler := sessions.NewHandler(sessionRepo, scorer, hub, locks, logger)

	// Ingest
	ingestHandler := ingest.NewHandler(ingestRepo, hub, locks, logger)

	// Health imports
	importRepo := imports.NewRepository(pool)
	reconciler := imports.NewReconciler(sessionRepo, importRepo, locks, logger)
	importHandler := imports.NewHandler(reconciler, logger)

	// Audio clips (spool locally, worker moves to S3)
	clipRepo := audio.NewRepository(pool)
	var jobQueue *queue.Queue
	if s3Client != nil {
		jobQueue = queue.NewQueue(rdb.Client, logger)
	}
	audioHandler := audio.NewHandler(clipRepo, sessionRepo, jobQueue, s3Client, hub, locks, cfg.Audio.SpoolDir, logger)

	// Auth (device key -> dashboard JWT)
	authHandler := auth.NewHandler(jwtService, cfg.Server.DeviceKey, logger)

	jwtValidate := func(token string) error {
		_, err := jwtService.Validate(token)
		return err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	router.POST("/auth/token", authHandler.Token)

	// Protected API (dashboard JWT or agent device key)
	api := router.Group("/api")
	api.Use(middleware.Auth(jwtService, cfg.Server.DeviceKey))
	{
		api.POST("/sessions/start", sessionHandler.Start)
		api.GET("/sessions", sessionHandler.GetByDate)
		api.GET("/sessions/recent", sessionHandler.ListRecent)
		api.GET("/sessions/:id", sessionHandler.GetByID)
		api.DELETE("/sessions/:id", sessionHandler.Delete)
		api.POST("/sessions/:id/end", sessionHandler.End)
		api.POST("/sessions/:id/calculate-score", sessionHandler.CalculateScore)
		api.GET("/sessions/:id/summary", ingestHandler.Summary)

		api.POST("/sessions/:id/events", ingestHandler.CreateEvent)
		api.POST("/sessions/:id/readings", ingestHandler.CreateReading)

		api.POST("/imports/:source", importHandler.Import)

		api.POST("/audio/upload", audioHandler.Upload)
		api.GET("/audio/:id/url", audioHandler.DownloadURL)
		api.DELETE("/audio/:id", audioHandler.Delete)
	}

	// WebSocket (token in query; no Authorization header available)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	// Background worker (clip upload to S3)
	if s3Client != nil {
		processor := worker.NewClipProcessor(clipRepo, s3Client, jobQueue, logger)
		go processor.Run(workerCtx)
		logger.Info("clip upload worker started")
	}

	// Sensor bridge poller
	if cfg.Bridge.Enabled {
		poller := bridge.NewPoller(
			bridge.NewClient(cfg.Bridge.BaseURL, logger),
			sessionRepo,
			ingestRepo,
			hub,
			time.Duration(cfg.Bridge.IntervalSec)*time.Second,
			logger,
		)
		go poller.Run(workerCtx)
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
