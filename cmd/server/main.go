// Package main runs the events gateway HTTP server with WebSocket and graceful shutdown.
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

	"github.com/upeu-eventos/gateway/config"
	"github.com/upeu-eventos/gateway/internal/attendance"
	"github.com/upeu-eventos/gateway/internal/auth"
	"github.com/upeu-eventos/gateway/internal/bulk"
	"github.com/upeu-eventos/gateway/internal/events"
	"github.com/upeu-eventos/gateway/internal/middleware"
	"github.com/upeu-eventos/gateway/internal/realtime"
	"github.com/upeu-eventos/gateway/internal/registrations"
	"github.com/upeu-eventos/gateway/internal/reports"
	"github.com/upeu-eventos/gateway/internal/upstream"
	"github.com/upeu-eventos/gateway/internal/validation"
	"github.com/upeu-eventos/gateway/pkg/database"
	"github.com/upeu-eventos/gateway/pkg/queue"
	"github.com/upeu-eventos/gateway/pkg/redis"
	"github.com/upeu-eventos/gateway/pkg/response"
	"github.com/upeu-eventos/gateway/pkg/storage"
)

const sessionSweepInterval = 30 * time.Minute

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

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

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

	// Reports bucket is optional; without it report upload answers 503.
	var reportStore reports.ObjectStore
	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ReportsBucket:        cfg.AWS.ReportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			reportStore = s3Client
		}
	}

	api := upstream.NewClient(cfg.Upstream.APIURL, cfg.Upstream.Timeout(), logger)

	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	// Sessions
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	sessionRepo := auth.NewRepository(pool)
	notifier := auth.NewRedisNotifier(rdb.Client, logger)
	sessions := auth.NewManager(api, sessionRepo, jwtService, notifier, logger)
	if err := notifier.Listen(workerCtx, sessions.Deliver); err != nil {
		logger.Warn("session notifications disabled", zap.Error(err))
	}
	sessions.Subscribe(func(ev auth.SessionEvent) {
		if ev.Type == auth.SignedOut {
			if n := hub.CloseSession(ev.SessionID); n > 0 {
				logger.Info("closed sockets of signed-out session", zap.String("session_id", ev.SessionID), zap.Int("clients", n))
			}
		}
	})
	authHandler := auth.NewHandler(sessions, logger)

	// Events: admin views publish every merge, student views mirror them with a method fallback.
	adminLoader := events.NewLoader(api, events.NewStore(hub), events.LoaderOptions{
		FallbackMethods: cfg.Payments.AdminFallbackMethods,
	}, logger)
	studentLoader := events.NewLoader(api, events.NewStore(nil), events.LoaderOptions{
		FallbackMethods: cfg.Payments.StudentFallbackMethods,
		FallbackOnEmpty: true,
	}, logger)
	eventService := events.NewService(api, adminLoader, logger, studentLoader)
	eventHandler := events.NewHandler(eventService, adminLoader, studentLoader, logger)

	// Attendance
	recorder := attendance.NewRecorder(api, hub, cfg.Attendance.RecentLimit, logger)
	attendanceHandler := attendance.NewHandler(recorder, logger)

	// Bulk registration
	validator := validation.NewValidator(api, api, cfg.Bulk.Concurrency, logger)
	orchestrator := bulk.NewOrchestrator(api, validator, adminLoader, hub, cfg.Bulk.Concurrency, logger,
		adminLoader.RefreshCount, studentLoader.RefreshCount, recorder.Reload)
	jobQueue := queue.NewQueue(rdb.Client, time.Duration(cfg.Bulk.ResultTTLMinutes)*time.Minute, logger)
	bulkHandler := bulk.NewHandler(orchestrator, validator, api, jobQueue, logger)
	if cancel, err := redisPubSub.SubscribeEvent(realtime.AllEvents, orchestrator.HandleRemote); err != nil {
		logger.Warn("remote bulk reloads disabled", zap.Error(err))
	} else {
		defer cancel()
	}

	// Self-registration
	registrationService := registrations.NewService(api, studentLoader, cfg.Payments.StudentFallbackMethods, logger,
		adminLoader.RefreshCount, studentLoader.RefreshCount, recorder.Reload)
	registrationHandler := registrations.NewHandler(registrationService, logger)

	// Reports
	reportHandler := reports.NewHandler(reports.NewExporter(api, reportStore, logger), logger)

	wsValidate := func(token string) (*realtime.Identity, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return nil, err
		}
		s, err := sessions.Current(context.Background(), claims.SessionID)
		if err != nil {
			return nil, err
		}
		return &realtime.Identity{UserID: s.User.ID, Role: string(s.User.Role), SessionID: s.ID}, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		checkCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(checkCtx); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Check(checkCtx); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	protected := router.Group("")
	protected.Use(middleware.JWT(jwtService, sessions))
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/me", authHandler.Me)

		// Student
		protected.GET("/events", eventHandler.ListPublished)
		protected.GET("/events/:id/payment-methods", registrationHandler.PaymentMethods)
		protected.POST("/events/:id/register", registrationHandler.Register)
		protected.GET("/me/registrations", registrationHandler.Mine)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireStaff())
	{
		// Events
		admin.GET("/events", eventHandler.AdminList)
		admin.GET("/events/:id", eventHandler.Get)
		admin.POST("/events", eventHandler.Create)
		admin.PUT("/events/:id", eventHandler.Update)
		admin.DELETE("/events/:id", eventHandler.Delete)

		// Codes
		admin.POST("/codes/normalize", bulkHandler.Normalize)
		admin.POST("/codes/validate", bulkHandler.Validate)
		admin.POST("/codes/upload", bulkHandler.Upload)
		admin.GET("/codes/directory", bulkHandler.Directory)
		admin.GET("/codes/template", reportHandler.Template)

		// Bulk
		admin.POST("/events/:id/bulk", bulkHandler.Submit)
		admin.GET("/bulk/jobs/:jobId", bulkHandler.JobStatus)

		// Attendance
		admin.GET("/events/:id/attendance", attendanceHandler.Board)
		admin.POST("/events/:id/attendance", attendanceHandler.Record)
		admin.POST("/events/:id/attendance/:registrationId", attendanceHandler.RecordByID)

		// Reports
		admin.GET("/events/:id/report", reportHandler.Download)
		admin.POST("/events/:id/report/upload", reportHandler.Upload)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, wsValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Warm the event views so the first request is served from memory.
	go func() {
		if _, err := adminLoader.Start(workerCtx); err != nil {
			logger.Warn("initial admin event load", zap.Error(err))
		}
		if _, err := studentLoader.Start(workerCtx); err != nil {
			logger.Warn("initial student event load", zap.Error(err))
		}
	}()
	go sweepSessions(workerCtx, sessionRepo, logger)

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

// sweepSessions deletes expired sessions until ctx is done.
func sweepSessions(ctx context.Context, repo *auth.Repository, logger *zap.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := repo.DeleteExpired(ctx, now)
			if err != nil {
				logger.Warn("sweep sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("expired sessions removed", zap.Int64("count", n))
			}
		}
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
