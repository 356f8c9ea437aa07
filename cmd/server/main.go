// Package main runs the signage platform HTTP server with WebSocket and graceful shutdown.
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

	"github.com/lumina-signage/backend/config"
	"github.com/lumina-signage/backend/internal/auth"
	"github.com/lumina-signage/backend/internal/blobcache"
	"github.com/lumina-signage/backend/internal/displays"
	"github.com/lumina-signage/backend/internal/middleware"
	"github.com/lumina-signage/backend/internal/playback"
	"github.com/lumina-signage/backend/internal/playlog"
	"github.com/lumina-signage/backend/internal/realtime"
	"github.com/lumina-signage/backend/internal/schedule"
	"github.com/lumina-signage/backend/internal/tenants"
	"github.com/lumina-signage/backend/internal/worker"
	"github.com/lumina-signage/backend/pkg/database"
	"github.com/lumina-signage/backend/pkg/queue"
	"github.com/lumina-signage/backend/pkg/redis"
	"github.com/lumina-signage/backend/pkg/response"
	"github.com/lumina-signage/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
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
			MediaBucket:          cfg.AWS.MediaBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.DeviceExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Blob cache serving GET /media/:id to renderers
	cache, err := blobcache.New(cfg.Playback.CacheDir, logger)
	if err != nil {
		logger.Fatal("blob cache", zap.Error(err))
	}
	mediaHandler := blobcache.NewHandler(cache)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Tenants
	tenantRepo := tenants.NewRepository(pool)
	tenantHandler := tenants.NewHandler(tenantRepo)

	// Displays
	displayRepo := displays.NewRepository(pool)
	displayHandler := displays.NewHandler(displayRepo, jwtService, logger)
	displayAccess := displays.RequireDisplayTenantAccess(displayRepo, tenantRepo)

	// Schedules + catalog snapshotting for the evaluator
	scheduleRepo := schedule.NewRepository(pool)
	catalog := schedule.NewCatalogCache(scheduleRepo, time.Duration(cfg.Playback.CatalogRefreshSeconds)*time.Second, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	scheduleHandler := schedule.NewHandler(scheduleRepo, s3Client, catalog, jobQueue, logger)

	// Proof of play
	playlogRepo := playlog.NewRepository(pool)
	playlogHandler := playlog.NewHandler(playlogRepo)

	// Playback engines, one per display, driving renderers through the hub
	engineOpts := playback.DefaultOptions()
	playerOpts := playback.DefaultPlayerOptions()
	playerOpts.MediaBaseURL = cfg.Playback.MediaBaseURL
	registry := playback.NewRegistry(catalog, realtime.SurfaceFactory(hub), cache,
		playlogRepo, hub, engineOpts, playerOpts, logger)
	defer registry.StopAll()
	playbackHandler := playback.NewHandler(registry, displays.NewResolver(displayRepo), logger)

	// Prefetch worker (also runs standalone via cmd/worker)
	prefetchProcessor := worker.NewPrefetchProcessor(cache, jobQueue, logger)

	if cfg.Playback.AutoStart {
		startEngines(ctx, displayRepo, registry, logger)
	}

	jwtValidate := func(token string) (subject, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.Subject, claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Pairing (public; renderer exchanges pairing code for device token)
	router.POST("/displays/:id/pair", displayHandler.Pair)

	// Cached media for renderers (device or user token)
	media := router.Group(cfg.Playback.MediaBaseURL)
	media.Use(middleware.JWT(jwtService))
	media.GET("/:id", mediaHandler.Serve)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Users (admin only)
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Tenants
		api.GET("/tenants", middleware.RequireUser(), tenantHandler.ListMine)
		api.POST("/tenants", middleware.RequireUser(), tenantHandler.Create)
		api.POST("/tenants/join", middleware.RequireUser(), tenantHandler.Join)
		api.GET("/tenants/:id/members", middleware.RequireUser(), tenantHandler.ListMembers)

		// Displays
		api.POST("/tenants/:id/displays", middleware.RequireUser(), displayHandler.Create)
		api.GET("/tenants/:id/displays", middleware.RequireUser(), displayHandler.List)
		api.GET("/displays/:id", displayAccess, displayHandler.Get)
		api.PATCH("/displays/:id", middleware.RequireUser(), displayAccess, displayHandler.Update)
		api.DELETE("/displays/:id", middleware.RequireUser(), displayAccess, displayHandler.Delete)
		api.POST("/displays/:id/pairing-code", middleware.RequireUser(), displayAccess, displayHandler.RegeneratePairingCode)

		// Schedules
		api.POST("/displays/:id/schedules", middleware.RequireUser(), displayAccess, scheduleHandler.Create)
		api.GET("/displays/:id/schedules", displayAccess, scheduleHandler.List)
		api.POST("/displays/:id/schedules/upload", middleware.RequireUser(), displayAccess, scheduleHandler.Upload)
		api.POST("/displays/:id/schedules/generate-upload-url", middleware.RequireUser(), displayAccess, scheduleHandler.GenerateUploadURL)
		api.GET("/schedules/:id", scheduleHandler.Get)
		api.PUT("/schedules/:id", middleware.RequireUser(), scheduleHandler.Update)
		api.PATCH("/schedules/:id/toggle", middleware.RequireUser(), scheduleHandler.Toggle)
		api.DELETE("/schedules/:id", middleware.RequireUser(), scheduleHandler.Delete)

		// Playback engine
		api.POST("/displays/:id/playback/start", displayAccess, playbackHandler.Start)
		api.POST("/displays/:id/playback/stop", displayAccess, playbackHandler.Stop)
		api.GET("/displays/:id/playback/current", displayAccess, playbackHandler.Current)
		api.GET("/displays/:id/playback/progress", displayAccess, playbackHandler.Progress)

		// Proof of play
		api.GET("/displays/:id/playlog", middleware.RequireUser(), displayAccess, playlogHandler.List)
		api.GET("/displays/:id/playlog/aggregates", middleware.RequireUser(), displayAccess, playlogHandler.Aggregates)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (creative prefetch into the blob cache)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go prefetchProcessor.Run(workerCtx)

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
	registry.StopAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// startEngines brings a playback controller up for every active display.
func startEngines(ctx context.Context, repo *displays.Repository, registry *playback.Registry, logger *zap.Logger) {
	list, err := repo.ListActive(ctx)
	if err != nil {
		logger.Warn("list active displays", zap.Error(err))
		return
	}
	for _, d := range list {
		loc, err := time.LoadLocation(d.Timezone)
		if err != nil {
			logger.Warn("bad display timezone, using server zone",
				zap.String("display_id", d.ID.String()), zap.String("timezone", d.Timezone))
			loc = time.Local
		}
		registry.Start(d.ID, func(o *playback.Options) {
			o.Location = loc
			o.Now = func() time.Time { return time.Now().In(loc) }
		})
	}
	logger.Info("playback engines started", zap.Int("count", len(list)))
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
