package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/univ-lab/timetable-api/api/swagger"
	"github.com/univ-lab/timetable-api/internal/handler"
	"github.com/univ-lab/timetable-api/internal/middleware"
	"github.com/univ-lab/timetable-api/internal/repository"
	"github.com/univ-lab/timetable-api/internal/service"
	"github.com/univ-lab/timetable-api/pkg/cache"
	"github.com/univ-lab/timetable-api/pkg/config"
	"github.com/univ-lab/timetable-api/pkg/database"
	"github.com/univ-lab/timetable-api/pkg/jobs"
	"github.com/univ-lab/timetable-api/pkg/logger"
	corsmiddleware "github.com/univ-lab/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/univ-lab/timetable-api/pkg/middleware/requestid"
	"github.com/univ-lab/timetable-api/pkg/storage"
)

// @title Timetable API
// @version 1.0.0
// @description Course timetabling service: catalog management, asynchronous scheduling runs and exports
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	// Redis is optional: without it the API still works, reads just skip
	// the cache.
	var cacheRepo service.CacheRepository
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
	} else {
		defer redisClient.Close() //nolint:errcheck
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	professorRepo := repository.NewProfessorRepository(db)
	groupRepo := repository.NewClassGroupRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	settingRepo := repository.NewSettingRepository(db)
	runRepo := repository.NewRunRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	unassignedRepo := repository.NewUnassignedRepository(db)
	exportRepo := repository.NewExportRepository(db)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.RunTTL, logr, cfg.Cache.Enabled)

	authSvc := service.NewAuthService(validate, logr, service.AuthServiceConfig{
		ClientID:          cfg.Auth.ClientID,
		APIKeyHash:        cfg.Auth.APIKeyHash,
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})

	professorSvc := service.NewProfessorService(professorRepo, validate, logr)
	groupSvc := service.NewClassGroupService(groupRepo, validate, logr)
	roomSvc := service.NewRoomService(roomRepo, validate, logr)
	sectionSvc := service.NewSectionService(sectionRepo, professorRepo, groupRepo, validate, logr)
	availabilitySvc := service.NewAvailabilityService(availabilityRepo, professorRepo, validate, logr)
	configSvc := service.NewSchedulingConfigService(settingRepo, cfg.Scheduler, validate, logr)

	importCfg := service.ImportConfig{MaxRows: cfg.Imports.MaxRows}
	if d := []rune(cfg.Imports.Delimiter); len(d) > 0 {
		importCfg.Delimiter = d[0]
	}
	importSvc := service.NewImportService(professorRepo, groupRepo, roomRepo, sectionRepo, availabilityRepo, logr, importCfg)

	runWorker := service.NewRunWorker(runRepo, sectionRepo, roomRepo, availabilityRepo, configSvc, assignmentRepo, unassignedRepo, cacheSvc, metricsSvc, cfg.Runs.WorkerRetries, logr)
	runQueue := jobs.NewQueue("runs", runWorker.Handle, jobs.QueueConfig{
		Workers:    1,
		BufferSize: cfg.Runs.QueueSize,
		MaxRetries: cfg.Runs.WorkerRetries,
		RetryDelay: cfg.Runs.RetryDelay,
		Logger:     logr,
	})
	runSvc := service.NewRunService(runRepo, assignmentRepo, unassignedRepo, configSvc, runQueue, cacheSvc, validate, logr)

	store, err := storage.NewLocalStore(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewDownloadSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(runRepo, assignmentRepo, unassignedRepo, store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr)
	exportWorker := service.NewExportWorker(exportRepo, exportSvc, metricsSvc, cfg.Exports.WorkerRetries, logr)
	exportQueue := jobs.NewQueue("exports", exportWorker.Handle, jobs.QueueConfig{
		Workers:    2,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
	})
	exportJobSvc := service.NewExportJobService(exportRepo, runRepo, exportQueue, exportSvc, validate, logr, service.ExportJobServiceConfig{
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
		MaxRetries:      cfg.Exports.WorkerRetries,
	})

	authHandler := handler.NewAuthHandler(authSvc)
	professorHandler := handler.NewProfessorHandler(professorSvc, availabilitySvc)
	groupHandler := handler.NewClassGroupHandler(groupSvc)
	roomHandler := handler.NewRoomHandler(roomSvc)
	sectionHandler := handler.NewSectionHandler(sectionSvc)
	runHandler := handler.NewRunHandler(runSvc)
	exportHandler := handler.NewExportHandler(exportJobSvc)
	importHandler := handler.NewImportHandler(importSvc, cfg.Imports.MaxFileSizeBytes)
	settingHandler := handler.NewSettingHandler(configSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := r.Group(cfg.APIPrefix)

	v1.POST("/auth/token", authHandler.Token)
	v1.GET("/export/download/:token", exportHandler.Download)

	v1.GET("/professors", professorHandler.List)
	v1.GET("/professors/:id", professorHandler.Get)
	v1.GET("/professors/:id/availability", professorHandler.GetAvailability)
	v1.GET("/class-groups", groupHandler.List)
	v1.GET("/class-groups/:id", groupHandler.Get)
	v1.GET("/rooms", roomHandler.List)
	v1.GET("/rooms/:id", roomHandler.Get)
	v1.GET("/sections", sectionHandler.List)
	v1.GET("/sections/:id", sectionHandler.Get)
	v1.GET("/runs", runHandler.List)
	v1.GET("/runs/:id", runHandler.Get)
	v1.GET("/runs/:id/assignments", runHandler.Assignments)
	v1.GET("/runs/:id/unassigned", runHandler.Unassigned)
	v1.GET("/export/:id", exportHandler.Status)
	v1.GET("/settings", settingHandler.List)
	v1.GET("/settings/:key", settingHandler.Get)

	guarded := v1.Group("", middleware.JWT(authSvc))
	guarded.GET("/auth/me", authHandler.Me)
	guarded.POST("/professors", professorHandler.Create)
	guarded.PUT("/professors/:id", professorHandler.Update)
	guarded.DELETE("/professors/:id", professorHandler.Delete)
	guarded.PUT("/professors/:id/availability", professorHandler.ReplaceAvailability)
	guarded.POST("/class-groups", groupHandler.Create)
	guarded.PUT("/class-groups/:id", groupHandler.Update)
	guarded.DELETE("/class-groups/:id", groupHandler.Delete)
	guarded.POST("/rooms", roomHandler.Create)
	guarded.PUT("/rooms/:id", roomHandler.Update)
	guarded.DELETE("/rooms/:id", roomHandler.Delete)
	guarded.POST("/sections", sectionHandler.Create)
	guarded.PUT("/sections/:id", sectionHandler.Update)
	guarded.DELETE("/sections/:id", sectionHandler.Delete)
	guarded.POST("/runs", runHandler.Create)
	guarded.DELETE("/runs/:id", runHandler.Delete)
	guarded.POST("/runs/:id/export", exportHandler.Create)
	guarded.POST("/import/:entity", importHandler.Upload)
	guarded.PUT("/settings/bulk", settingHandler.BulkUpdate)
	guarded.PUT("/settings/:key", settingHandler.Update)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runQueue.Start(ctx)
	exportQueue.Start(ctx)
	metricsSvc.RegisterQueueDepth("runs", runQueue.Depth)
	metricsSvc.RegisterQueueDepth("exports", exportQueue.Depth)

	if cfg.Runs.RecoverOnStart {
		runSvc.RecoverPendingRuns(ctx)
		exportJobSvc.RecoverPendingExports(ctx)
	}
	exportJobSvc.StartCleanup(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	runQueue.Stop()
	exportQueue.Stop()
	logr.Sugar().Infow("server stopped")
}
