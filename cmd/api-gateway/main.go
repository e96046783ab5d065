package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-timetable-api/api/swagger"
	"github.com/noah-isme/campus-timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/campus-timetable-api/internal/middleware"
	"github.com/noah-isme/campus-timetable-api/internal/repository"
	"github.com/noah-isme/campus-timetable-api/internal/scheduler"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/internal/tasks"
	"github.com/noah-isme/campus-timetable-api/pkg/cache"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
	"github.com/noah-isme/campus-timetable-api/pkg/database"
	"github.com/noah-isme/campus-timetable-api/pkg/jobs"
	"github.com/noah-isme/campus-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-timetable-api/pkg/middleware/requestid"
	"github.com/noah-isme/campus-timetable-api/pkg/storage"
)

// @title Campus Timetable API
// @version 1.0.0
// @description Timetable generation and substitute assignment for university batches
// @BasePath /
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
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.RunMigrations {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var (
		redisClient *redis.Client
		cacheRepo   service.CacheRepository
		slotLock    *repository.LockRepository
	)
	if cfg.Cache.Enabled || cfg.Substitute.DistributedLocksEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching and distributed locks disabled", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			slotLock = repository.NewLockRepository(redisClient, "lock:timetable:")
		}
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled)

	facultyRepo := repository.NewFacultyRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	absenceRepo := repository.NewAbsenceRepository(db)

	timetableSvc := service.NewTimetableService(
		facultyRepo, subjectRepo, classroomRepo, batchRepo, timetableRepo, db,
		cacheSvc, metricsSvc, validate, logr,
		service.TimetableServiceConfig{
			SoftTimeout:   cfg.Scheduler.SoftTimeout,
			MaxBacktracks: cfg.Scheduler.MaxBacktracks,
			RunTTL:        cfg.Scheduler.RunTTL,
			AsyncEnabled:  cfg.Scheduler.AsyncEnabled,
			CacheTTL:      cfg.Cache.TTL,
		},
	)

	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	var generationQueue *jobs.Queue
	if cfg.Scheduler.AsyncEnabled {
		generationQueue = jobs.NewQueue("timetable-generation", timetableSvc.HandleJob, jobs.QueueConfig{
			Workers:    1,
			BufferSize: cfg.Scheduler.QueueBuffer,
			JobTimeout: cfg.Scheduler.SoftTimeout + time.Minute,
			Logger:     logr,
		})
		generationQueue.Start(rootCtx)
		timetableSvc.UseDispatcher(generationQueue)
	}

	substituteCfg := service.SubstituteServiceConfig{
		LockTTL:                 cfg.Substitute.LockTTL,
		DistributedLocksEnabled: cfg.Substitute.DistributedLocksEnabled && slotLock != nil,
		Clock:                   scheduler.SystemClock{},
	}
	var substituteSvc *service.SubstituteService
	if slotLock != nil {
		substituteSvc = service.NewSubstituteService(absenceRepo, timetableRepo, facultyRepo, subjectRepo, classroomRepo, batchRepo,
			db, slotLock, cacheSvc, metricsSvc, logr, substituteCfg)
	} else {
		substituteSvc = service.NewSubstituteService(absenceRepo, timetableRepo, facultyRepo, subjectRepo, classroomRepo, batchRepo,
			db, nil, cacheSvc, metricsSvc, logr, substituteCfg)
	}

	fileStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(timetableSvc, fileStorage, signer, validate, logr, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	})

	maintenance, err := tasks.NewMaintenance(exportSvc, timetableSvc, tasks.MaintenanceConfig{
		ExportSchedule: cfg.Exports.CleanupSchedule,
		ExportTTL:      cfg.Exports.SignedURLTTL,
	}, logr)
	if err != nil {
		logr.Fatal("failed to schedule maintenance", zap.Error(err))
	}
	maintenance.Start()

	timetableHandler := handler.NewTimetableHandler(timetableSvc)
	substituteHandler := handler.NewSubstituteHandler(substituteSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, readinessChecks(db, redisClient))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/system/metrics", metricsHandler.System)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	timetable := api.Group("/timetable")
	timetable.POST("/generate", timetableHandler.Generate)
	timetable.GET("/runs/:id", timetableHandler.GetRun)
	timetable.GET("/batches/:id", timetableHandler.BatchTimetable)
	timetable.GET("/faculty/:id", timetableHandler.FacultyTimetable)
	timetable.POST("/exports", exportHandler.Create)

	api.GET("/exports/:token", exportHandler.Download)
	api.POST("/absences/:id/substitute", substituteHandler.Substitute)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logr.Info("shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	maintenance.Stop()
	if generationQueue != nil {
		generationQueue.Stop()
	}
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return checks
}
