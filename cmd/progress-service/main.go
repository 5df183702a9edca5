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

	_ "github.com/nextlevel-elearning/progress-api/api/swagger"
	"github.com/nextlevel-elearning/progress-api/internal/handler"
	"github.com/nextlevel-elearning/progress-api/internal/middleware"
	"github.com/nextlevel-elearning/progress-api/internal/repository"
	"github.com/nextlevel-elearning/progress-api/internal/service"
	"github.com/nextlevel-elearning/progress-api/pkg/broker"
	"github.com/nextlevel-elearning/progress-api/pkg/cache"
	"github.com/nextlevel-elearning/progress-api/pkg/config"
	"github.com/nextlevel-elearning/progress-api/pkg/database"
	"github.com/nextlevel-elearning/progress-api/pkg/logger"
	corsmiddleware "github.com/nextlevel-elearning/progress-api/pkg/middleware/cors"
	reqidmiddleware "github.com/nextlevel-elearning/progress-api/pkg/middleware/requestid"
	"github.com/nextlevel-elearning/progress-api/pkg/storage"
)

// @title NextLevel Progress API
// @version 1.0.0
// @description Learner course progress, completion and certification service
// @BasePath /progress/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}

	publisher, err := broker.NewPublisher(cfg.Broker, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to rabbitmq", "error", err)
	}
	defer publisher.Close()

	artifactStore, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init artifact storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)

	enrollmentRepo := repository.NewEnrollmentRepository(db)
	progressRepo := repository.NewModuleProgressRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	renderSvc := service.NewRenderService(certificateRepo, catalogRepo, artifactStore, signer, cacheRepo, service.RenderOptions{
		Issuer:            cfg.Certificates.Issuer,
		Locality:          cfg.Certificates.Locality,
		ValidationBaseURL: cfg.Certificates.ValidationBaseURL,
		Workers:           cfg.Certificates.WorkerConcurrency,
		Retries:           cfg.Certificates.WorkerRetries,
	}, logr)

	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, catalogRepo, validate, metricsSvc, logr)
	certificateSvc := service.NewCertificateService(certificateRepo, enrollmentRepo, cacheRepo, renderSvc, cfg.Certificates.ValidateCacheTTL, metricsSvc, logr)
	progressSvc := service.NewProgressService(progressRepo, enrollmentRepo, catalogRepo, certificateSvc, publisher, cfg.Broker.Source, metricsSvc, logr)

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	progressHandler := handler.NewProgressHandler(progressSvc)
	certificateHandler := handler.NewCertificateHandler(certificateSvc, renderSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/enrollments", enrollmentHandler.List)
		api.POST("/enrollments", enrollmentHandler.Create)
		api.GET("/enrollments/:id", enrollmentHandler.Get)
		api.GET("/enrollments/:id/modules", progressHandler.ListModules)
		api.GET("/enrollments/:id/progress", progressHandler.Detail)
		api.GET("/enrollments/:id/next-module", progressHandler.NextModule)
		api.POST("/enrollments/:id/modules/:moduleId/start", progressHandler.StartModule)
		api.POST("/enrollments/:id/modules/:moduleId/complete", progressHandler.CompleteModule)
		api.GET("/enrollments/:id/modules/:moduleId/unlocked", progressHandler.ModuleUnlocked)
		api.POST("/enrollments/:id/certificate", certificateHandler.Issue)
		api.GET("/courses/:courseId/enrollments", enrollmentHandler.CourseRoster)
		api.GET("/learners/:learnerId/certificates", certificateHandler.ListByLearner)

		api.GET("/certificates/validate", certificateHandler.Validate)
		api.GET("/certificates/files", certificateHandler.File)
		api.GET("/certificates/:code", certificateHandler.Get)
		api.GET("/certificates/:code/download", certificateHandler.Download)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	renderSvc.Start(rootCtx)
	defer renderSvc.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}

	if err := cacheRepo.Close(); err != nil {
		logr.Sugar().Warnw("failed to close redis", "error", err)
	}
}
