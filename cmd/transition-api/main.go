package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ibuc-edu/transition-api/api/swagger"
	"github.com/ibuc-edu/transition-api/internal/billing"
	"github.com/ibuc-edu/transition-api/internal/handler"
	"github.com/ibuc-edu/transition-api/internal/middleware"
	"github.com/ibuc-edu/transition-api/internal/repository"
	"github.com/ibuc-edu/transition-api/internal/service"
	"github.com/ibuc-edu/transition-api/pkg/cache"
	"github.com/ibuc-edu/transition-api/pkg/config"
	"github.com/ibuc-edu/transition-api/pkg/database"
	"github.com/ibuc-edu/transition-api/pkg/jobs"
	"github.com/ibuc-edu/transition-api/pkg/logger"
	corsmiddleware "github.com/ibuc-edu/transition-api/pkg/middleware/cors"
	reqidmiddleware "github.com/ibuc-edu/transition-api/pkg/middleware/requestid"
)

// @title IBUC Transition API
// @version 1.0.0
// @description Module and cohort transition engine for the IBUC admin platform
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, previews will not be cached", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	cohortRepo := repository.NewCohortRepository(db)
	curriculumRepo := repository.NewCurriculumRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	reconciliationRepo := repository.NewReconciliationRepository(db)

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(
		repository.NewCacheRepository(redisClient, logr),
		metricsSvc, cfg.Transition.PreviewCacheTTL, logr, redisClient != nil)

	var billingClient *billing.Client
	var reconciliationSvc *service.ReconciliationService
	if cfg.Billing.Enabled {
		billingClient = billing.NewClient(cfg.Billing, logr)
		reconciliationSvc = service.NewReconciliationService(reconciliationRepo, billingClient, metricsSvc, jobs.QueueConfig{
			Workers:    1,
			MaxRetries: cfg.Billing.MaxRetries,
			RetryDelay: cfg.Billing.RetryDelay,
		}, logr)
		reconciliationSvc.Start(ctx)
		defer reconciliationSvc.Stop()
	}

	aggregator := service.NewAttendanceAggregator(cohortRepo, curriculumRepo, enrollmentRepo, attendanceRepo)
	evaluator := service.NewEligibilityEvaluator(cfg.Transition.FrequencyThreshold)

	opts := service.TransitionServiceOptions{
		Cache:              cacheSvc,
		Metrics:            metricsSvc,
		DefaultChargeCents: cfg.Transition.DefaultChargeCents,
		PreviewTTL:         cfg.Transition.PreviewCacheTTL,
		BringForward:       cfg.Transition.BringForward,
	}
	if billingClient != nil {
		opts.Billing = billingClient
		opts.Reconciler = reconciliationSvc
	}
	transitionSvc := service.NewTransitionService(cohortRepo, historyRepo, enrollmentRepo, aggregator, evaluator, opts, nil, logr)
	batchSvc := service.NewBatchService(cohortRepo, transitionSvc, metricsSvc, cfg.Transition.BatchPreviewConcurrency, nil, logr)
	cohortSvc := service.NewCohortService(cohortRepo, logr)

	// Handlers.
	transitionHandler := handler.NewTransitionHandler(transitionSvc, batchSvc)
	cohortHandler := handler.NewCohortHandler(cohortSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/status", metricsHandler.Status)

		api.GET("/turmas", cohortHandler.List)
		api.GET("/turmas/:id", cohortHandler.Get)
		api.GET("/turmas/:id/preview-transition", transitionHandler.Preview)
		api.POST("/turmas/:id/close-module", transitionHandler.Close)
		api.POST("/turmas/:id/bring-forward", transitionHandler.BringForward)
		api.POST("/turmas/close-module/batch", transitionHandler.CloseBatch)

		if reconciliationSvc != nil {
			reconciliationHandler := handler.NewReconciliationHandler(reconciliationSvc)
			api.GET("/cobrancas/reconciliacoes", reconciliationHandler.Pending)
		}
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
