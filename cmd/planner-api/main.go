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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	_ "github.com/noah-isme/study-planner-api/api/swagger"
	"github.com/noah-isme/study-planner-api/internal/handler"
	"github.com/noah-isme/study-planner-api/internal/middleware"
	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/repository"
	"github.com/noah-isme/study-planner-api/internal/service"
	"github.com/noah-isme/study-planner-api/pkg/cache"
	"github.com/noah-isme/study-planner-api/pkg/config"
	"github.com/noah-isme/study-planner-api/pkg/database"
	"github.com/noah-isme/study-planner-api/pkg/jobs"
	"github.com/noah-isme/study-planner-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/study-planner-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/study-planner-api/pkg/middleware/requestid"
	"github.com/noah-isme/study-planner-api/pkg/tracing"
)

const shutdownTimeout = 15 * time.Second

// @title Study Planner API
// @version 1.0.0
// @description Generates weekly study plans from a lesson catalog and keeps their dates in sync with the student's weekdays.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.Init(ctx, cfg.Tracing, cfg.Env, logr)

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	readiness := map[string]handler.Pinger{"database": db}
	var cacheRepo service.CacheRepository
	if cfg.Planner.CatalogCacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(client, "study-planner", logr)
			defer repo.Close()
			cacheRepo = repo
			readiness["redis"] = handler.PingFunc(repo.Ping)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Planner.CatalogCacheTTL, logr, cacheRepo != nil)

	planSvc := service.NewStudyPlanService(
		repository.NewStudyPlanRepository(db),
		repository.NewScheduleItemRepository(db),
		repository.NewWeekdayDistributionRepository(db),
		repository.NewContentCatalogRepository(db),
		cacheSvc,
		service.NewExportService(logr, nil, nil),
		db,
		metrics,
		validator.New(),
		logr,
		service.StudyPlanConfig{
			RequestTimeout:  cfg.Planner.RequestTimeout,
			Locale:          cfg.Planner.Locale,
			CatalogCacheTTL: cfg.Planner.CatalogCacheTTL,
		},
	)

	dateQueue := jobs.NewQueue("study-plan-dates", planSvc.HandleDateJob, jobs.QueueConfig{
		Workers:       2,
		MaxRetries:    5,
		RetryDelay:    10 * time.Second,
		MaxRetryDelay: 2 * time.Minute,
		Logger:        logr,
	})
	// Detached from the signal context so Stop can drain pending jobs during shutdown.
	dateQueue.Start(context.WithoutCancel(ctx))
	planSvc.UseDateQueue(dateQueue)

	tokens := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)
	planHandler := handler.NewStudyPlanHandler(planSvc, cacheSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, readiness)

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(corsmiddleware.Options{AllowedOrigins: cfg.CORS.AllowedOrigins, MaxAge: cfg.CORS.MaxAge}))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if metrics != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokens), middleware.WithResponseMeta())

	plans := api.Group("/study-plans")
	plans.POST("", middleware.Audit(logr, "generate", "study_plan"), planHandler.Generate)
	plans.GET("/current", planHandler.Current)
	plans.GET("/:id/items", planHandler.Items)
	plans.PATCH("/:id/items/:itemId", planHandler.UpdateItem)
	plans.GET("/:id/weekdays", planHandler.GetWeekdays)
	plans.PUT("/:id/weekdays", middleware.Audit(logr, "set_weekdays", "study_plan"), planHandler.SetWeekdays)
	plans.POST("/:id/recalculate-dates", planHandler.RecalculateDates)
	plans.GET("/:id/export", planHandler.Export)
	plans.DELETE("/:id", middleware.Audit(logr, "delete", "study_plan"), planHandler.Delete)

	api.GET("/owners/:ownerId/study-plan", middleware.RBAC(string(models.RoleAdmin), "SELF"), planHandler.OwnerPlan)
	api.DELETE("/admin/catalog-cache", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(logr, "invalidate", "catalog_cache"), planHandler.InvalidateCatalogCache)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown incomplete", zap.Error(err))
	}
	dateQueue.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logr.Warn("tracing shutdown incomplete", zap.Error(err))
	}
}
