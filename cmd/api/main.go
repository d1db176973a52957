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
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutor-ops-api/api/swagger"
	"github.com/noah-isme/tutor-ops-api/internal/handler"
	internalmiddleware "github.com/noah-isme/tutor-ops-api/internal/middleware"
	"github.com/noah-isme/tutor-ops-api/internal/repository"
	"github.com/noah-isme/tutor-ops-api/internal/service"
	"github.com/noah-isme/tutor-ops-api/pkg/cache"
	"github.com/noah-isme/tutor-ops-api/pkg/config"
	"github.com/noah-isme/tutor-ops-api/pkg/database"
	"github.com/noah-isme/tutor-ops-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutor-ops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutor-ops-api/pkg/middleware/requestid"
)

// @title Tutor Ops API
// @version 1.0.0
// @description Attendance sheets, payment reconciliation and dashboard trends for a tutoring agency.
// @BasePath /api/v1
// @schemes http https

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			logr.Sugar().Fatalw("failed to run migrations", "error", err)
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
	}
	cacheRepo := repository.NewCacheRepository(redisClient, "tutor-ops", logr)
	defer cacheRepo.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Analytics.CacheTTL, logr, cfg.Analytics.Enabled && cacheRepo.Enabled())
	validate := validator.New()

	sender, closeSender, err := buildSender(cfg.Notify, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init reminder delivery", "error", err)
	}
	defer closeSender()
	sender.Start(ctx)
	defer sender.Stop()
	metricsSvc.RegisterQueueDepth("reminders", sender.Pending)

	classRepo := repository.NewClassRepository(db)
	sheetRepo := repository.NewAttendanceSheetRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	trendRepo := repository.NewTrendRepository(db)

	exportSvc := service.NewExportService(cfg.Billing.AgencyName, nil, nil)
	sheetSvc := service.NewAttendanceSheetService(service.AttendanceSheetServiceParams{
		Classes:    classRepo,
		Sheets:     sheetRepo,
		Attendance: attendanceRepo,
		Exporter:   exportSvc,
		Cache:      cacheSvc,
		Metrics:    metricsSvc,
		Validator:  validate,
		Logger:     logr,
	})
	paymentSvc := service.NewPaymentService(service.PaymentServiceParams{
		Payments:  paymentRepo,
		Sheets:    sheetSvc,
		Classes:   classRepo,
		Sender:    sender,
		Receipts:  exportSvc,
		Policy:    service.BillingPolicy{DefaultCurrency: cfg.Billing.DefaultCurrency, DueDays: cfg.Billing.DueDays},
		Cache:     cacheSvc,
		Metrics:   metricsSvc,
		Validator: validate,
		Logger:    logr,
	})
	trendSvc := service.NewTrendService(trendRepo, cacheSvc, validate, logr, service.TrendServiceConfig{CacheTTL: cfg.Analytics.CacheTTL})

	sheetHandler := handler.NewAttendanceSheetHandler(sheetSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	analyticsHandler := handler.NewAnalyticsHandler(trendSvc, metricsSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc.Handler(), map[string]handler.ReadinessCheck{
		"database": db.PingContext,
		"cache": func(ctx context.Context) error {
			if !cacheRepo.Enabled() {
				return nil
			}
			return cacheRepo.Ping(ctx)
		},
	}, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(internalmiddleware.WithResponseMeta())
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		classes := api.Group("/classes/:classId")
		classes.PUT("/sheets/:year/:month", sheetHandler.Upsert)
		classes.GET("/sheets/:year/:month", sheetHandler.Find)
		classes.POST("/attendance", sheetHandler.Mark)
		classes.POST("/attendance/bulk", sheetHandler.BulkMark)

		sheets := api.Group("/sheets/:id")
		sheets.GET("", sheetHandler.Get)
		sheets.POST("/submit", sheetHandler.Submit)
		sheets.GET("/export", sheetHandler.Export)
		sheets.POST("/reconcile", paymentHandler.Reconcile)

		payments := api.Group("/payments")
		payments.GET("", paymentHandler.List)
		payments.GET("/:id", paymentHandler.Get)
		payments.PATCH("/:id/status", paymentHandler.UpdateStatus)
		payments.POST("/:id/reminders", paymentHandler.SendReminder)
		payments.GET("/:id/receipt", paymentHandler.Receipt)

		analytics := api.Group("/analytics")
		analytics.GET("/payments", analyticsHandler.Payments)
		analytics.GET("/attendance", analyticsHandler.Attendance)
		analytics.POST("/aggregate", analyticsHandler.Aggregate)
		analytics.GET("/system", analyticsHandler.System)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logr.Info("shutdown signal received", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Error("server shutdown error", zap.Error(err))
		}
	}()

	logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "notify_channel", cfg.Notify.Channel)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
	logr.Info("server stopped")
}
