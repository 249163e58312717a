package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"salon_backend/database"
	"salon_backend/internal/alerting"
	"salon_backend/internal/auth"
	"salon_backend/internal/config"
	"salon_backend/internal/events"
	"salon_backend/internal/handlers"
	"salon_backend/internal/logger"
	"salon_backend/internal/middleware"
	"salon_backend/internal/repositories"
	"salon_backend/internal/routes"
	"salon_backend/internal/services"
	"salon_backend/internal/services/robokassa"
	"salon_backend/internal/validator"
	"salon_backend/internal/workers"

	"github.com/gin-gonic/gin"
)

const (
	visitorTTL      = 10 * time.Minute
	cleanupInterval = time.Minute
)

// Dependencies - внешние зависимости роутера. В тестах подставляется
// in-memory репозиторий.
type Dependencies struct {
	PaymentRepo repositories.PaymentRepository
	Publisher   events.Publisher
	Alerts      alerting.Sink
	Limiter     *middleware.RateLimiter
}

func Run() {
	cfg := config.MustLoad()
	logger.Init(cfg.Server.Env)
	logger.Info("Logger initialized", "env", cfg.Server.Env)

	gormDB, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	logger.Info("Database connected")

	if err := database.AutoMigrate(gormDB); err != nil {
		logger.Fatal("Failed to migrate database", "error", err)
	}

	publisher, err := events.NewPublisher(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize event publisher", "error", err, "backend", cfg.Events.Backend)
	}
	defer publisher.Close()
	logger.Info("Event publisher initialized", "backend", cfg.Events.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	paymentRepo := repositories.NewPaymentRepository(gormDB, cfg.Database.StatementTimeout)
	alerts := initializeAlerts(cfg)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, visitorTTL)
	go limiter.RunCleanup(ctx, cleanupInterval)

	workers.NewStalePaymentWorker(paymentRepo, alerts, cfg.Workers).Start(ctx)

	if !robokassa.NewSigner(cfg.Robokassa).Configured() {
		logger.Warn("Robokassa credentials are not set, callbacks will be rejected")
	}

	ginRouter := SetupRouter(cfg, Dependencies{
		PaymentRepo: paymentRepo,
		Publisher:   publisher,
		Alerts:      alerts,
		Limiter:     limiter,
	})

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              address,
		Handler:           ginRouter,
		ReadHeaderTimeout: 10 * time.Second,
		// Запас сверх таймаута обработки callback
		WriteTimeout: cfg.Robokassa.ProcessTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("Server starting", "address", address, "test_mode", cfg.TestMode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server startup error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Robokassa.ProcessTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	logger.Info("Server exited")
}

func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.Alerts == nil {
		deps.Alerts = alerting.LogSink{}
	}

	// 1. Инициализируем сервисы
	serviceContainer := services.NewServiceContainer(cfg, deps.PaymentRepo, deps.Publisher)

	// 2. Инициализируем хэндлеры
	appHandlers := initializeHandlers(cfg, serviceContainer, deps)

	// 3. Инициализируем Gin
	ginRouter := initializeGinRouter(cfg)

	// 4. Регистрация маршрутов
	routes.RegisterRoutes(ginRouter, appHandlers)

	return ginRouter
}

func initializeAlerts(cfg *config.Config) alerting.Sink {
	sinks := alerting.MultiSink{alerting.LogSink{}}
	if cfg.Alerts.Enabled && len(cfg.Alerts.EmailTo) > 0 {
		sinks = append(sinks, alerting.NewEmailSink(cfg.Email, cfg.Alerts.EmailTo))
		logger.Info("Email alerts enabled", "recipients", len(cfg.Alerts.EmailTo))
	}
	return sinks
}

func initializeHandlers(cfg *config.Config, services *services.ServiceContainer, deps Dependencies) *handlers.AppHandlers {
	customValidator := validator.New()
	baseHandler := handlers.NewBaseHandler(customValidator)
	tokens := auth.NewTokenManager(cfg.JWT)

	return &handlers.AppHandlers{
		PaymentHandler:          handlers.NewPaymentHandler(baseHandler, services.PaymentService, tokens, deps.Limiter),
		RobokassaWebhookHandler: handlers.NewRobokassaWebhookHandler(services.PaymentService, deps.Alerts, cfg.Robokassa),
	}
}

func initializeGinRouter(cfg *config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.MetricsMiddleware())
	return router
}
