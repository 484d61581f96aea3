package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/festpass/registration-backend/internal/config"
	"github.com/festpass/registration-backend/internal/database"
	"github.com/festpass/registration-backend/internal/handlers"
	"github.com/festpass/registration-backend/internal/middleware"
	"github.com/festpass/registration-backend/internal/services"
	"github.com/festpass/registration-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting fest registration backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Repositories
	profileRepository := database.NewProfileRepository(db)
	eventRepository := database.NewEventRepository(db)
	registrationRepository := database.NewRegistrationRepository(db)
	festRepository := database.NewFestRegistrationRepository(db)
	auditRepository := database.NewPaymentAuditRepository(db, logger)
	deadLetterRepository := database.NewNotificationDeadLetterRepository(db)
	adminRepository := database.NewAdminUserRepository(db)

	// Initialize services
	logger.Info("Initializing services...")
	metrics := services.NewMetricsService()
	jwtService := jwt.NewService(
		cfg.JWT.Secret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)

	gateway, err := services.NewPaymentGateway(cfg.Payment, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize payment gateway: %v", err)
	}

	renderer, err := services.NewNotificationRenderer(cfg.Notify.FestName)
	if err != nil {
		logger.Fatalf("Failed to load notification templates: %v", err)
	}
	mailer, err := services.NewMailer(cfg.SMTP, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize mailer: %v", err)
	}
	dispatcher, err := services.NewNotificationDispatcher(cfg.Notify, renderer, mailer, deadLetterRepository, metrics, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize notification dispatcher: %v", err)
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if err := dispatcher.Start(workerCtx); err != nil {
		logger.Fatalf("Failed to start notification workers: %v", err)
	}
	logger.WithField("transport", cfg.Notify.Transport).Info("✓ Notification dispatcher started")

	orchestrator := services.NewPaymentOrchestratorService(
		gateway,
		services.NewProfileResolver(profileRepository, logger),
		services.NewRegistrationWriter(registrationRepository, festRepository, logger),
		eventRepository,
		profileRepository,
		auditRepository,
		dispatcher,
		metrics,
		services.PaymentOrchestratorConfig{DefaultCurrency: cfg.Payment.DefaultCurrency},
		logger,
	)

	rateLimiter := newRateLimiter(cfg, logger)
	adminAuthService := services.NewAdminAuthService(adminRepository, jwtService, logger)

	reconciler := services.NewReconciliationService(
		profileRepository,
		auditRepository,
		deadLetterRepository,
		festRepository,
		metrics,
		cfg.Reconcile,
		logger,
	)
	if err := reconciler.Start(); err != nil {
		logger.Fatalf("Failed to start reconciliation: %v", err)
	}

	logger.Info("Services initialized")

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(orchestrator, rateLimiter, logger)
	adminAuthHandler := handlers.NewAdminAuthHandler(adminAuthService, logger)
	adminHandler := handlers.NewAdminHandler(orchestrator, festRepository, reconciler, logger)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Metrics(metrics))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: !allowsAnyOrigin(cfg.CORS.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", handlers.HealthCheck(db, version))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		paymentHandler.RegisterRoutes(v1)

		adminAuth := v1.Group("/admin/auth")
		{
			adminAuth.POST("/login", adminAuthHandler.Login)
			adminAuth.POST("/refresh", adminAuthHandler.RefreshToken)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtService, logger), middleware.RequireRole(services.AdminRole))
		{
			admin.GET("/auth/me", adminAuthHandler.Me)
			admin.GET("/fest-registrations", adminHandler.ListFestRegistrations)
			admin.POST("/fest-registrations/:id/approve", adminHandler.ApproveFestRegistration)
			admin.POST("/notifications", adminHandler.SendNotification)
			admin.GET("/reconciliation", adminHandler.GetReconciliation)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second, // covers the gateway call plus persistence
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop intake first so in-flight requests can still queue their notifications
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	reconciler.Stop()
	if err := dispatcher.Drain(ctx); err != nil {
		logger.WithError(err).Warn("Notifications still pending at shutdown")
	}
	stopWorkers()
	dispatcher.Stop()

	logger.Info("Server exited successfully")
}

// newRateLimiter connects to Redis when REDIS_URL is set. Without it orders are not throttled.
func newRateLimiter(cfg *config.Config, logger *logrus.Logger) *services.RateLimitService {
	if cfg.Redis.URL == "" {
		logger.Info("REDIS_URL not set, order rate limiting disabled")
		return services.NewRateLimitService(nil, cfg.RateLimit, logger)
	}

	counter, err := services.NewRedisWindowCounter(context.Background(), cfg.Redis.URL)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, order rate limiting disabled")
		return services.NewRateLimitService(nil, cfg.RateLimit, logger)
	}

	logger.WithFields(logrus.Fields{
		"limit":  cfg.RateLimit.OrderRequests,
		"window": cfg.RateLimit.OrderWindow.String(),
	}).Info("✓ Order rate limiting enabled")
	return services.NewRateLimitService(counter, cfg.RateLimit, logger)
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
