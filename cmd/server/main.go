package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/islandtours/tour-booking-backend/internal/config"
	"github.com/islandtours/tour-booking-backend/internal/database"
	"github.com/islandtours/tour-booking-backend/internal/handlers"
	"github.com/islandtours/tour-booking-backend/internal/middleware"
	"github.com/islandtours/tour-booking-backend/internal/services"
	"github.com/islandtours/tour-booking-backend/pkg/jwt"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
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

	logger.Info("Starting Island Tours Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
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

	// Initialize repositories
	tourRepo := database.NewTourRepository(db)
	tourRepo.SetMaxRetries(cfg.Booking.ReserveMaxRetries)
	bookingRepo := database.NewBookingRepository(db, tourRepo)
	paymentRepo := database.NewPaymentRepository(db)
	auditRepo := database.NewPaymentAuditRepository(db, logger)

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	notificationService := services.NewNotificationService(logger, cfg.Notification.WebhookURL)
	bookingService := services.NewBookingService(
		bookingRepo,
		tourRepo,
		auditRepo,
		notificationService,
		logger,
		cfg.Booking.ExpiryGracePeriod,
	)
	paymentService := services.NewPaymentService(
		paymentRepo,
		auditRepo,
		bookingService,
		&cfg.Payment,
		logger,
	)

	// Start the expiry sweeper
	sweeperService := services.NewSweeperService(
		bookingService,
		bookingRepo,
		paymentRepo,
		auditRepo,
		logger,
		cfg.Sweeper,
	)
	if err := sweeperService.Start(); err != nil {
		logger.Fatalf("Failed to start expiry sweeper: %v", err)
	}

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(bookingService, paymentService)
	tourHandler := handlers.NewTourHandler(tourRepo)
	webhookHandler := handlers.NewPaymentWebhookHandler(paymentService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Tour catalog (public)
		tours := v1.Group("/tours")
		{
			tours.GET("", tourHandler.ListTours)
			tours.GET("/:id", tourHandler.GetTour)
			tours.GET("/:id/availability", tourHandler.GetTourAvailability)
		}

		// Bookings (protected)
		bookings := v1.Group("/bookings")
		bookings.Use(middleware.AuthMiddleware(jwtService))
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.GET("", bookingHandler.ListBookings)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
			bookings.POST("/:id/payment", bookingHandler.InitiatePayment)
		}

		// Gateway webhook (machine-to-machine, signature-verified, no session)
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/payment", webhookHandler.HandleWebhook)
		}
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Infof("Server listening on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop the sweeper before closing the database
	sweeperService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
		} else {
			status := c.Writer.Status()
			if status >= 500 {
				entry.Error("Request completed with server error")
			} else if status >= 400 {
				entry.Warn("Request completed with client error")
			} else {
				entry.Info("Request completed successfully")
			}
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
