package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	JWT          JWTConfig
	Booking      BookingConfig
	Sweeper      SweeperConfig
	Payment      PaymentConfig
	Notification NotificationConfig
	CORS         CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// BookingConfig holds booking lifecycle configuration
type BookingConfig struct {
	// ExpiryGracePeriod is how long a pending booking holds its seats
	// before the sweeper releases them.
	ExpiryGracePeriod time.Duration
	// ReserveMaxRetries bounds transaction retries on deadlock/serialization
	// failures during seat reservation.
	ReserveMaxRetries int
}

// SweeperConfig holds expiry sweeper configuration
type SweeperConfig struct {
	// Schedule is a cron spec with seconds precision.
	Schedule string
	// BatchSize caps how many expired bookings one sweep processes.
	BatchSize int
	// PaymentPendingTimeout is how long a payment may sit pending before
	// it is flagged for reconciliation.
	PaymentPendingTimeout time.Duration
}

// PaymentConfig holds payment gateway configuration
type PaymentConfig struct {
	Environment   string // "sandbox" or "production"
	GatewayURL    string
	MerchantKey   string
	MerchantToken string // SECRET - never expose to client
	ReturnURL     string
	WebhookURL    string
	Currency      string
}

// NotificationConfig holds booking notification configuration
type NotificationConfig struct {
	// WebhookURL receives booking lifecycle events. Empty means events are
	// only logged.
	WebhookURL string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Booking: BookingConfig{
			ExpiryGracePeriod: time.Duration(getEnvAsInt("BOOKING_EXPIRY_MINUTES", 30)) * time.Minute,
			ReserveMaxRetries: getEnvAsInt("BOOKING_RESERVE_MAX_RETRIES", 5),
		},
		Sweeper: SweeperConfig{
			Schedule:              getEnv("SWEEPER_SCHEDULE", "0 * * * * *"),
			BatchSize:             getEnvAsInt("SWEEPER_BATCH_SIZE", 100),
			PaymentPendingTimeout: time.Duration(getEnvAsInt("PAYMENT_PENDING_TIMEOUT_MINUTES", 60)) * time.Minute,
		},
		Payment: PaymentConfig{
			Environment:   getEnv("PAYMENT_ENVIRONMENT", "sandbox"),
			GatewayURL:    getEnv("PAYMENT_GATEWAY_URL", ""),
			MerchantKey:   getEnv("PAYMENT_MERCHANT_KEY", ""),
			MerchantToken: getEnv("PAYMENT_MERCHANT_TOKEN", ""),
			ReturnURL:     getEnv("PAYMENT_RETURN_URL", ""),
			WebhookURL:    getEnv("PAYMENT_WEBHOOK_URL", ""),
			Currency:      getEnv("PAYMENT_CURRENCY", "USD"),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFICATION_WEBHOOK_URL", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.ExpiryGracePeriod <= 0 {
		return fmt.Errorf("BOOKING_EXPIRY_MINUTES must be positive")
	}

	// Gateway credentials only matter once payments leave sandbox
	if c.Payment.Environment == "production" {
		if c.Payment.MerchantKey == "" {
			return fmt.Errorf("PAYMENT_MERCHANT_KEY is required in production mode")
		}
		if c.Payment.MerchantToken == "" {
			return fmt.Errorf("PAYMENT_MERCHANT_TOKEN is required in production mode")
		}
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
