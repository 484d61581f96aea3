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
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Payment   PaymentConfig
	SMTP      SMTPConfig
	Notify    NotifyConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Reconcile ReconcileConfig
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

// JWTConfig holds JWT-related configuration for the admin surface
type JWTConfig struct {
	Secret             string
	RefreshSecret      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// PaymentConfig holds Razorpay gateway configuration.
// TestMode swaps the live gateway and signature check for local fakes; it must be
// set explicitly and is never inferred from a missing secret.
type PaymentConfig struct {
	KeyID           string
	KeySecret       string // SECRET - never expose to client
	APIURL          string
	TestMode        bool
	DefaultCurrency string
}

// SMTPConfig holds the outbound mail relay configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Disabled bool // log-only mailer, for local development
}

// NotifyConfig controls the background notification queue
type NotifyConfig struct {
	Transport     string // "memory" or "rabbitmq"
	Workers       int
	BufferSize    int
	MaxRetries    int
	RetryDelay    time.Duration
	RabbitMQURL   string
	RabbitMQQueue string
	FestName      string // used in email subjects and bodies
}

// RedisConfig holds the optional Redis connection used for rate limiting
type RedisConfig struct {
	URL string
}

// RateLimitConfig holds order creation rate limits
type RateLimitConfig struct {
	OrderRequests int
	OrderWindow   time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// ReconcileConfig holds the reconciliation job schedule
type ReconcileConfig struct {
	Schedule  string        // cron expression with a seconds field
	OrphanAge time.Duration // profiles younger than this are not reported
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
			Secret:             getEnv("JWT_SECRET", ""),
			RefreshSecret:      getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenExpiry:  time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
			RefreshTokenExpiry: time.Duration(getEnvAsInt("JWT_REFRESH_TOKEN_EXPIRY", 604800)) * time.Second,
		},
		Payment: PaymentConfig{
			KeyID:           getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret:       getEnv("RAZORPAY_KEY_SECRET", ""),
			APIURL:          getEnv("RAZORPAY_API_URL", "https://api.razorpay.com"),
			TestMode:        getEnvAsBool("PAYMENT_TEST_MODE", false),
			DefaultCurrency: strings.ToUpper(getEnv("DEFAULT_CURRENCY", "INR")),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
			FromName: getEnv("SMTP_FROM_NAME", "Fest Team"),
			Disabled: getEnvAsBool("SMTP_DISABLED", false),
		},
		Notify: NotifyConfig{
			Transport:     getEnv("NOTIFY_TRANSPORT", "memory"),
			Workers:       getEnvAsInt("NOTIFY_WORKERS", 2),
			BufferSize:    getEnvAsInt("NOTIFY_BUFFER_SIZE", 64),
			MaxRetries:    getEnvAsInt("NOTIFY_MAX_RETRIES", 3),
			RetryDelay:    getEnvAsDuration("NOTIFY_RETRY_DELAY", 2*time.Second),
			RabbitMQURL:   getEnv("RABBITMQ_URL", ""),
			RabbitMQQueue: getEnv("RABBITMQ_QUEUE", "fest.notifications"),
			FestName:      getEnv("FEST_NAME", "Fest"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		RateLimit: RateLimitConfig{
			OrderRequests: getEnvAsInt("ORDER_RATE_LIMIT", 20),
			OrderWindow:   time.Duration(getEnvAsInt("ORDER_RATE_WINDOW_SECONDS", 600)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Request-ID"}),
		},
		Reconcile: ReconcileConfig{
			Schedule:  getEnv("RECONCILE_CRON", "0 */30 * * * *"),
			OrphanAge: getEnvAsDuration("RECONCILE_ORPHAN_AGE", time.Hour),
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

	if c.JWT.RefreshSecret == "" {
		return fmt.Errorf("JWT_REFRESH_SECRET is required")
	}

	if err := c.Payment.Validate(); err != nil {
		return err
	}

	if err := c.SMTP.Validate(); err != nil {
		return err
	}

	switch c.Notify.Transport {
	case "memory":
	case "rabbitmq":
		if c.Notify.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL is required when NOTIFY_TRANSPORT=rabbitmq")
		}
	default:
		return fmt.Errorf("invalid NOTIFY_TRANSPORT: %s (must be 'memory' or 'rabbitmq')", c.Notify.Transport)
	}

	return nil
}

// Validate checks gateway credentials. Test mode is the only way to run without them.
func (p PaymentConfig) Validate() error {
	if p.TestMode {
		return nil
	}
	if p.KeyID == "" {
		return fmt.Errorf("RAZORPAY_KEY_ID is required unless PAYMENT_TEST_MODE=true")
	}
	if p.KeySecret == "" {
		return fmt.Errorf("RAZORPAY_KEY_SECRET is required unless PAYMENT_TEST_MODE=true")
	}
	return nil
}

// Validate checks relay credentials. Missing credentials are a startup error.
func (s SMTPConfig) Validate() error {
	if s.Disabled {
		return nil
	}
	if s.Host == "" || s.Username == "" || s.Password == "" {
		return fmt.Errorf("SMTP_HOST, SMTP_USERNAME and SMTP_PASSWORD are required unless SMTP_DISABLED=true")
	}
	return nil
}

// SenderAddress returns the envelope sender, falling back to the relay username
func (s SMTPConfig) SenderAddress() string {
	if s.From != "" {
		return s.From
	}
	return s.Username
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
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
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
