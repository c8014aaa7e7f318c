// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the reservation service
type Config struct {
	App         AppConfig
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Reservation ReservationConfig
	Payment     PaymentConfig
	Security    SecurityConfig
	Logging     LoggingConfig
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Debug       bool
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Driver       string // postgres or memory
	Host         string
	Port         string
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SeedData     bool
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// KafkaConfig contains event transport configuration
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	GroupID string
	Topics  TopicConfig
}

// TopicConfig names every topic the service reads or writes
type TopicConfig struct {
	OrderCreated           string
	PaymentFailed          string
	InventoryReserved      string
	StockReserved          string
	StockReservationFailed string
	PaymentCompleted       string
}

// ReservationConfig tunes the reservation saga
type ReservationConfig struct {
	LockTTL             time.Duration
	LockWait            time.Duration
	LockRetryInterval   time.Duration
	ReservationTTL      time.Duration
	CompensateOnFailure bool
	ExpirySweepInterval time.Duration
}

// PaymentConfig tunes the payment saga and its gateway
type PaymentConfig struct {
	Gateway        string // mock or http
	GatewayURL     string
	GatewayKey     string
	GatewayTimeout time.Duration
	SuccessRate    float64
	IdempotencyTTL time.Duration
	LockTTL        time.Duration
}

// SecurityConfig contains request-protection configuration
type SecurityConfig struct {
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	config := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Stock Reservation Service"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
			Debug:       getEnvAsBool("APP_DEBUG", true),
		},
		Server: ServerConfig{
			Port:           getEnv("APP_PORT", "8080"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Name:         getEnv("DB_NAME", "inventory_db"),
			User:         getEnv("DB_USER", "inventory_user"),
			Password:     getEnv("DB_PASSWORD", "inventory_password"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 300*time.Second),
			SeedData:     getEnvAsBool("DB_SEED_DATA", false),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvAsBool("KAFKA_ENABLED", false),
			Brokers: getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "stock-reservation"),
			Topics: TopicConfig{
				OrderCreated:           getEnv("KAFKA_TOPIC_ORDER_CREATED", "order.created"),
				PaymentFailed:          getEnv("KAFKA_TOPIC_PAYMENT_FAILED", "payment.failed"),
				InventoryReserved:      getEnv("KAFKA_TOPIC_INVENTORY_RESERVED", "inventory.reserved"),
				StockReserved:          getEnv("KAFKA_TOPIC_STOCK_RESERVED", "stock.reserved"),
				StockReservationFailed: getEnv("KAFKA_TOPIC_STOCK_RESERVATION_FAILED", "stock.reservation_failed"),
				PaymentCompleted:       getEnv("KAFKA_TOPIC_PAYMENT_COMPLETED", "payment.completed"),
			},
		},
		Reservation: ReservationConfig{
			LockTTL:             getEnvAsDuration("RESERVATION_LOCK_TTL", 30*time.Second),
			LockWait:            getEnvAsDuration("RESERVATION_LOCK_WAIT", 0),
			LockRetryInterval:   getEnvAsDuration("RESERVATION_LOCK_RETRY_INTERVAL", 50*time.Millisecond),
			ReservationTTL:      getEnvAsDuration("RESERVATION_TTL", 30*time.Minute),
			CompensateOnFailure: getEnvAsBool("RESERVATION_COMPENSATE_ON_FAILURE", true),
			ExpirySweepInterval: getEnvAsDuration("RESERVATION_EXPIRY_SWEEP_INTERVAL", time.Minute),
		},
		Payment: PaymentConfig{
			Gateway:        getEnv("PAYMENT_GATEWAY", "mock"),
			GatewayURL:     getEnv("PAYMENT_GATEWAY_URL", ""),
			GatewayKey:     getEnv("PAYMENT_GATEWAY_KEY", ""),
			GatewayTimeout: getEnvAsDuration("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second),
			SuccessRate:    getEnvAsFloat("PAYMENT_MOCK_SUCCESS_RATE", 0.8),
			IdempotencyTTL: getEnvAsDuration("PAYMENT_IDEMPOTENCY_TTL", 24*time.Hour),
			LockTTL:        getEnvAsDuration("PAYMENT_LOCK_TTL", 30*time.Second),
		},
		Security: SecurityConfig{
			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 600),
			CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			CORSAllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "OPTIONS"}),
			CORSAllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "X-Request-ID"}),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("DB_NAME is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("DB_USER is required")
		}
	case "memory":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or memory, got %q", c.Database.Driver)
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("APP_PORT is required")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}

	if c.Reservation.LockTTL <= 0 {
		return fmt.Errorf("RESERVATION_LOCK_TTL must be positive")
	}
	if c.Reservation.ReservationTTL <= 0 {
		return fmt.Errorf("RESERVATION_TTL must be positive")
	}
	if c.Reservation.LockWait > 0 && c.Reservation.LockRetryInterval <= 0 {
		return fmt.Errorf("RESERVATION_LOCK_RETRY_INTERVAL must be positive when RESERVATION_LOCK_WAIT is set")
	}
	if c.Reservation.ExpirySweepInterval <= 0 {
		return fmt.Errorf("RESERVATION_EXPIRY_SWEEP_INTERVAL must be positive")
	}
	if c.Payment.LockTTL <= 0 {
		return fmt.Errorf("PAYMENT_LOCK_TTL must be positive")
	}
	if c.Payment.IdempotencyTTL <= 0 {
		return fmt.Errorf("PAYMENT_IDEMPOTENCY_TTL must be positive")
	}

	switch c.Payment.Gateway {
	case "mock":
		if c.Payment.SuccessRate < 0 || c.Payment.SuccessRate > 1 {
			return fmt.Errorf("PAYMENT_MOCK_SUCCESS_RATE must be within [0,1]")
		}
	case "http":
		if c.Payment.GatewayURL == "" {
			return fmt.Errorf("PAYMENT_GATEWAY_URL is required for the http gateway")
		}
	default:
		return fmt.Errorf("PAYMENT_GATEWAY must be mock or http, got %q", c.Payment.Gateway)
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
