package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	MongoDB MongoDBConfig
	Redis   RedisConfig
	JWT     JWTConfig
	Auth    AuthConfig
	Cookie  CookieConfig
	OTEL    OTELConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string
	IdempotencyTTL time.Duration
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
}

// JWTConfig holds access token signing configuration
type JWTConfig struct {
	Key               string
	Audience          string
	Issuer            string
	Subject           string
	AccessTokenExpiry time.Duration
}

// AuthConfig holds session lifecycle configuration
type AuthConfig struct {
	RefreshTokenExpiryDays int
	BindDevice             bool // embed the device identifier in every access token
	OperationTimeout       time.Duration
	BcryptCost             int
}

// CookieConfig holds cookie names and security attributes
type CookieConfig struct {
	RefreshName string
	ClientName  string // device identifier cookie / query param
	HTTPSOnly   bool
	Secret      string // base64 encoded 32-byte key for encryptcookie
}

// OTELConfig holds OpenTelemetry exporter configuration
type OTELConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	InstanceID     string
	Token          string
}

// RefreshTokenExpiry returns the refresh lifetime as a duration
func (a AuthConfig) RefreshTokenExpiry() time.Duration {
	return time.Duration(a.RefreshTokenExpiryDays) * 24 * time.Hour
}

// Load reads configuration from environment variables
// It attempts to load from .env file first, then falls back to system env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "4000"),
			IdempotencyTTL: getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		MongoDB: MongoDBConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "deviceauth"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Key:               getEnv("JWT_KEY", ""),
			Audience:          getEnv("JWT_AUDIENCE", "device-auth"),
			Issuer:            getEnv("JWT_ISSUER", "http://localhost:4000"),
			Subject:           getEnv("JWT_SUBJECT", "Device management API"),
			AccessTokenExpiry: getEnvAsDuration("JWT_EXPIRATION", 15*time.Minute),
		},
		Auth: AuthConfig{
			RefreshTokenExpiryDays: int(getEnvAsInt64("REFRESH_EXPIRATION", 30)),
			BindDevice:             getEnvAsBool("AUTH_BIND_DEVICE", true),
			OperationTimeout:       getEnvAsDuration("AUTH_OPERATION_TIMEOUT", 5*time.Second),
			BcryptCost:             int(getEnvAsInt64("BCRYPT_COST", 10)),
		},
		Cookie: CookieConfig{
			RefreshName: getEnv("REFRESH_COOKIE", "device_token"),
			ClientName:  getEnv("CLIENT_COOKIE", "client_id"),
			HTTPSOnly:   getEnvAsBool("HTTPS_ONLY", false),
			Secret:      getEnv("COOKIE_SECRET", ""),
		},
		OTEL: OTELConfig{
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "deviceauth"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("OTEL_ENVIRONMENT", "development"),
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			InstanceID:     getEnv("OTEL_INSTANCE_ID", ""),
			Token:          getEnv("OTEL_TOKEN", ""),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.JWT.Key == "" {
		return fmt.Errorf("JWT_KEY is required")
	}
	if c.JWT.AccessTokenExpiry <= 0 {
		return fmt.Errorf("JWT_EXPIRATION must be positive")
	}
	if c.Auth.RefreshTokenExpiryDays <= 0 {
		return fmt.Errorf("REFRESH_EXPIRATION must be a positive number of days")
	}
	if c.Auth.OperationTimeout <= 0 {
		return fmt.Errorf("AUTH_OPERATION_TIMEOUT must be positive")
	}
	if c.Cookie.Secret == "" {
		return fmt.Errorf("COOKIE_SECRET is required")
	}
	key, err := base64.StdEncoding.DecodeString(c.Cookie.Secret)
	if err != nil || len(key) != 32 {
		return fmt.Errorf("COOKIE_SECRET must be a base64 encoded 32-byte key")
	}
	if c.OTEL.Enabled && c.OTEL.Endpoint == "" {
		return fmt.Errorf("OTEL_EXPORTER_OTLP_ENDPOINT is required when OTEL_ENABLED is set")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt64 retrieves an environment variable as int64 or returns a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool retrieves an environment variable as bool or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as time.Duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
