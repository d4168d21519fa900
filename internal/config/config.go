package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// WebhookPath is the route the payment provider calls back on.
const WebhookPath = "/v1/webhooks/mercadopago"

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Gateway  GatewayConfig
	Auth     AuthConfig
	Ledger   LedgerConfig
	Kafka    KafkaConfig
	Logs     LogsConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// PublicBaseURL is the externally reachable address of this deployment,
	// used to build the notification URL handed to the provider.
	PublicBaseURL string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// GatewayConfig holds Mercado Pago credentials and client settings.
type GatewayConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	Description string
}

// AuthConfig holds the settings used to verify donor bearer tokens.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// LedgerConfig selects and configures the donation ledger backend.
type LedgerConfig struct {
	Backend        string // "postgres" or "dynamodb"
	DynamoTable    string
	DynamoRegion   string
	DynamoEndpoint string

	// DynamoRecentIndex is the status/created_at_ms GSI used by the public
	// feed. Empty falls back to scanning the table.
	DynamoRecentIndex string
}

// KafkaConfig holds the confirmation retry queue settings.
type KafkaConfig struct {
	Brokers     []string
	RetryTopic  string
	GroupID     string
	MaxAttempts int
}

// LogsConfig holds remote log shipping configuration.
type LogsConfig struct {
	LokiURL string
}

// MetricsConfig holds metrics push configuration.
type MetricsConfig struct {
	PushURL      string
	PushInterval time.Duration
}

// Load loads configuration from environment variables, reading an optional
// .env file first.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:          getEnv("SERVER_PORT", "8080"),
			ReadTimeout:   getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:  getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
			PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "donations"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "donations-service"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Gateway: GatewayConfig{
			BaseURL:     strings.TrimRight(getEnv("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com"), "/"),
			AccessToken: getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
			Timeout:     getDurationEnv("MERCADOPAGO_TIMEOUT", 10*time.Second),
			Description: getEnv("DONATION_DESCRIPTION", "Doação para Animus ONG"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", ""),
		},
		Ledger: LedgerConfig{
			Backend:           getEnv("LEDGER_BACKEND", "postgres"),
			DynamoTable:       getEnv("DYNAMODB_DONATIONS_TABLE", "donations"),
			DynamoRegion:      getEnv("AWS_REGION", "us-east-1"),
			DynamoEndpoint:    getEnv("DYNAMODB_ENDPOINT", ""),
			DynamoRecentIndex: getEnv("DYNAMODB_RECENT_INDEX", "status-created_at_ms-index"),
		},
		Kafka: KafkaConfig{
			Brokers:     getListEnv("KAFKA_BROKERS"),
			RetryTopic:  getEnv("KAFKA_RETRY_TOPIC", "donation-confirmations-retry"),
			GroupID:     getEnv("KAFKA_GROUP_ID", "donations-service"),
			MaxAttempts: getIntEnv("KAFKA_RETRY_MAX_ATTEMPTS", 5),
		},
		Logs: LogsConfig{
			LokiURL: getEnv("LOKI_URL", ""),
		},
		Metrics: MetricsConfig{
			PushURL:      getEnv("METRICS_PUSH_URL", ""),
			PushInterval: getDurationEnv("METRICS_PUSH_INTERVAL", 15*time.Second),
		},
	}
}

// Validate reports settings without which the service cannot run.
func (c *Config) Validate() error {
	var errs []error
	if c.Gateway.AccessToken == "" {
		errs = append(errs, errors.New("MERCADOPAGO_ACCESS_TOKEN is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Ledger.Backend != "postgres" && c.Ledger.Backend != "dynamodb" {
		errs = append(errs, errors.New("LEDGER_BACKEND must be postgres or dynamodb"))
	}
	return errors.Join(errs...)
}

// WebhookURL returns the notification URL registered on every created charge.
func (c *Config) WebhookURL() string {
	return c.Server.PublicBaseURL + WebhookPath
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
