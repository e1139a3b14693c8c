package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinCredentialSecretBytes is the shortest credential signing key accepted at startup.
const MinCredentialSecretBytes = 32

// MinSessionSecretBytes is the shortest session token signing key accepted at startup.
const MinSessionSecretBytes = 32

// Access log storage backends.
const (
	AccessLogBackendPostgres = "postgres"
	AccessLogBackendRedis    = "redis"
	AccessLogBackendMemory   = "memory"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Access    AccessConfig
	Events    EventsConfig
	RateLimit RateLimitConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines session authentication parameters.
type AuthConfig struct {
	JWTSecret              string
	AccessTokenTTLMinutes  int
	BcryptCost             int
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// AccessConfig drives credential issuance and validation.
type AccessConfig struct {
	CredentialSecret      string
	ValidityWindowSeconds int
	OracleTimeoutSeconds  int
	RetentionHours        int
	PruneIntervalMinutes  int
	LogBackend            string
	QRCodeSize            int
}

// EventsConfig configures access event fan-out.
type EventsConfig struct {
	AMQPURL               string
	AMQPExchange          string
	WebhookURL            string
	WebhookTimeoutSeconds int
	QueueSize             int
}

// RateLimitConfig bounds login attempts.
type RateLimitConfig struct {
	LoginPerSecond float64
	LoginBurst     int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	dsn := os.Getenv("POSTGRES_DSN")
	defaultBackend := AccessLogBackendPostgres
	if dsn == "" {
		defaultBackend = AccessLogBackendMemory
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "gym-access-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 15),
		},
		Postgres: PostgresConfig{
			DSN:            dsn,
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:              os.Getenv("AUTH_JWT_SECRET"),
			AccessTokenTTLMinutes:  getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:             getEnvAsInt("AUTH_BCRYPT_COST", 12),
			BootstrapAdminEmail:    os.Getenv("AUTH_BOOTSTRAP_ADMIN_EMAIL"),
			BootstrapAdminPassword: os.Getenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD"),
		},
		Access: AccessConfig{
			CredentialSecret:      os.Getenv("ACCESS_CREDENTIAL_SECRET"),
			ValidityWindowSeconds: getEnvAsInt("ACCESS_VALIDITY_WINDOW_SECONDS", 30),
			OracleTimeoutSeconds:  getEnvAsInt("ACCESS_ORACLE_TIMEOUT_SECONDS", 5),
			RetentionHours:        getEnvAsInt("ACCESS_LOG_RETENTION_HOURS", 24),
			PruneIntervalMinutes:  getEnvAsInt("ACCESS_LOG_PRUNE_INTERVAL_MINUTES", 10),
			LogBackend:            strings.ToLower(getEnv("ACCESS_LOG_BACKEND", defaultBackend)),
			QRCodeSize:            getEnvAsInt("ACCESS_QR_SIZE", 256),
		},
		Events: EventsConfig{
			AMQPURL:               os.Getenv("EVENTS_AMQP_URL"),
			AMQPExchange:          getEnv("EVENTS_AMQP_EXCHANGE", "gym.access"),
			WebhookURL:            os.Getenv("EVENTS_WEBHOOK_URL"),
			WebhookTimeoutSeconds: getEnvAsInt("EVENTS_WEBHOOK_TIMEOUT_SECONDS", 5),
			QueueSize:             getEnvAsInt("EVENTS_QUEUE_SIZE", 256),
		},
		RateLimit: RateLimitConfig{
			LoginPerSecond: getEnvAsFloat("RATE_LIMIT_LOGIN_PER_SECOND", 5),
			LoginBurst:     getEnvAsInt("RATE_LIMIT_LOGIN_BURST", 10),
		},
	}

	if err := cfg.Auth.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Access.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects session settings that would let tokens be forged or never expire.
func (a AuthConfig) Validate() error {
	if len(a.JWTSecret) < MinSessionSecretBytes {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least %d bytes", MinSessionSecretBytes)
	}
	if a.AccessTokenTTLMinutes <= 0 {
		return errors.New("AUTH_ACCESS_TOKEN_TTL_MINUTES must be positive")
	}
	return nil
}

// Validate rejects access settings that would make the credential core unsafe.
func (a AccessConfig) Validate() error {
	if len(a.CredentialSecret) < MinCredentialSecretBytes {
		return fmt.Errorf("ACCESS_CREDENTIAL_SECRET must be at least %d bytes", MinCredentialSecretBytes)
	}
	if a.ValidityWindowSeconds <= 0 {
		return errors.New("ACCESS_VALIDITY_WINDOW_SECONDS must be positive")
	}
	if a.OracleTimeoutSeconds <= 0 || a.OracleTimeoutSeconds >= a.ValidityWindowSeconds {
		return errors.New("ACCESS_ORACLE_TIMEOUT_SECONDS must be positive and shorter than the validity window")
	}
	if a.Retention() < a.ValidityWindow() {
		return errors.New("ACCESS_LOG_RETENTION_HOURS must cover the validity window")
	}
	switch a.LogBackend {
	case AccessLogBackendPostgres, AccessLogBackendRedis, AccessLogBackendMemory:
	default:
		return fmt.Errorf("unknown ACCESS_LOG_BACKEND %q", a.LogBackend)
	}
	return nil
}

// ValidityWindow is the lifetime of an issued credential.
func (a AccessConfig) ValidityWindow() time.Duration {
	return time.Duration(a.ValidityWindowSeconds) * time.Second
}

// OracleTimeout bounds a single membership query.
func (a AccessConfig) OracleTimeout() time.Duration {
	return time.Duration(a.OracleTimeoutSeconds) * time.Second
}

// Retention is how long validation records are kept.
func (a AccessConfig) Retention() time.Duration {
	return time.Duration(a.RetentionHours) * time.Hour
}

// PruneInterval is the period of the retention worker.
func (a AccessConfig) PruneInterval() time.Duration {
	if a.PruneIntervalMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(a.PruneIntervalMinutes) * time.Minute
}

// WebhookTimeout bounds one webhook delivery.
func (e EventsConfig) WebhookTimeout() time.Duration {
	if e.WebhookTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(e.WebhookTimeoutSeconds) * time.Second
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
