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

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Store    StoreConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Workflow WorkflowConfig
	SLA      SLAConfig
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

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver     string
	SQLitePath string
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
	Enabled       bool
	Addr          string
	Password      string
	DB            int
	EventsChannel string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines how identity-provider tokens are verified.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// WorkflowConfig bounds the ticket workflow operations.
type WorkflowConfig struct {
	OperationTimeout      time.Duration
	NotificationTimeout   time.Duration
	ConflictRetries       int
	AutoCloseAfter        time.Duration
	AutoCloseInterval     time.Duration
	AutoCloseBatchSize    int
	SessionTimeoutMinutes int
}

// SLAConfig points at an optional policy file.
type SLAConfig struct {
	PolicyFile string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-workflow"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
			SQLitePath: getEnv("SQLITE_PATH", "data/tickets.db"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Enabled:       getEnvAsBool("REDIS_ENABLED", false),
			Addr:          getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            redisDB,
			EventsChannel: getEnv("REDIS_EVENTS_CHANNEL", "ticket-events"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:    os.Getenv("AUTH_JWT_ISSUER"),
		},
		Workflow: WorkflowConfig{
			OperationTimeout:      getEnvAsDuration("WORKFLOW_OPERATION_TIMEOUT", 5*time.Second),
			NotificationTimeout:   getEnvAsDuration("WORKFLOW_NOTIFICATION_TIMEOUT", 2*time.Second),
			ConflictRetries:       getEnvAsInt("WORKFLOW_CONFLICT_RETRIES", 1),
			AutoCloseAfter:        getEnvAsDuration("WORKFLOW_AUTO_CLOSE_AFTER", 72*time.Hour),
			AutoCloseInterval:     getEnvAsDuration("WORKFLOW_AUTO_CLOSE_INTERVAL", 15*time.Minute),
			AutoCloseBatchSize:    getEnvAsInt("WORKFLOW_AUTO_CLOSE_BATCH", 100),
			SessionTimeoutMinutes: getEnvAsInt("SESSION_TIMEOUT_MINUTES", 30),
		},
		SLA: SLAConfig{
			PolicyFile: os.Getenv("SLA_POLICY_FILE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultWorkflow returns the workflow settings used when nothing is configured.
func DefaultWorkflow() WorkflowConfig {
	return WorkflowConfig{
		OperationTimeout:      5 * time.Second,
		NotificationTimeout:   2 * time.Second,
		ConflictRetries:       1,
		AutoCloseAfter:        72 * time.Hour,
		AutoCloseInterval:     15 * time.Minute,
		AutoCloseBatchSize:    100,
		SessionTimeoutMinutes: 30,
	}
}

// Validate checks bounds on every setting that the workflow depends on.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverPostgres:
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres driver"))
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	if err := c.Workflow.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate checks workflow bounds.
func (w WorkflowConfig) Validate() error {
	var errs []error
	if w.OperationTimeout < 100*time.Millisecond || w.OperationTimeout > 5*time.Minute {
		errs = append(errs, fmt.Errorf("operation timeout %s outside 100ms..5m", w.OperationTimeout))
	}
	if w.NotificationTimeout <= 0 || w.NotificationTimeout > w.OperationTimeout {
		errs = append(errs, fmt.Errorf("notification timeout %s must be positive and not exceed the operation timeout", w.NotificationTimeout))
	}
	if w.ConflictRetries < 0 || w.ConflictRetries > 3 {
		errs = append(errs, fmt.Errorf("conflict retries %d outside 0..3", w.ConflictRetries))
	}
	if w.AutoCloseAfter < time.Hour {
		errs = append(errs, fmt.Errorf("auto-close window %s must be at least 1h", w.AutoCloseAfter))
	}
	if w.AutoCloseInterval <= 0 {
		errs = append(errs, errors.New("auto-close interval must be positive"))
	}
	if w.AutoCloseBatchSize <= 0 {
		errs = append(errs, errors.New("auto-close batch size must be positive"))
	}
	if w.SessionTimeoutMinutes < 5 || w.SessionTimeoutMinutes > 1440 {
		errs = append(errs, fmt.Errorf("session timeout %d minutes outside 5..1440", w.SessionTimeoutMinutes))
	}
	return errors.Join(errs...)
}

// SessionTimeout returns the session timeout as a duration.
func (w WorkflowConfig) SessionTimeout() time.Duration {
	return time.Duration(w.SessionTimeoutMinutes) * time.Minute
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

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
