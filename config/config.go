package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// minSecretLength is the shortest SESSION_SECRET accepted in production.
const minSecretLength = 32

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Database      DatabaseConfig
	Session       SessionConfig
	Wizard        WizardConfig
	Mail          MailConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver       string
	SeedUsers    bool // seed the demo staff accounts on start
	SeedPassword string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// SessionConfig controls session tokens and the session cookie.
type SessionConfig struct {
	Secret       string
	Issuer       string
	TTL          time.Duration
	RememberTTL  time.Duration
	CookieName   string
	CookieSecure bool
	CheckTimeout time.Duration
	RevokedCap   int
}

// WizardConfig controls the sign-up wizard.
type WizardConfig struct {
	CookieName      string
	ProgressTTL     time.Duration
	CodeTTL         time.Duration
	MaxCodeAttempts int
	OwnerRole       string
}

// MailConfig holds outbound e-mail settings for verification codes.
// With no ResendAPIKey, codes are written to the log instead.
type MailConfig struct {
	ResendAPIKey string
	FromAddress  string
	Timeout      time.Duration
}

// RateLimitConfig throttles failed sign-ins per client address and identifier.
// LoginMaxAttempts of zero disables the limit.
type RateLimitConfig struct {
	LoginMaxAttempts int
	LoginWindow      time.Duration
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
	AuditWorkers   int
	AuditBuffer    int
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Storage: StorageConfig{
			Driver:       strings.ToLower(getEnv("STORAGE_DRIVER", StorageMemory)),
			SeedUsers:    getEnvAsBool("SEED_USERS", true),
			SeedPassword: getEnv("SEED_PASSWORD", "silvergym-demo"),
		},
		Database: loadDatabaseConfig(),
		Session: SessionConfig{
			Secret:       getEnv("SESSION_SECRET", ""),
			Issuer:       getEnv("SESSION_ISSUER", "silver-gym"),
			TTL:          getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			RememberTTL:  getEnvAsDuration("SESSION_REMEMBER_TTL", 30*24*time.Hour),
			CookieName:   getEnv("SESSION_COOKIE_NAME", "gym_session"),
			CookieSecure: getEnvAsBool("SESSION_COOKIE_SECURE", false),
			CheckTimeout: getEnvAsDuration("SESSION_CHECK_TIMEOUT", 5*time.Second),
			RevokedCap:   getEnvAsInt("SESSION_REVOKED_CAPACITY", 10000),
		},
		Wizard: WizardConfig{
			CookieName:      getEnv("WIZARD_COOKIE_NAME", "gym_signup"),
			ProgressTTL:     getEnvAsDuration("WIZARD_PROGRESS_TTL", 7*24*time.Hour),
			CodeTTL:         getEnvAsDuration("WIZARD_CODE_TTL", 15*time.Minute),
			MaxCodeAttempts: getEnvAsInt("WIZARD_MAX_CODE_ATTEMPTS", 5),
			OwnerRole:       getEnv("WIZARD_OWNER_ROLE", "admin"),
		},
		Mail: MailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			FromAddress:  getEnv("MAIL_FROM", "Silver Gym <no-reply@silvergym.app>"),
			Timeout:      getEnvAsDuration("MAIL_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			LoginMaxAttempts: getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
			LoginWindow:      getEnvAsDuration("LOGIN_ATTEMPT_WINDOW", 15*time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			AuditWorkers:   getEnvAsInt("AUDIT_WORKERS", 2),
			AuditBuffer:    getEnvAsInt("AUDIT_BUFFER", 256),
		},
	}

	if cfg.Session.Secret == "" && !cfg.IsProduction() {
		cfg.Session.Secret = "development-only-session-secret-change-me"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	default:
		return fmt.Errorf("unknown storage driver %q (want %s or %s)", c.Storage.Driver, StorageMemory, StoragePostgres)
	}

	if c.Session.Secret == "" {
		return fmt.Errorf("session secret is required")
	}
	if c.IsProduction() && len(c.Session.Secret) < minSecretLength {
		return fmt.Errorf("session secret must be at least %d bytes in production", minSecretLength)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Session.RememberTTL < c.Session.TTL {
		return fmt.Errorf("remember-me TTL must not be shorter than session TTL")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}

	if c.Wizard.MaxCodeAttempts <= 0 {
		return fmt.Errorf("wizard max code attempts must be positive")
	}
	if c.Wizard.CookieName == "" || c.Wizard.CookieName == c.Session.CookieName {
		return fmt.Errorf("wizard cookie name must be set and differ from the session cookie")
	}

	if c.IsProduction() && c.Mail.ResendAPIKey == "" {
		return fmt.Errorf("RESEND_API_KEY is required in production")
	}

	if c.RateLimit.LoginMaxAttempts > 0 && c.RateLimit.LoginWindow <= 0 {
		return fmt.Errorf("login attempt window must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "gym"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "silver_gym"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
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
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
