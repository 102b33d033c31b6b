package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const minJWTSecretLen = 16

type Config struct {
	APIPort string
	JWTKey  []byte
	JWTExp  time.Duration

	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSslMode     string
	DBAutoMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TaskEventQueue string
	// HistoryWorkerInProcess runs the history worker inside the API server.
	// Disable it when cmd/worker is deployed separately.
	HistoryWorkerInProcess bool

	LogLevel  slog.Level
	LogFormat string

	CORSAllowedOrigins []string
	MaxBodyBytes       int64

	UserCacheSize int
	UserCacheTTL  time.Duration
	BcryptCost    int

	BootstrapAdminUsername string
	BootstrapAdminPassword string

	ShutdownTimeout time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on environment variables")
	}

	cfg := &Config{
		APIPort:                getEnv("API_PORT", "8080"),
		JWTKey:                 []byte(getEnv("JWT_SECRET", "")),
		DBHost:                 getEnv("DB_HOST", "localhost"),
		DBPort:                 getEnv("DB_PORT", "5432"),
		DBUser:                 getEnv("DB_USER", "taskweb"),
		DBPassword:             getEnv("DB_PASSWORD", "taskweb"),
		DBName:                 getEnv("DB_NAME", "taskweb"),
		DBSslMode:              getEnv("DB_SSLMODE", "disable"),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		TaskEventQueue:         getEnv("TASK_EVENT_QUEUE", "taskweb:task_events"),
		LogFormat:              getEnv("LOG_FORMAT", "text"),
		CORSAllowedOrigins:     parseCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		BootstrapAdminUsername: getEnv("BOOTSTRAP_ADMIN_USERNAME", ""),
		BootstrapAdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
	}

	var err error
	hours, err := getEnvAsInt("JWT_EXPIRATION_HOURS", 72)
	if err != nil {
		return nil, err
	}
	cfg.JWTExp = time.Duration(hours) * time.Hour

	if cfg.RedisDB, err = getEnvAsInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.DBAutoMigrate, err = getEnvAsBool("DB_AUTOMIGRATE", true); err != nil {
		return nil, err
	}
	if cfg.HistoryWorkerInProcess, err = getEnvAsBool("HISTORY_WORKER_INPROCESS", true); err != nil {
		return nil, err
	}
	if cfg.UserCacheSize, err = getEnvAsInt("USER_CACHE_SIZE", 512); err != nil {
		return nil, err
	}
	if cfg.UserCacheTTL, err = getEnvAsDuration("USER_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.BcryptCost, err = getEnvAsInt("BCRYPT_COST", bcrypt.DefaultCost); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	maxBody, err := getEnvAsInt("MAX_BODY_BYTES", 10<<10)
	if err != nil {
		return nil, err
	}
	cfg.MaxBodyBytes = int64(maxBody)

	if cfg.LogLevel, err = ParseLogLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.APIPort); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("API_PORT: invalid port %q", c.APIPort))
	}
	if len(c.JWTKey) < minJWTSecretLen {
		errs = append(errs, fmt.Errorf("JWT_SECRET: must be at least %d bytes", minJWTSecretLen))
	}
	if c.JWTExp <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRATION_HOURS: must be positive"))
	}
	switch c.DBSslMode {
	case "disable", "require", "verify-ca", "verify-full":
	default:
		errs = append(errs, fmt.Errorf("DB_SSLMODE: unsupported value %q", c.DBSslMode))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT: unsupported value %q, want text or json", c.LogFormat))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST: %d outside %d-%d", c.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.UserCacheSize < 0 {
		errs = append(errs, errors.New("USER_CACHE_SIZE: must not be negative"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_BYTES: must be positive"))
	}
	if (c.BootstrapAdminUsername == "") != (c.BootstrapAdminPassword == "") {
		errs = append(errs, errors.New("BOOTSTRAP_ADMIN_USERNAME and BOOTSTRAP_ADMIN_PASSWORD must be set together"))
	}

	return errors.Join(errs...)
}

// DatabaseURL is the connection URL used by the pgx driver.
func (c *Config) DatabaseURL() string {
	return c.databaseURL("postgres")
}

// MigrationURL is the same database addressed through golang-migrate's pgx5 driver.
func (c *Config) MigrationURL() string {
	return c.databaseURL("pgx5")
}

func (c *Config) databaseURL(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{c.DBSslMode}}.Encode(),
	}
	return u.String()
}

// SetupLogger builds the process logger and installs it as the slog default.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, valueStr)
	}
	return value, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, valueStr)
	}
	return value, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q (use 30s, 5m, 1h)", key, valueStr)
	}
	return value, nil
}

// ParseLogLevel accepts debug, info, warn or error in any case.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported level %q", level)
	}
}

func parseCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
