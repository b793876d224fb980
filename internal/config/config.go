package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported backends.
var (
	DataBackends = []string{"memory", "sqlite", "postgres", "sheets"}
	KVBackends   = []string{"database", "redis", "memory"}
)

type Config struct {
	// HTTP Server
	Port               string `yaml:"port"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`

	// Auth. Without a secret the X-User-ID header is trusted.
	JWTSecret string `yaml:"jwt_secret"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Ledger backend
	DataBackend  string `yaml:"data_backend"`
	SQLiteDBPath string `yaml:"sqlite_db_path"`
	DatabaseURL  string `yaml:"database_url"`
	SeedFile     string `yaml:"seed_file"`

	// Suppression document store
	KVBackend string `yaml:"kv_backend"`
	RedisURL  string `yaml:"redis_url"`

	// AMQP toasts. Empty URL logs toasts instead.
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
	AMQPQueue    string `yaml:"amqp_queue"`

	// Notification engine
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	DismissDuration time.Duration `yaml:"dismiss_duration"`
	SessionIdleTTL  time.Duration `yaml:"session_idle_ttl"`
	MaxSessions     int           `yaml:"max_sessions"`

	// Google Sheets
	GoogleSpreadsheetID      string        `yaml:"google_spreadsheet_id"`
	GoogleServiceAccountJSON string        `yaml:"google_service_account_json"`
	GoogleServiceAccountFile string        `yaml:"google_service_account_file"`
	GoogleOAuthClientJSON    string        `yaml:"google_oauth_client_json"`
	GoogleOAuthClientFile    string        `yaml:"google_oauth_client_file"`
	GoogleOAuthTokenFile     string        `yaml:"google_oauth_token_file"`
	GoogleSheetsCacheTTL     time.Duration `yaml:"google_sheets_cache_ttl"`
}

func defaults() *Config {
	return &Config{
		Port:                 "8081",
		RateLimitPerMinute:   120,
		LogLevel:             "info",
		LogFormat:            "text",
		DataBackend:          "memory",
		SQLiteDBPath:         "./data/finwatch.db",
		SeedFile:             "./data/seed.json",
		AMQPExchange:         "finwatch",
		AMQPQueue:            "toasts",
		RefreshInterval:      5 * time.Minute,
		DismissDuration:      2 * time.Hour,
		SessionIdleTTL:       30 * time.Minute,
		MaxSessions:          1000,
		GoogleSheetsCacheTTL: time.Minute,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// FINWATCH_CONFIG if set, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv("FINWATCH_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.resolve()
	return cfg, nil
}

// resolve fills settings derived from others. Without an explicit
// KV_BACKEND, suppression documents live next to the ledger when it is a
// database and in memory otherwise.
func (c *Config) resolve() {
	if c.KVBackend == "" {
		switch c.DataBackend {
		case "sqlite", "postgres":
			c.KVBackend = "database"
		default:
			c.KVBackend = "memory"
		}
	}
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.DataBackend = getEnv("DATA_BACKEND", c.DataBackend)
	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.SeedFile = getEnv("SEED_FILE", c.SeedFile)

	c.KVBackend = getEnv("KV_BACKEND", c.KVBackend)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)

	c.RefreshInterval = getEnvDuration("REFRESH_INTERVAL", c.RefreshInterval)
	c.DismissDuration = getEnvDuration("DISMISS_DURATION", c.DismissDuration)
	c.SessionIdleTTL = getEnvDuration("SESSION_IDLE_TTL", c.SessionIdleTTL)
	c.MaxSessions = getEnvInt("MAX_SESSIONS", c.MaxSessions)

	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleServiceAccountJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", c.GoogleServiceAccountJSON)
	c.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleServiceAccountFile))
	c.GoogleOAuthClientJSON = getEnv("GOOGLE_OAUTH_CLIENT_JSON", c.GoogleOAuthClientJSON)
	c.GoogleOAuthClientFile = getEnv("GOOGLE_OAUTH_CLIENT_FILE", c.GoogleOAuthClientFile)
	c.GoogleOAuthTokenFile = getEnv("GOOGLE_OAUTH_TOKEN_FILE", c.GoogleOAuthTokenFile)
	c.GoogleSheetsCacheTTL = getEnvDuration("GOOGLE_SHEETS_CACHE_TTL", c.GoogleSheetsCacheTTL)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must not be negative", c.RateLimitPerMinute))
	}

	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if !slices.Contains(DataBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, DataBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case "postgres":
		errors = append(errors, validateURL("DATABASE_URL", c.DatabaseURL, true, "postgres", "postgresql")...)
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		hasServiceAccount := c.GoogleServiceAccountJSON != "" || c.GoogleServiceAccountFile != ""
		hasOAuthClient := c.GoogleOAuthClientJSON != "" || c.GoogleOAuthClientFile != ""
		if !hasServiceAccount && !hasOAuthClient {
			errors = append(errors, "either a service account (GOOGLE_SERVICE_ACCOUNT_JSON/FILE) or an OAuth client (GOOGLE_OAUTH_CLIENT_JSON/FILE) must be provided for sheets backend")
		}
		if !hasServiceAccount && hasOAuthClient && c.GoogleOAuthTokenFile == "" {
			errors = append(errors, "GOOGLE_OAUTH_TOKEN_FILE must be provided when using an OAuth client")
		}
		for _, f := range []struct{ name, path string }{
			{"Google service account file", c.GoogleServiceAccountFile},
			{"Google OAuth client file", c.GoogleOAuthClientFile},
			{"Google OAuth token file", c.GoogleOAuthTokenFile},
		} {
			if f.path == "" {
				continue
			}
			if _, err := os.Stat(f.path); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("%s does not exist: %s", f.name, f.path))
			}
		}
	}

	if !slices.Contains(KVBackends, c.KVBackend) {
		errors = append(errors, fmt.Sprintf("invalid kv backend '%s': must be one of %v", c.KVBackend, KVBackends))
	}
	if c.KVBackend == "redis" {
		errors = append(errors, validateURL("REDIS_URL", c.RedisURL, true, "redis", "rediss")...)
	}
	if c.KVBackend == "database" && c.DataBackend != "sqlite" && c.DataBackend != "postgres" {
		errors = append(errors, fmt.Sprintf("kv backend 'database' requires data backend sqlite or postgres, got '%s'", c.DataBackend))
	}

	if c.AMQPURL != "" {
		errors = append(errors, validateURL("AMQP URL", c.AMQPURL, false, "amqp", "amqps")...)
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RefreshInterval < 10*time.Second {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at least 10 seconds", c.RefreshInterval))
	} else if c.RefreshInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at most 24 hours", c.RefreshInterval))
	}
	if c.DismissDuration < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid dismiss duration %v: must be at least 1 minute", c.DismissDuration))
	}
	if c.SessionIdleTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session idle TTL %v: must be at least 1 minute", c.SessionIdleTTL))
	}
	if c.MaxSessions < 1 {
		errors = append(errors, fmt.Sprintf("invalid max sessions %d: must be at least 1", c.MaxSessions))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func validateURL(name, raw string, required bool, schemes ...string) []string {
	if raw == "" {
		if required {
			return []string{fmt.Sprintf("%s is required", name)}
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return []string{fmt.Sprintf("invalid %s '%s': %v", name, raw, err)}
	}
	if !slices.Contains(schemes, u.Scheme) {
		return []string{fmt.Sprintf("invalid %s scheme '%s': must be one of %v", name, u.Scheme, schemes)}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
