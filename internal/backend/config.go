package backend

import (
	"fmt"
	"time"

	"finwatch/internal/config"
	"finwatch/internal/sources/sheets"
	"finwatch/internal/storage"
)

// Config holds configuration for backend creation
type Config struct {
	Type BackendType
	KV   KVType

	SQLiteDBPath string
	DatabaseURL  string
	Pool         storage.PoolConfig
	SeedFile     string

	RedisURL string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	Sheets sheets.Config
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		Type:         BackendType(appConfig.DataBackend),
		KV:           KVType(appConfig.KVBackend),
		SQLiteDBPath: appConfig.SQLiteDBPath,
		DatabaseURL:  appConfig.DatabaseURL,
		Pool: storage.PoolConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			MaxIdleTime:  5 * time.Minute,
		},
		SeedFile:     appConfig.SeedFile,
		RedisURL:     appConfig.RedisURL,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
		Sheets: sheets.Config{
			SpreadsheetID:      appConfig.GoogleSpreadsheetID,
			ServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
			ServiceAccountFile: appConfig.GoogleServiceAccountFile,
			OAuthClientJSON:    appConfig.GoogleOAuthClientJSON,
			OAuthClientFile:    appConfig.GoogleOAuthClientFile,
			OAuthTokenFile:     appConfig.GoogleOAuthTokenFile,
			CacheTTL:           appConfig.GoogleSheetsCacheTTL,
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if !c.KV.IsValid() {
		return fmt.Errorf("invalid kv backend: %s", c.KV)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres backend")
		}
	case SheetsBackend:
		if c.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}
	}

	if c.KV == KVDatabase && !c.Type.IsDatabase() {
		return fmt.Errorf("kv backend %q requires a database ledger, got %q", c.KV, c.Type)
	}
	if c.KV == KVRedis && c.RedisURL == "" {
		return fmt.Errorf("redis URL is required for redis kv backend")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, PostgresBackend, SheetsBackend}
}
