// Package config defines the top-level configuration for the trading desk
// service and provides validation helpers.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADEDESK_* environment variables.
type Config struct {
	Records  RecordsConfig  `toml:"records"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Desk     DeskConfig     `toml:"desk"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// RecordsConfig selects where session records come from and how tables
// start out.
type RecordsConfig struct {
	// Source is "seed" (embedded or file fixtures) or "postgres".
	Source          string   `toml:"source"`
	SeedPath        string   `toml:"seed_path"`
	DefaultPageSize int      `toml:"default_page_size"`
	SessionTTL      duration `toml:"session_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	ExportPrefix   string `toml:"export_prefix"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is the number of requests one client may make per
	// RateWindow. Zero disables limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// AuthConfig holds the operator API key. Either the plain key or its bcrypt
// hash may be configured; both empty disables authentication.
type AuthConfig struct {
	APIKey     string `toml:"api_key"`
	APIKeyHash string `toml:"api_key_hash"`
}

// DeskConfig holds settlement parameters.
type DeskConfig struct {
	// LockTTL bounds how long one position stays locked during settlement.
	LockTTL duration `toml:"lock_ttl"`
	// CommissionPerLot is charged on every closed lot.
	CommissionPerLot float64 `toml:"commission_per_lot"`
	// ContractSize is the number of units in one lot.
	ContractSize float64 `toml:"contract_size"`
	// SettleTimeout bounds one settlement round trip.
	SettleTimeout duration `toml:"settle_timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Records: RecordsConfig{
			Source:          "seed",
			DefaultPageSize: 10,
			SessionTTL:      duration{30 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tradedesk",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradedesk-exports",
			UseSSL:         false,
			ForcePathStyle: true,
			ExportPrefix:   "exports",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Desk: DeskConfig{
			LockTTL:          duration{10 * time.Second},
			CommissionPerLot: 7.0,
			ContractSize:     100000,
			SettleTimeout:    duration{5 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"position_closed", "position_edited", "record_deleted", "error"},
		},
		Mode:     "standalone",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"standalone": true,
	"full":       true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validPageSizes = []int{5, 10, 25, 50, 100}

// NeedsPostgres reports whether the configuration requires a database.
func (c *Config) NeedsPostgres() bool {
	return c.Mode == "full" || c.Records.Source == "postgres"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: standalone, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Records
	switch c.Records.Source {
	case "seed", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("records: unknown source %q (valid: seed, postgres)", c.Records.Source))
	}
	if !slices.Contains(validPageSizes, c.Records.DefaultPageSize) {
		errs = append(errs, fmt.Sprintf("records: default_page_size must be one of %v, got %d", validPageSizes, c.Records.DefaultPageSize))
	}
	if c.Records.SessionTTL.Duration < 0 {
		errs = append(errs, "records: session_ttl must not be negative")
	}

	// Postgres
	if c.NeedsPostgres() {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Mode == "full" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
	}

	// Desk
	if c.Desk.LockTTL.Duration <= 0 {
		errs = append(errs, "desk: lock_ttl must be positive")
	}
	if c.Desk.ContractSize <= 0 {
		errs = append(errs, "desk: contract_size must be positive")
	}
	if c.Desk.CommissionPerLot < 0 {
		errs = append(errs, "desk: commission_per_lot must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
