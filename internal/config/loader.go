package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADEDESK_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEDESK_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Records ──
	setStr(&cfg.Records.Source, "TRADEDESK_RECORDS_SOURCE")
	setStr(&cfg.Records.SeedPath, "TRADEDESK_RECORDS_SEED_PATH")
	setInt(&cfg.Records.DefaultPageSize, "TRADEDESK_RECORDS_DEFAULT_PAGE_SIZE")
	setDuration(&cfg.Records.SessionTTL, "TRADEDESK_RECORDS_SESSION_TTL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRADEDESK_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TRADEDESK_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADEDESK_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADEDESK_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADEDESK_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADEDESK_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADEDESK_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADEDESK_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADEDESK_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADEDESK_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADEDESK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEDESK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEDESK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEDESK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEDESK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEDESK_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRADEDESK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEDESK_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEDESK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEDESK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEDESK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEDESK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEDESK_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.ExportPrefix, "TRADEDESK_S3_EXPORT_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADEDESK_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADEDESK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEDESK_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "TRADEDESK_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "TRADEDESK_SERVER_RATE_WINDOW")

	// ── Auth ──
	setStr(&cfg.Auth.APIKey, "TRADEDESK_AUTH_API_KEY")
	setStr(&cfg.Auth.APIKeyHash, "TRADEDESK_AUTH_API_KEY_HASH")

	// ── Desk ──
	setDuration(&cfg.Desk.LockTTL, "TRADEDESK_DESK_LOCK_TTL")
	setFloat64(&cfg.Desk.CommissionPerLot, "TRADEDESK_DESK_COMMISSION_PER_LOT")
	setFloat64(&cfg.Desk.ContractSize, "TRADEDESK_DESK_CONTRACT_SIZE")
	setDuration(&cfg.Desk.SettleTimeout, "TRADEDESK_DESK_SETTLE_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADEDESK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEDESK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEDESK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEDESK_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADEDESK_MODE")
	setStr(&cfg.LogLevel, "TRADEDESK_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
