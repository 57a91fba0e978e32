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
// built-in defaults, applies SIGNALBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SIGNALBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Discord ──
	setStr(&cfg.Discord.Token, "SIGNALBOT_DISCORD_TOKEN")
	setStr(&cfg.Discord.GatewayURL, "SIGNALBOT_DISCORD_GATEWAY_URL")
	setStr(&cfg.Discord.APIBaseURL, "SIGNALBOT_DISCORD_API_BASE_URL")
	setStringSlice(&cfg.Discord.ChannelIDs, "SIGNALBOT_DISCORD_CHANNEL_IDS")
	setStringSlice(&cfg.Discord.Usernames, "SIGNALBOT_DISCORD_USERNAMES")
	setStr(&cfg.Discord.ReactionEmoji, "SIGNALBOT_DISCORD_REACTION_EMOJI")

	// ── Oracle ──
	setStr(&cfg.Oracle.Provider, "SIGNALBOT_ORACLE_PROVIDER")
	setStr(&cfg.Oracle.APIKey, "SIGNALBOT_ORACLE_API_KEY")
	setStr(&cfg.Oracle.Model, "SIGNALBOT_ORACLE_MODEL")
	setInt(&cfg.Oracle.MaxTokens, "SIGNALBOT_ORACLE_MAX_TOKENS")
	setFloat64(&cfg.Oracle.Temperature, "SIGNALBOT_ORACLE_TEMPERATURE")
	setDuration(&cfg.Oracle.CallTimeout, "SIGNALBOT_ORACLE_CALL_TIMEOUT")

	// ── Signals ──
	setDuration(&cfg.Signals.CorrelationWindow, "SIGNALBOT_SIGNALS_CORRELATION_WINDOW")
	setDuration(&cfg.Signals.ExtractionDeadline, "SIGNALBOT_SIGNALS_EXTRACTION_DEADLINE")
	setFloat64(&cfg.Signals.MinConfidence, "SIGNALBOT_SIGNALS_MIN_CONFIDENCE")
	setInt(&cfg.Signals.Workers, "SIGNALBOT_SIGNALS_WORKERS")
	setBool(&cfg.Signals.RejectAmbiguous, "SIGNALBOT_SIGNALS_REJECT_AMBIGUOUS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SIGNALBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SIGNALBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SIGNALBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SIGNALBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SIGNALBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SIGNALBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SIGNALBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SIGNALBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SIGNALBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SIGNALBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SIGNALBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SIGNALBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SIGNALBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SIGNALBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SIGNALBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SIGNALBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SIGNALBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.SeenTTL, "SIGNALBOT_REDIS_SEEN_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SIGNALBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SIGNALBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SIGNALBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SIGNALBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SIGNALBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SIGNALBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SIGNALBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SIGNALBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.KeyPrefix, "SIGNALBOT_S3_KEY_PREFIX")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SIGNALBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SIGNALBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SIGNALBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SIGNALBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SIGNALBOT_MODE")
	setStr(&cfg.LogLevel, "SIGNALBOT_LOG_LEVEL")
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
