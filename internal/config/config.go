// Package config defines the top-level configuration for the signal bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SIGNALBOT_* environment variables.
type Config struct {
	Discord  DiscordConfig  `toml:"discord"`
	Oracle   OracleConfig   `toml:"oracle"`
	Signals  SignalsConfig  `toml:"signals"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DiscordConfig holds the bot token and the watch filters.
type DiscordConfig struct {
	Token      string `toml:"token"`
	GatewayURL string `toml:"gateway_url"`
	APIBaseURL string `toml:"api_base_url"`

	// ChannelIDs restricts signal detection to these channels. Empty watches
	// every channel the bot can read.
	ChannelIDs []string `toml:"channel_ids"`
	// Usernames restricts detection to messages from these authors. Empty
	// accepts every author.
	Usernames []string `toml:"usernames"`
	// ReactionEmoji is put on detected signal messages. Empty disables the
	// acknowledgment reaction.
	ReactionEmoji string `toml:"reaction_emoji"`
}

// OracleConfig holds the vision API parameters for chart extraction.
type OracleConfig struct {
	Provider    string   `toml:"provider"` // "openai" or "anthropic"
	APIKey      string   `toml:"api_key"`
	Model       string   `toml:"model"`
	MaxTokens   int      `toml:"max_tokens"`
	Temperature float64  `toml:"temperature"`
	CallTimeout duration `toml:"call_timeout"`
}

// SignalsConfig tunes detection, correlation, and extraction behavior.
type SignalsConfig struct {
	// CorrelationWindow is how long a text signal waits for its chart image.
	CorrelationWindow duration `toml:"correlation_window"`
	// ExtractionDeadline bounds one whole extraction run across strategies.
	ExtractionDeadline duration `toml:"extraction_deadline"`
	// MinConfidence gates alerts: plans below it are stored but not alerted.
	MinConfidence float64 `toml:"min_confidence"`
	// Workers bounds concurrent chart extractions.
	Workers int `toml:"workers"`
	// RejectAmbiguous drops text that matches both LONG and SHORT rules
	// instead of resolving it as LONG.
	RejectAmbiguous bool `toml:"reject_ambiguous"`
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
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	SeenTTL    duration `toml:"seen_ttl"`
}

// S3Config holds S3-compatible object storage parameters for chart archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	KeyPrefix      string `toml:"key_prefix"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "30s", "2m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "30s" or "2m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Discord: DiscordConfig{
			ReactionEmoji: "👀",
		},
		Oracle: OracleConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			MaxTokens:   500,
			Temperature: 0,
			CallTimeout: duration{30 * time.Second},
		},
		Signals: SignalsConfig{
			CorrelationWindow:  duration{30 * time.Second},
			ExtractionDeadline: duration{2 * time.Minute},
			MinConfidence:      0.0,
			Workers:            2,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "chartsignal",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			SeenTTL:    duration{24 * time.Hour},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "chartsignal-data",
			ForcePathStyle: true,
			KeyPrefix:      "charts",
		},
		Notify: NotifyConfig{
			Events: []string{"signal", "error"},
		},
		Mode:     "watch",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"watch":   true,
	"extract": true,
	"stats":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: watch, extract, stats)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// The gateway needs a token in watch mode.
	if mode == "watch" && c.Discord.Token == "" {
		errs = append(errs, "discord: token is required for watch mode")
	}

	// Oracle. Stats mode only reads the database and needs no vision API.
	if mode != "stats" {
		switch strings.ToLower(c.Oracle.Provider) {
		case "openai", "anthropic":
		default:
			errs = append(errs, fmt.Sprintf("oracle: unknown provider %q (valid: openai, anthropic)", c.Oracle.Provider))
		}
		if c.Oracle.APIKey == "" {
			errs = append(errs, "oracle: api_key is required")
		}
		if c.Oracle.CallTimeout.Duration <= 0 {
			errs = append(errs, "oracle: call_timeout must be positive")
		}
	}

	// Signals
	if c.Signals.CorrelationWindow.Duration <= 0 {
		errs = append(errs, "signals: correlation_window must be positive")
	}
	if c.Signals.ExtractionDeadline.Duration <= 0 {
		errs = append(errs, "signals: extraction_deadline must be positive")
	}
	if c.Signals.MinConfidence < 0 || c.Signals.MinConfidence > 1 {
		errs = append(errs, fmt.Sprintf("signals: min_confidence must be in [0,1], got %v", c.Signals.MinConfidence))
	}
	if c.Signals.Workers < 1 {
		errs = append(errs, "signals: workers must be >= 1")
	}

	// Postgres
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

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Telegram needs both halves.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
