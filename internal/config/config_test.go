package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Discord.Token = "bot-token"
	cfg.Oracle.APIKey = "sk-test"
	return cfg
}

func TestValidateAcceptsDefaultsWithSecrets(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"
	cfg.Oracle.Provider = "palantir"
	cfg.Signals.MinConfidence = 1.5
	cfg.Signals.Workers = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate: want an error")
	}
	for _, want := range []string{"unknown mode", "unknown provider", "min_confidence", "workers"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateWatchRequiresToken(t *testing.T) {
	cfg := validConfig()
	cfg.Discord.Token = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "token is required") {
		t.Errorf("Validate = %v, want a missing-token error", err)
	}

	// Extract mode runs against local images and needs no gateway.
	cfg.Mode = "extract"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate in extract mode: %v", err)
	}
}

func TestValidateStatsModeNeedsNoOracle(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "stats"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate in stats mode: %v", err)
	}
}

func TestValidateTelegramPairing(t *testing.T) {
	cfg := validConfig()
	cfg.Notify.TelegramToken = "tg-token"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "telegram") {
		t.Errorf("Validate = %v, want a telegram pairing error", err)
	}
	cfg.Notify.TelegramChatID = "12345"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate with both telegram fields: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SIGNALBOT_DISCORD_TOKEN", "env-token")
	t.Setenv("SIGNALBOT_DISCORD_CHANNEL_IDS", "111, 222")
	t.Setenv("SIGNALBOT_SIGNALS_CORRELATION_WINDOW", "45s")
	t.Setenv("SIGNALBOT_SIGNALS_MIN_CONFIDENCE", "0.8")
	t.Setenv("SIGNALBOT_REDIS_ENABLED", "true")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Discord.Token != "env-token" {
		t.Errorf("Token = %q", cfg.Discord.Token)
	}
	if len(cfg.Discord.ChannelIDs) != 2 || cfg.Discord.ChannelIDs[1] != "222" {
		t.Errorf("ChannelIDs = %v", cfg.Discord.ChannelIDs)
	}
	if cfg.Signals.CorrelationWindow.Duration != 45*time.Second {
		t.Errorf("CorrelationWindow = %v", cfg.Signals.CorrelationWindow.Duration)
	}
	if cfg.Signals.MinConfidence != 0.8 {
		t.Errorf("MinConfidence = %v", cfg.Signals.MinConfidence)
	}
	if !cfg.Redis.Enabled {
		t.Error("Redis.Enabled should be overridden to true")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.DiscordWebhookURL = "https://discord.com/api/webhooks/x"

	red := RedactedConfig(&cfg)
	if red.Discord.Token != redacted || red.Oracle.APIKey != redacted ||
		red.Postgres.Password != redacted || red.Notify.DiscordWebhookURL != redacted {
		t.Errorf("secrets not redacted: %+v", red)
	}
	if cfg.Discord.Token != "bot-token" {
		t.Error("original config must be untouched")
	}

	// Mutating a redacted slice must not leak back.
	cfg.Discord.ChannelIDs = []string{"111"}
	red = RedactedConfig(&cfg)
	red.Discord.ChannelIDs[0] = "mutated"
	if cfg.Discord.ChannelIDs[0] != "111" {
		t.Error("redacted copy shares slice backing with the original")
	}
}
