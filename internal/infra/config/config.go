package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// Administrator identities, the gated channel and the mini-app URLs are
// explicit configuration handed to the dispatcher at construction; no
// handler consults the environment directly.
type AppConfig struct {
	TelegramToken    string
	DatabaseURL      string
	AdminTelegramIDs []int64
	ChannelUsername  string // e.g. @YourChannel; empty disables the join gate
	ChannelURL       string // join link shown on the gate prompt
	WebAppURL        string // registration / analytics mini-app
	HelpURL          string
	Top10WebAppURL   string // leaderboard mini-app
	LogLevel         string
	Environment      string
	MigrationsPath   string
	BroadcastDelay   time.Duration // pause between per-recipient batches
	CronSpecWeekly   string        // weekly paper announcement job
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	adminIDs := os.Getenv("ADMIN_TELEGRAM_IDS")
	if adminIDs == "" {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_IDS is not set")
	}
	for _, part := range strings.Split(adminIDs, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q in ADMIN_TELEGRAM_IDS: %w", part, err)
		}
		cfg.AdminTelegramIDs = append(cfg.AdminTelegramIDs, id)
	}
	if len(cfg.AdminTelegramIDs) == 0 {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_IDS contains no valid ids")
	}

	cfg.WebAppURL = os.Getenv("WEBAPP_URL")
	if cfg.WebAppURL == "" {
		return nil, fmt.Errorf("WEBAPP_URL is not set")
	}

	// Optional: empty channel username disables the membership gate.
	cfg.ChannelUsername = os.Getenv("TELEGRAM_CHANNEL_USERNAME")
	cfg.ChannelURL = os.Getenv("TELEGRAM_CHANNEL_URL")
	if cfg.ChannelUsername != "" && cfg.ChannelURL == "" {
		cfg.ChannelURL = "https://t.me/" + strings.TrimPrefix(cfg.ChannelUsername, "@")
	}

	cfg.HelpURL = os.Getenv("HELP_URL")
	if cfg.HelpURL == "" {
		cfg.HelpURL = "https://t.me/your_help_link"
	}

	cfg.Top10WebAppURL = os.Getenv("TOP10_WEBAPP_URL")
	if cfg.Top10WebAppURL == "" {
		cfg.Top10WebAppURL = cfg.WebAppURL
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	cfg.MigrationsPath = os.Getenv("MIGRATIONS_PATH")
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "migrations"
	}

	delayMS := os.Getenv("BROADCAST_DELAY_MS")
	if delayMS == "" {
		cfg.BroadcastDelay = 200 * time.Millisecond
	} else {
		ms, err := strconv.Atoi(delayMS)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("invalid BROADCAST_DELAY_MS: %q", delayMS)
		}
		cfg.BroadcastDelay = time.Duration(ms) * time.Millisecond
	}

	cfg.CronSpecWeekly = os.Getenv("CRON_SPEC_WEEKLY_ANNOUNCE")
	if cfg.CronSpecWeekly == "" {
		cfg.CronSpecWeekly = "0 9 * * 1" // Default: 9 AM Monday
	}

	return cfg, nil
}

// IsAdmin reports whether the given telegram id belongs to the
// configured administrator set.
func (c *AppConfig) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminTelegramIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}
