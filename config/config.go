// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Required credentials are checked separately via Validate so helper commands can
// load a partial config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTelegramAPIURL is the hosted Bot API endpoint. Operators running a
	// local bot-api server (needed for files beyond the hosted 20 MB download
	// cap) override this with TELEGRAM_BOT_API_URL.
	DefaultTelegramAPIURL = "https://api.telegram.org"

	// DefaultDBDsn selects the embedded SQLite backend; a postgres:// DSN
	// switches the store to Postgres.
	DefaultDBDsn = "data/photobridge.db"
)

type Config struct {
	// Telegram
	TelegramBotToken string
	TelegramAPIURL   string

	// Google OAuth (refresh-token grant)
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string

	// AllowedGroupIDs restricts syncing to these chat ids. Empty = all groups.
	AllowedGroupIDs []int64

	// Database
	DBDsn string

	// HTTP
	HTTPAddr    string
	HTTPTimeout time.Duration
}

// Load reads environment variables and applies defaults. It doesn't fail on
// missing credentials; call Validate when the sync pipeline is about to start.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramAPIURL = strings.TrimRight(os.Getenv("TELEGRAM_BOT_API_URL"), "/")
	if cfg.TelegramAPIURL == "" {
		cfg.TelegramAPIURL = DefaultTelegramAPIURL
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRefreshToken = os.Getenv("GOOGLE_REFRESH_TOKEN")

	ids, err := parseGroupIDs(os.Getenv("ALLOWED_GROUP_IDS"))
	if err != nil {
		return nil, err
	}
	cfg.AllowedGroupIDs = ids

	cfg.DBDsn = os.Getenv("DB_DSN")
	if cfg.DBDsn == "" {
		cfg.DBDsn = DefaultDBDsn
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.HTTPTimeout = 60 * time.Second
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT (duration): %q", v)
		}
		cfg.HTTPTimeout = d
	}

	return cfg, nil
}

// Validate checks the credentials the sync pipeline cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if c.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if c.GoogleRefreshToken == "" {
		missing = append(missing, "GOOGLE_REFRESH_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
	}
	return nil
}

// GroupAllowed reports whether chatID passes the allow-list. An empty list
// allows every group.
func (c *Config) GroupAllowed(chatID int64) bool {
	if len(c.AllowedGroupIDs) == 0 {
		return true
	}
	for _, id := range c.AllowedGroupIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

func parseGroupIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ALLOWED_GROUP_IDS must be comma-separated integers, got %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
