// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"terrorzone-notifier/discord"
	"terrorzone-notifier/pkg/tz"

	"github.com/joho/godotenv"
)

const (
	// DefaultWatchTerms covers the act 1-2 zones the notifier was
	// originally built around.
	DefaultWatchTerms = "Burial Grounds,Crypt,Mausoleum,Far Oasis"
	// DefaultWatchURL is the public tracker page.
	DefaultWatchURL = "https://d2emu.com/tz"
	// DefaultStateFile is the local state path when no bucket is set.
	DefaultStateFile = "tz_alert_state.json"
)

// Config is the full runtime configuration, read once at startup.
type Config struct {
	WebhookURL      string // DISCORD_WEBHOOK_URL, required
	RoleID          string // DISCORD_ROLE_ID, optional role to mention
	WatchTerms      string // WATCH_TERMS, comma-separated zone names
	WatchURL        string // WATCH_URL, tracker page to scrape
	StateFile       string // STATE_FILE, local state path
	Bucket          string // STORAGE_BUCKET, Cloud Storage bucket for state
	CredentialsJSON string // GOOGLE_CREDENTIALS_JSON, service account key
	Port            string // PORT, listen port for -serve mode
	ForceSend       bool   // FORCE_SEND, bypass window/watchlist/dedup
	DemoSend        bool   // DEMO_SEND, preview messages only
	Debug           bool   // DEBUG, verbose logging
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present; real environment
// variables win over file entries.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		WebhookURL:      strings.TrimSpace(os.Getenv("DISCORD_WEBHOOK_URL")),
		RoleID:          strings.TrimSpace(os.Getenv("DISCORD_ROLE_ID")),
		WatchTerms:      getEnv("WATCH_TERMS", DefaultWatchTerms),
		WatchURL:        getEnv("WATCH_URL", DefaultWatchURL),
		StateFile:       getEnv("STATE_FILE", DefaultStateFile),
		Bucket:          strings.TrimSpace(os.Getenv("STORAGE_BUCKET")),
		CredentialsJSON: os.Getenv("GOOGLE_CREDENTIALS_JSON"),
		Port:            getEnv("PORT", "8080"),
		ForceSend:       getEnvBool("FORCE_SEND"),
		DemoSend:        getEnvBool("DEMO_SEND"),
		Debug:           getEnvBool("DEBUG"),
	}
}

// Validate checks the configuration without any network calls so
// misconfiguration fails fast before a run starts.
func (c *Config) Validate() error {
	if err := discord.ValidateURL(c.WebhookURL); err != nil {
		return fmt.Errorf("DISCORD_WEBHOOK_URL: %w", err)
	}
	if c.RoleID != "" && strings.Trim(c.RoleID, "0123456789") != "" {
		return errors.New("DISCORD_ROLE_ID must be numeric")
	}
	if len(tz.ParseWatchlist(c.WatchTerms)) == 0 {
		return errors.New("WATCH_TERMS must name at least one zone")
	}
	if c.Bucket == "" && c.StateFile == "" {
		return errors.New("either STORAGE_BUCKET or STATE_FILE must be set")
	}
	return nil
}

// Watchlist parses the configured watch terms.
func (c *Config) Watchlist() tz.Watchlist {
	return tz.ParseWatchlist(c.WatchTerms)
}

// Mode resolves the run mode. Demo wins over force: an operator who set
// both wants a preview, not live pings.
func (c *Config) Mode() tz.RunMode {
	switch {
	case c.DemoSend:
		return tz.ModeDemo
	case c.ForceSend:
		return tz.ModeForced
	default:
		return tz.ModeNormal
	}
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
