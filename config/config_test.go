package config

import (
	"testing"

	"terrorzone-notifier/pkg/tz"
)

const validWebhook = "https://discord.com/api/webhooks/123456789/abcdefghijklmnopqrstuv"

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_WEBHOOK_URL", validWebhook)
	t.Setenv("DISCORD_ROLE_ID", "")
	t.Setenv("WATCH_TERMS", "")
	t.Setenv("WATCH_URL", "")
	t.Setenv("STATE_FILE", "")
	t.Setenv("STORAGE_BUCKET", "")
	t.Setenv("FORCE_SEND", "")
	t.Setenv("DEMO_SEND", "")
	t.Setenv("DEBUG", "")
}

func TestLoadDefaults(t *testing.T) {
	setValidEnv(t)

	cfg := Load()
	if cfg.WatchTerms != DefaultWatchTerms {
		t.Errorf("WatchTerms = %q, want default", cfg.WatchTerms)
	}
	if cfg.WatchURL != DefaultWatchURL {
		t.Errorf("WatchURL = %q, want %q", cfg.WatchURL, DefaultWatchURL)
	}
	if cfg.StateFile != DefaultStateFile {
		t.Errorf("StateFile = %q, want %q", cfg.StateFile, DefaultStateFile)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults: %v", err)
	}
}

func TestValidateRejectsBadWebhook(t *testing.T) {
	setValidEnv(t)
	t.Setenv("DISCORD_WEBHOOK_URL", "https://example.com/not-a-webhook")

	if err := Load().Validate(); err == nil {
		t.Error("Validate() should reject a malformed webhook URL")
	}
}

func TestValidateRejectsMissingWebhook(t *testing.T) {
	setValidEnv(t)
	t.Setenv("DISCORD_WEBHOOK_URL", "")

	if err := Load().Validate(); err == nil {
		t.Error("Validate() should reject an empty webhook URL")
	}
}

func TestValidateRejectsNonNumericRole(t *testing.T) {
	setValidEnv(t)
	t.Setenv("DISCORD_ROLE_ID", "everyone")

	if err := Load().Validate(); err == nil {
		t.Error("Validate() should reject a non-numeric role id")
	}
}

func TestValidateRejectsEmptyWatchlist(t *testing.T) {
	setValidEnv(t)
	t.Setenv("WATCH_TERMS", " , ,")

	if err := Load().Validate(); err == nil {
		t.Error("Validate() should reject a watchlist with no usable terms")
	}
}

func TestBoolParsing(t *testing.T) {
	setValidEnv(t)
	tests := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"YES", true},
		{"0", false},
		{"false", false},
		{"", false},
		{"banana", false},
	}

	for _, tt := range tests {
		t.Setenv("FORCE_SEND", tt.value)
		if got := Load().ForceSend; got != tt.want {
			t.Errorf("FORCE_SEND=%q parsed as %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestModeResolution(t *testing.T) {
	setValidEnv(t)
	tests := []struct {
		name  string
		force string
		demo  string
		want  tz.RunMode
	}{
		{"neither", "", "", tz.ModeNormal},
		{"force only", "true", "", tz.ModeForced},
		{"demo only", "", "true", tz.ModeDemo},
		{"demo wins over force", "true", "true", tz.ModeDemo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FORCE_SEND", tt.force)
			t.Setenv("DEMO_SEND", tt.demo)
			if got := Load().Mode(); got != tt.want {
				t.Errorf("Mode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWatchlistParsing(t *testing.T) {
	setValidEnv(t)
	t.Setenv("WATCH_TERMS", "Chaos Sanctuary, Worldstone Keep")

	w := Load().Watchlist()
	if len(w) != 2 {
		t.Fatalf("got %d watchlist entries, want 2", len(w))
	}
	if !w.Contains("chaos sanctuary") {
		t.Error("watchlist matching should be case-insensitive")
	}
}
