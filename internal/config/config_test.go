package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-ant-test")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen:
  port: 9090
providers:
  primary: anthropic
  secondary: openai
  anthropic:
    api_key: ${TEST_ANTHROPIC_KEY}
quota:
  daily_cap: 5
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Listen.Port)
	}
	if cfg.Providers.Anthropic.APIKey != "sk-ant-test" {
		t.Errorf("api_key = %q, want expanded env value", cfg.Providers.Anthropic.APIKey)
	}
	if cfg.Quota.DailyCap != 5 {
		t.Errorf("daily_cap = %d, want 5", cfg.Quota.DailyCap)
	}
	// Untouched fields keep defaults.
	if cfg.Providers.OpenAI.BaseURL != "https://api.openai.com" {
		t.Errorf("base_url = %q, want default", cfg.Providers.OpenAI.BaseURL)
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("want error for missing explicit config")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"trace", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
