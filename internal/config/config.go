// Package config handles DataChat configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/datachat/config.yaml, /etc/datachat/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "datachat", "config.yaml"))
	}

	paths = append(paths, "/etc/datachat/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all DataChat configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Providers ProvidersConfig `yaml:"providers"`
	Quota     QuotaConfig     `yaml:"quota"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ProvidersConfig defines the inference backends and their roles.
// Primary and Secondary name entries in the providers section; the
// dispatcher fails over from primary to secondary when the preference
// is automatic.
type ProvidersConfig struct {
	Primary   string          `yaml:"primary"`   // "anthropic" or "openai"
	Secondary string          `yaml:"secondary"` // the other one
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`

	// RequestTimeoutSec bounds a single backend call (default 60).
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
	// RetryBackoffMS is the pause before the single same-backend retry
	// (default 500).
	RetryBackoffMS int `yaml:"retry_backoff_ms"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OpenAIConfig defines settings for an OpenAI-compatible API.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // default https://api.openai.com
	Model   string `yaml:"model"`
}

// QuotaConfig defines the daily per-user exchange quota.
type QuotaConfig struct {
	DailyCap int `yaml:"daily_cap"` // default 10
}

// Load reads configuration from a YAML file. Environment variables in
// the file body are expanded, so secrets can live outside the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Providers: ProvidersConfig{
			Primary:           "anthropic",
			Secondary:         "openai",
			Anthropic:         AnthropicConfig{Model: "claude-sonnet-4-20250514"},
			OpenAI:            OpenAIConfig{BaseURL: "https://api.openai.com", Model: "gpt-4o"},
			RequestTimeoutSec: 60,
			RetryBackoffMS:    500,
		},
		Quota:   QuotaConfig{DailyCap: 10},
		DataDir: "data",
	}
}
