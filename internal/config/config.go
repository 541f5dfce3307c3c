package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CorsOrigins []string `yaml:"cors_origins"`
	BaseURL     string   `yaml:"base_url"` // public URL used in notification links
}

// UpstreamConfig configures the external search/LLM service.
type UpstreamConfig struct {
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	Timeout  string `yaml:"timeout"`
	Attempts int    `yaml:"attempts"`
	Backoff  string `yaml:"backoff"`
}

// ParseTimeout returns the upstream request timeout.
func (u UpstreamConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(u.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ParseBackoff returns the fixed delay between retry attempts.
func (u UpstreamConfig) ParseBackoff() time.Duration {
	d, err := time.ParseDuration(u.Backoff)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// ScoringConfig configures score weighting and the optional embedder.
type ScoringConfig struct {
	EngagementWeight float64          `yaml:"engagement_weight"`
	FreshnessWeight  float64          `yaml:"freshness_weight"`
	RelevanceWeight  float64          `yaml:"relevance_weight"`
	Embeddings       EmbeddingsConfig `yaml:"embeddings"`
}

// EmbeddingsConfig configures the optional embedding-based relevance scorer.
// When disabled, relevance falls back to token overlap.
type EmbeddingsConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// RefreshConfig configures periodic refresh sweeps over subscriptions.
type RefreshConfig struct {
	Cron string `yaml:"cron"`
}

// NotifyConfig configures notification destinations.
type NotifyConfig struct {
	SMTP    SMTPConfig    `yaml:"smtp"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SMTPConfig for email delivery.
type SMTPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// WebhookConfig for generic webhook notifications.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./trendsage.db"},
		Server: ServerConfig{
			Port:        8080,
			CorsOrigins: []string{"*"},
			BaseURL:     "http://127.0.0.1:8080",
		},
		Upstream: UpstreamConfig{
			BaseURL:  "https://api.perplexity.ai",
			Model:    "sonar",
			Timeout:  "30s",
			Attempts: 3,
			Backoff:  "2s",
		},
		Scoring: ScoringConfig{
			EngagementWeight: 0.3,
			FreshnessWeight:  0.4,
			RelevanceWeight:  0.3,
			Embeddings: EmbeddingsConfig{
				Model: "text-embedding-3-small",
			},
		},
		Refresh: RefreshConfig{Cron: "0 7 * * *"},
		Notify: NotifyConfig{
			SMTP: SMTPConfig{Port: 587, From: "trendsage@localhost"},
		},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRENDSAGE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TRENDSAGE_BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("PERPLEXITY_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Scoring.Embeddings.APIKey = v
		cfg.Scoring.Embeddings.Enabled = true
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Notify.SMTP.Host = v
		cfg.Notify.SMTP.Enabled = true
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.Notify.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Notify.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Notify.SMTP.From = v
	}
	if v := os.Getenv("TRENDSAGE_WEBHOOK_URL"); v != "" {
		cfg.Notify.Webhook.URL = v
		cfg.Notify.Webhook.Enabled = true
	}
}
