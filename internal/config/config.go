// Package config provides configuration management for the portfolio tracker.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	apperrors "portfolio-tracker/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Tax         TaxConfig      `mapstructure:"tax"`
	Alerts      AlertsConfig   `mapstructure:"alerts"`
	Database    DatabaseConfig `mapstructure:"database"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	Insight     InsightConfig  `mapstructure:"insight"`
	Audit       AuditConfig    `mapstructure:"audit"`
	Credentials Credentials    `mapstructure:"-"` // Loaded separately
}

// TaxConfig selects a tax policy preset and optionally overrides its fields.
// Zero-valued overrides keep the preset value.
type TaxConfig struct {
	Policy        string   `mapstructure:"policy"` // standard, extended
	ShortTermRate *float64 `mapstructure:"short_term_rate"`
	LongTermRate  *float64 `mapstructure:"long_term_rate"`
	LongTermDays  int      `mapstructure:"long_term_days"`
	UnknownTerm   string   `mapstructure:"unknown_term"` // short, long
}

// AlertsConfig holds the periodic price-target sweep configuration.
type AlertsConfig struct {
	Schedule string        `mapstructure:"schedule"`
	Terminal bool          `mapstructure:"terminal"`
	Webhook  WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// DatabaseConfig holds persistence configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// InsightConfig holds the AI commentary configuration.
type InsightConfig struct {
	Model string `mapstructure:"model"`
}

// AuditConfig holds the ledger audit trail configuration.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// Credentials holds API credentials.
type Credentials struct {
	OpenAI OpenAICredentials `mapstructure:"openai"`
}

// OpenAICredentials holds OpenAI API credentials.
type OpenAICredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/portfolio-tracker"
	}
	return filepath.Join(home, ".config", "portfolio-tracker")
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	return &Config{
		Tax: TaxConfig{
			Policy:      "standard",
			UnknownTerm: "short",
		},
		Alerts: AlertsConfig{
			Schedule: "@every 10s",
			Terminal: true,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(DefaultConfigDir(), "portfolio.db"),
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    true,
		},
		Insight: InsightConfig{
			Model: "gpt-4o-mini",
		},
		Audit: AuditConfig{
			Enabled: true,
			Dir:     filepath.Join(DefaultConfigDir(), "audit"),
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("tax.policy", cfg.Tax.Policy)
	v.SetDefault("tax.unknown_term", cfg.Tax.UnknownTerm)
	v.SetDefault("alerts.schedule", cfg.Alerts.Schedule)
	v.SetDefault("alerts.terminal", cfg.Alerts.Terminal)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("insight.model", cfg.Insight.Model)
	v.SetDefault("audit.enabled", cfg.Audit.Enabled)
	v.SetDefault("audit.dir", cfg.Audit.Dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// First run: write a template and continue on defaults.
			if err := createTemplateConfig(configDir); err != nil {
				return err
			}
		} else {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORTFOLIO_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PORTFOLIO_TAX_POLICY"); v != "" {
		cfg.Tax.Policy = v
	}
	if v := os.Getenv("PORTFOLIO_ALERT_SCHEDULE"); v != "" {
		cfg.Alerts.Schedule = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrConfigInvalid, err)
	}
	return nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Tax.Policy) {
	case "", "standard", "extended":
	default:
		return fmt.Errorf("invalid tax policy: %s (must be 'standard' or 'extended')", c.Tax.Policy)
	}
	if r := c.Tax.ShortTermRate; r != nil && (*r < 0 || *r > 1) {
		return fmt.Errorf("short_term_rate must be between 0 and 1")
	}
	if r := c.Tax.LongTermRate; r != nil && (*r < 0 || *r > 1) {
		return fmt.Errorf("long_term_rate must be between 0 and 1")
	}
	if c.Tax.LongTermDays < 0 {
		return fmt.Errorf("long_term_days must be non-negative")
	}
	switch strings.ToLower(c.Tax.UnknownTerm) {
	case "", "short", "long":
	default:
		return fmt.Errorf("invalid unknown_term: %s (must be 'short' or 'long')", c.Tax.UnknownTerm)
	}

	if c.Alerts.Schedule != "" {
		if _, err := cron.ParseStandard(c.Alerts.Schedule); err != nil {
			return fmt.Errorf("invalid alerts.schedule %q: %w", c.Alerts.Schedule, err)
		}
	}
	if c.Alerts.Webhook.Enabled && c.Alerts.Webhook.URL == "" {
		return fmt.Errorf("alerts.webhook.url is required when the webhook is enabled")
	}

	return nil
}
