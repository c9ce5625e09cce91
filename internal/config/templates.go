package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Portfolio Tracker Configuration

[tax]
# Policy preset: "standard" (365 days, 15% long / 30% short)
# or "extended" (730 days, 15% long / 22% short)
policy = "standard"
# Uncomment to override the preset
# short_term_rate = 0.30
# long_term_rate = 0.15
# long_term_days = 365
# Bucket used for lots without an acquisition date: "short" or "long"
unknown_term = "short"

[alerts]
# Cron expression for the periodic price-target sweep
schedule = "@every 10s"
# Print triggered alerts to the terminal
terminal = true

[alerts.webhook]
enabled = false
url = ""

[database]
# SQLite database file
# path = "~/.config/portfolio-tracker/portfolio.db"

[logging]
level = "info"
console = true
file = true

[insight]
# Model used for the AI portfolio commentary
model = "gpt-4o-mini"

[audit]
# JSON-lines record of every lot, price and target change
enabled = true
# dir = "~/.config/portfolio-tracker/audit"
`

const credentialsTemplate = `# Portfolio Tracker Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[openai]
api_key = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
