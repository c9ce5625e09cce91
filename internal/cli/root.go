// Package cli provides the command-line interface for the portfolio tracker.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"portfolio-tracker/internal/alerts"
	"portfolio-tracker/internal/audit"
	"portfolio-tracker/internal/config"
	"portfolio-tracker/internal/insight"
	"portfolio-tracker/internal/ledger"
	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/notify"
	"portfolio-tracker/internal/returns"
	"portfolio-tracker/internal/store"
	"portfolio-tracker/internal/tax"
	"portfolio-tracker/internal/valuation"
	"portfolio-tracker/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-30"
)

// skipStore marks commands that run without opening the database.
const skipStore = "skip-store"

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Store      store.DataStore
	Ledger     *ledger.Ledger
	Classifier *tax.Classifier
	Evaluator  *alerts.Evaluator
	Engine     *valuation.Engine
	Estimator  *returns.Estimator
	Summarizer *insight.Summarizer
	Notifier   notify.Notifier // scheduled sweeps: terminal, webhook and audit
	Relay      notify.Notifier // alerts flipped by one-shot commands: webhook only
	Audit      *audit.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	return newRootCmd(&App{Config: cfg, Logger: logger})
}

// Execute runs the CLI and closes the store and audit log afterwards.
func Execute(cfg *config.Config, logger zerolog.Logger) error {
	app := &App{Config: cfg, Logger: logger}
	defer app.Close()
	return newRootCmd(app).Execute()
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Portfolio accounting and valuation",
		Long: `Track purchase lots, record prices and value your holdings.

Sales consume lots first-in first-out, unrealized gains are classified as
short or long term for an estimated tax liability, and standing price
targets raise alerts when the market crosses them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dir, _ := cmd.Flags().GetString("config"); dir != "" {
				cfg, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = cfg
			}

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}

			if skipsStore(cmd) {
				return nil
			}
			return app.init(cmd)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/portfolio-tracker)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("yaml", false, "output in YAML format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("db", "", "database file (default from config)")
	rootCmd.PersistentFlags().Bool("ephemeral", false, "use an in-memory store that is discarded on exit")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addLotCommands(rootCmd, app)
	addPriceCommands(rootCmd, app)
	addTargetCommands(rootCmd, app)
	addPortfolioCommands(rootCmd, app)
	addAlertCommands(rootCmd, app)

	return rootCmd
}

func skipsStore(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipStore] == "true" {
			return true
		}
	}
	return false
}

// init opens the store, unless one is already set, and wires the services on top of it.
func (a *App) init(cmd *cobra.Command) error {
	if a.Store == nil {
		ds, err := a.openStore(cmd)
		if err != nil {
			return err
		}
		a.Store = ds
	}

	policy, err := tax.PolicyFromConfig(a.Config.Tax)
	if err != nil {
		return err
	}
	a.Classifier = tax.NewClassifier(policy)
	a.Ledger = ledger.New(a.Store, a.Logger)
	a.Evaluator = alerts.NewEvaluator(a.Store, a.Store, a.Logger)
	a.Engine = valuation.NewEngine(a.Ledger, a.Store, a.Classifier, a.Evaluator, a.Logger)
	a.Estimator = returns.NewEstimator(a.Ledger, a.Store, a.Logger)

	if a.Audit == nil {
		a.Audit = a.openAudit(cmd)
	}
	if a.Notifier == nil {
		mn := notify.NewMultiNotifier(a.Config.Alerts)
		if a.Audit.IsEnabled() {
			mn.AddChannel(a.Audit)
		}
		a.Notifier = mn
	}
	if a.Relay == nil {
		a.Relay = notify.NewMultiNotifier(config.AlertsConfig{Webhook: a.Config.Alerts.Webhook})
	}

	if a.Summarizer == nil {
		var client insight.LLMClient
		if key := a.Config.Credentials.OpenAI.APIKey; key != "" {
			client = insight.NewOpenAIClient(key, a.Config.Insight.Model)
			a.Logger.Debug().Str("model", a.Config.Insight.Model).Msg("OpenAI client initialized")
		}
		a.Summarizer = insight.NewSummarizer(client, a.Logger)
	}
	return nil
}

func (a *App) openStore(cmd *cobra.Command) (store.DataStore, error) {
	if ephemeral, _ := cmd.Flags().GetBool("ephemeral"); ephemeral {
		a.Logger.Debug().Msg("Using in-memory store")
		return store.NewMemoryStore(), nil
	}

	path := a.Config.Database.Path
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	ds, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", path).Msg("SQLite store initialized")
	return ds, nil
}

// openAudit returns the audit trail, or a disabled one when auditing is off
// or the store is ephemeral.
func (a *App) openAudit(cmd *cobra.Command) *audit.Logger {
	ephemeral, _ := cmd.Flags().GetBool("ephemeral")
	if !a.Config.Audit.Enabled || ephemeral {
		return audit.Disabled()
	}
	l, err := audit.New(audit.DefaultConfig(a.Config.Audit.Dir))
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Audit log unavailable, continuing without it")
		return audit.Disabled()
	}
	a.Logger.Debug().Str("dir", a.Config.Audit.Dir).Str("session", l.SessionID()).Msg("Audit log opened")
	return l
}

// deliverAlerts audits and relays alerts flipped outside the scheduler.
// Delivery failures are logged; the targets stay triggered either way.
func (a *App) deliverAlerts(ctx context.Context, triggered []models.Alert) {
	for _, alert := range triggered {
		a.recordAudit(a.Audit.AlertTriggered(ctx, alert, ""))
		if err := a.Relay.SendAlert(ctx, alert, ""); err != nil {
			a.Logger.Warn().Err(err).Int64("target_id", alert.TargetID).Msg("Failed to relay alert")
		}
	}
}

// recordAudit logs, but never returns, audit write failures.
func (a *App) recordAudit(err error) {
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to write audit event")
	}
}

// Close releases the store and the audit log.
func (a *App) Close() {
	if a.Audit != nil {
		if err := a.Audit.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close audit log")
		}
	}
	if a.Store == nil {
		return
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close store")
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("portfolio v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Configuration management",
		Long:        "View and validate application configuration.",
		Annotations: map[string]string{skipStore: "true"},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsStructured() {
				redacted := *app.Config
				redacted.Credentials.OpenAI.APIKey = utils.MaskCredential(redacted.Credentials.OpenAI.APIKey)
				return output.Structured(redacted)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsStructured() {
				return output.Structured(map[string]string{"path": dir})
			}
			output.Println(dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsStructured() {
				return output.Structured(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	policy, err := tax.PolicyFromConfig(cfg.Tax)

	output.Bold("Tax")
	if err != nil {
		output.Warning("  %v", err)
	} else {
		output.Printf("  Policy:          %s\n", policy.Name)
		output.Printf("  Short-term rate: %s\n", policy.ShortTermRate.String())
		output.Printf("  Long-term rate:  %s\n", policy.LongTermRate.String())
		output.Printf("  Long-term after: %d days\n", policy.LongTermDays)
	}
	output.Println()

	output.Bold("Alerts")
	output.Printf("  Schedule:        %s\n", cfg.Alerts.Schedule)
	output.Printf("  Terminal:        %v\n", cfg.Alerts.Terminal)
	output.Printf("  Webhook:         %v\n", cfg.Alerts.Webhook.Enabled)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Database:        %s\n", cfg.Database.Path)
	output.Printf("  Audit log:       %v (%s)\n", cfg.Audit.Enabled, cfg.Audit.Dir)
	output.Println()

	output.Bold("Insight")
	output.Printf("  Model:           %s\n", cfg.Insight.Model)
	output.Printf("  OpenAI key:      %s\n", orNone(utils.MaskCredential(cfg.Credentials.OpenAI.APIKey)))
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
