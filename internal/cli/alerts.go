package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"portfolio-tracker/internal/alerts"
)

// addAlertCommands adds price target evaluation commands.
func addAlertCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Evaluate price targets",
		Long:  "Check standing price targets once, or keep checking them on a schedule.",
	}

	cmd.AddCommand(newAlertsRunCmd(app))
	cmd.AddCommand(newAlertsWatchCmd(app))

	rootCmd.AddCommand(cmd)
}

type sweepOutput struct {
	Checked  int      `json:"checked" yaml:"checked"`
	Skipped  int      `json:"skipped" yaml:"skipped"`
	Failed   int      `json:"failed" yaml:"failed"`
	Messages []string `json:"messages" yaml:"messages"`
}

func newAlertsRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Evaluate every active target once",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			res, err := app.Evaluator.Sweep(ctx)
			if err != nil {
				return err
			}
			app.deliverAlerts(ctx, res.Alerts)

			out := sweepOutput{Checked: res.Checked, Skipped: res.Skipped, Failed: res.Failed, Messages: res.Messages()}
			if output.IsStructured() {
				return output.Structured(out)
			}
			for _, msg := range out.Messages {
				output.Warning("%s", msg)
			}
			output.Dim("%d checked, %d triggered, %d without price, %d failed",
				out.Checked, len(out.Messages), out.Skipped, out.Failed)
			return nil
		},
	}
}

func newAlertsWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Evaluate targets on a schedule until interrupted",
		Long: `Evaluate targets on a cron schedule and deliver each triggered alert to
the configured notifiers (terminal and webhook). Stops on Ctrl+C.`,
		Example: `  portfolio alerts watch
  portfolio alerts watch --schedule "@every 1m"
  portfolio alerts watch --schedule "*/5 9-16 * * 1-5"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			schedule, _ := cmd.Flags().GetString("schedule")
			if schedule == "" {
				schedule = app.Config.Alerts.Schedule
			}
			if schedule == "" {
				schedule = alerts.DefaultSchedule
			}

			scheduler := alerts.NewScheduler(app.Evaluator, app.Notifier, schedule, app.Logger)
			if _, err := scheduler.RunOnce(ctx); err != nil {
				return err
			}
			if err := scheduler.Start(ctx); err != nil {
				return err
			}
			defer scheduler.Stop()

			output.Info("Watching price targets (%s), next check %s. Press Ctrl+C to stop.",
				schedule, scheduler.Next().Format("15:04:05"))
			<-ctx.Done()
			output.Dim("Stopping...")
			return nil
		},
	}
	cmd.Flags().String("schedule", "", "cron schedule (default from config)")
	return cmd
}
