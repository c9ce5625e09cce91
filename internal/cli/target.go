package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"portfolio-tracker/internal/models"
)

// addTargetCommands adds price target commands.
func addTargetCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "target",
		Short: "Price target management",
		Long: `Create and list standing price targets. A BUY target fires once the
price is at or below it, a SELL target once the price is at or above it.
Each target fires at most once.`,
	}

	cmd.AddCommand(newTargetAddCmd(app))
	cmd.AddCommand(newTargetListCmd(app))

	rootCmd.AddCommand(cmd)
}

func newTargetAddCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "add <ticker> <price> <BUY|SELL>",
		Short: "Create a price target",
		Example: `  portfolio target add AAPL 170 BUY
  portfolio target add NVDA 140 sell`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			price, err := parseMoney("target_price", args[1])
			if err != nil {
				return err
			}
			target, err := app.Evaluator.Create(ctx, args[0], price, args[2])
			if err != nil {
				return err
			}
			app.recordAudit(app.Audit.TargetCreated(ctx, target))

			if output.IsStructured() {
				return output.Structured(target)
			}
			output.Success("Target #%d: %s %s at %s", target.ID, target.Action, target.Ticker, target.TargetPrice.StringFixed(2))
			return nil
		},
	}
}

func newTargetListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List price targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			all, _ := cmd.Flags().GetBool("all")
			var targets []models.PriceTarget
			var err error
			if all {
				targets, err = app.Evaluator.ListAll(ctx)
			} else {
				targets, err = app.Evaluator.ListActive(ctx)
			}
			if err != nil {
				return err
			}

			if output.IsStructured() {
				return output.Structured(targets)
			}
			if len(targets) == 0 {
				output.Info("No price targets.")
				return nil
			}

			table := NewTable(output, "ID", "Ticker", "Action", "Target", "Status")
			for _, t := range targets {
				status := output.Yellow("active")
				if t.Triggered {
					status = "triggered " + FormatOptionalDate(t.TriggeredAt)
				}
				table.AddRow(
					fmt.Sprintf("%d", t.ID),
					t.Ticker,
					string(t.Action),
					t.TargetPrice.StringFixed(2),
					status,
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "include targets that already fired")
	return cmd
}
