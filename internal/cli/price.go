package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"portfolio-tracker/internal/impexp"
	"portfolio-tracker/internal/models"
)

// addPriceCommands adds price recording commands.
func addPriceCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price recording and history",
		Long:  "Record close prices and inspect the price history of a ticker.",
	}

	cmd.AddCommand(newPriceRecordCmd(app))
	cmd.AddCommand(newPriceLatestCmd(app))
	cmd.AddCommand(newPriceHistoryCmd(app))
	cmd.AddCommand(newPriceImportCmd(app))

	rootCmd.AddCommand(cmd)
}

func newPriceRecordCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "record <ticker> <price>",
		Short:   "Record a close price",
		Example: `  portfolio price record AAPL 189.98 --date 2024-06-28`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			price, err := parseMoney("price", args[1])
			if err != nil {
				return err
			}
			date, err := dateFlag(cmd, "date")
			if err != nil {
				return err
			}
			if date == nil {
				date = models.DatePtr(time.Now())
			}

			point, err := app.Store.Record(ctx, args[0], price, *date)
			if err != nil {
				return err
			}
			app.recordAudit(app.Audit.PriceRecorded(ctx, point))

			if output.IsStructured() {
				return output.Structured(point)
			}
			output.Success("%s closed at %s on %s", point.Ticker, point.Close.StringFixed(2), FormatDate(point.Date))
			return nil
		},
	}
	cmd.Flags().String("date", "", "price date (YYYY-MM-DD, default today)")
	return cmd
}

func newPriceLatestCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "latest <ticker>",
		Short: "Show the most recent price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			point, err := app.Store.Latest(ctx, args[0])
			if err != nil {
				return err
			}

			if output.IsStructured() {
				return output.Structured(point)
			}
			if point == nil {
				output.Warning("No price recorded for %s", models.NormalizeTicker(args[0]))
				return nil
			}
			output.Printf("%s  %s  (%s)\n", point.Ticker, point.Close.StringFixed(2), FormatDate(point.Date))
			return nil
		},
	}
}

func newPriceHistoryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "history <ticker>",
		Short: "Show recorded prices, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			points, err := app.Store.History(ctx, args[0])
			if err != nil {
				return err
			}

			if output.IsStructured() {
				return output.Structured(points)
			}
			if len(points) == 0 {
				output.Info("No prices recorded for %s", models.NormalizeTicker(args[0]))
				return nil
			}

			table := NewTable(output, "Date", "Close")
			for _, p := range points {
				table.AddRow(FormatDate(p.Date), p.Close.StringFixed(2))
			}
			table.Render()
			return nil
		},
	}
}

func newPriceImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import close prices from CSV",
		Long: `Import close prices from a CSV file with the header
ticker,date,close`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			report, err := impexp.ImportPrices(ctx, f, app.Store)
			if err != nil {
				return err
			}
			app.recordAudit(app.Audit.Imported(ctx, "prices", args[0], report.Imported, len(report.Errors)))
			return printImportReport(output, "prices", report)
		},
	}
}
