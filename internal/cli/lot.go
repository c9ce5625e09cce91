package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"portfolio-tracker/internal/impexp"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/pkg/utils"
)

const commandTimeout = 30 * time.Second

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), commandTimeout)
}

// addLotCommands adds lot bookkeeping commands.
func addLotCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "lot",
		Short: "Purchase lot management",
		Long:  "Record buys, sell shares first-in first-out and inspect open lots.",
	}

	cmd.AddCommand(newLotAddCmd(app))
	cmd.AddCommand(newLotSellCmd(app))
	cmd.AddCommand(newLotListCmd(app))
	cmd.AddCommand(newLotRemoveCmd(app))
	cmd.AddCommand(newLotImportCmd(app))

	rootCmd.AddCommand(cmd)
}

func newLotAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <ticker> <quantity> <unit-cost>",
		Short: "Record a buy",
		Long: `Record a buy. A buy of a ticker that is already held merges into the
existing lot at the quantity-weighted average cost.`,
		Example: `  portfolio lot add AAPL 10 150.25 --date 2023-01-15
  portfolio lot add MSFT 5 310`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			qty, err := parseQuantity(args[1])
			if err != nil {
				return err
			}
			cost, err := parseMoney("unit_cost", args[2])
			if err != nil {
				return err
			}
			acquired, err := dateFlag(cmd, "date")
			if err != nil {
				return err
			}

			lot, err := app.Ledger.AddLot(ctx, args[0], qty, cost, acquired)
			if err != nil {
				return err
			}
			app.recordAudit(app.Audit.LotAdded(ctx, lot))

			if output.IsStructured() {
				return output.Structured(lot)
			}
			output.Success("%s: %s shares @ %s (lot #%d, acquired %s)",
				lot.Ticker, utils.FormatQuantity(lot.Quantity), lot.UnitCost.StringFixed(2),
				lot.ID, FormatOptionalDate(lot.AcquiredOn))
			return nil
		},
	}
	cmd.Flags().String("date", "", "acquisition date (YYYY-MM-DD)")
	return cmd
}

type sellOutput struct {
	Sale     *models.SaleResult    `json:"sale" yaml:"sale"`
	Realized *models.RealizedGains `json:"realized,omitempty" yaml:"realized,omitempty"`
}

func newLotSellCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sell <ticker> <quantity>",
		Short: "Sell shares first-in first-out",
		Long: `Sell shares of a ticker, consuming the oldest lots first. Lots without
an acquisition date are consumed before dated ones. Nothing changes when
the holding is smaller than the requested quantity.

With --price the realized gain and its tax are reported as well.`,
		Example: `  portfolio lot sell AAPL 15
  portfolio lot sell AAPL 15 --price 182.10 --date 2024-06-28`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			qty, err := parseQuantity(args[1])
			if err != nil {
				return err
			}

			var price *decimal.Decimal
			if s, _ := cmd.Flags().GetString("price"); s != "" {
				p, err := parseMoney("price", s)
				if err != nil {
					return err
				}
				price = &p
			}
			soldOn, err := dateFlag(cmd, "date")
			if err != nil {
				return err
			}
			if soldOn == nil {
				soldOn = models.DatePtr(time.Now())
			}

			sale, err := app.Ledger.Sell(ctx, args[0], qty)
			if err != nil {
				app.recordAudit(app.Audit.SellRejected(ctx, args[0], qty, err))
				return err
			}
			out := sellOutput{Sale: sale}
			if price != nil {
				realized := app.Classifier.Realize(sale.Consumed, *price, *soldOn)
				out.Realized = &realized
			}
			app.recordAudit(app.Audit.LotSold(ctx, sale, out.Realized))

			if output.IsStructured() {
				return output.Structured(out)
			}
			printSale(output, out)
			return nil
		},
	}
	cmd.Flags().String("price", "", "sale price per share, reports realized gain and tax")
	cmd.Flags().String("date", "", "sale date for --price (YYYY-MM-DD, default today)")
	return cmd
}

func printSale(output *Output, out sellOutput) {
	sale := out.Sale
	output.Success("Sold %s %s from %d lot(s)", utils.FormatQuantity(sale.Quantity), sale.Ticker, len(sale.Consumed))

	table := NewTable(output, "Lot", "Acquired", "Sold", "Unit Cost", "Remaining")
	for _, c := range sale.Consumed {
		remaining := utils.FormatQuantity(c.Remaining)
		if c.Closed {
			remaining = "closed"
		}
		table.AddRow(
			fmt.Sprintf("#%d", c.LotID),
			FormatOptionalDate(c.AcquiredOn),
			utils.FormatQuantity(c.Quantity),
			c.UnitCost.StringFixed(2),
			remaining,
		)
	}
	table.Render()
	output.Printf("  Cost basis: %s\n", utils.FormatMoney(sale.CostBasis()))

	if r := out.Realized; r != nil {
		output.Println()
		output.Bold("Realized @ %s on %s", r.Price.StringFixed(2), FormatDate(r.SoldOn))
		output.Printf("  Proceeds:   %s\n", utils.FormatMoney(r.Proceeds))
		output.Printf("  Gain:       %s\n", output.FormatGain(r.Gain))
		output.Printf("  Tax:        %s\n", utils.FormatMoney(r.Tax))
	}
}

func newLotListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list [ticker]",
		Short: "List open lots",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			var lots []models.Lot
			var err error
			if len(args) == 1 {
				lots, err = app.Ledger.ListByTicker(ctx, args[0])
			} else {
				lots, err = app.Ledger.ListAll(ctx)
			}
			if err != nil {
				return err
			}

			if output.IsStructured() {
				return output.Structured(lots)
			}
			if len(lots) == 0 {
				output.Info("No open lots.")
				return nil
			}

			table := NewTable(output, "ID", "Ticker", "Quantity", "Unit Cost", "Cost", "Acquired")
			for _, l := range lots {
				table.AddRow(
					fmt.Sprintf("%d", l.ID),
					l.Ticker,
					utils.FormatQuantity(l.Quantity),
					l.UnitCost.StringFixed(2),
					utils.FormatMoney(l.Cost()),
					FormatOptionalDate(l.AcquiredOn),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newLotRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a lot without recording a sale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := app.Ledger.RemoveByID(ctx, id); err != nil {
				return err
			}
			app.recordAudit(app.Audit.LotRemoved(ctx, id))

			if output.IsStructured() {
				return output.Structured(map[string]int64{"removed": id})
			}
			output.Success("Removed lot #%d", id)
			return nil
		},
	}
}

func newLotImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import lots from CSV",
		Long: `Import lots from a CSV file with the header
ticker,quantity,unit_cost,acquired_on

Rows are added in order as buys, so repeated tickers merge. Invalid rows
are reported and skipped.`,
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

			report, err := impexp.ImportLots(ctx, f, app.Ledger)
			if err != nil {
				return err
			}
			app.recordAudit(app.Audit.Imported(ctx, "lots", args[0], report.Imported, len(report.Errors)))
			return printImportReport(output, "lots", report)
		},
	}
}

type importOutput struct {
	Imported int      `json:"imported" yaml:"imported"`
	Errors   []string `json:"errors" yaml:"errors"`
}

func printImportReport(output *Output, what string, report *impexp.Report) error {
	out := importOutput{Imported: report.Imported, Errors: []string{}}
	for _, e := range report.Errors {
		out.Errors = append(out.Errors, e.Error())
	}
	if output.IsStructured() {
		return output.Structured(out)
	}

	output.Success("Imported %d %s", out.Imported, what)
	for _, e := range out.Errors {
		output.Warning("  skipped %s", e)
	}
	return nil
}
