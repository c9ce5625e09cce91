package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"portfolio-tracker/internal/models"
	"portfolio-tracker/pkg/utils"
)

// addPortfolioCommands adds valuation and return commands.
func addPortfolioCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Valuation, tax exposure and returns",
	}

	cmd.AddCommand(newPortfolioSummaryCmd(app))
	cmd.AddCommand(newPortfolioValueCmd(app))
	cmd.AddCommand(newPortfolioReturnCmd(app))
	cmd.AddCommand(newPortfolioXIRRCmd(app))
	cmd.AddCommand(newPortfolioInsightCmd(app))

	for _, c := range cmd.Commands() {
		c.Flags().String("as-of", "", "valuation date (YYYY-MM-DD, default today)")
	}

	rootCmd.AddCommand(cmd)
}

func newPortfolioSummaryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Value every lot and estimate tax on unrealized gains",
		Long: `Value every open lot at its latest recorded price, classify each gain
as short or long term and total the estimated tax liability. Price targets
are evaluated as part of the summary and newly triggered alerts are listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			asOf, err := asOfFlag(cmd)
			if err != nil {
				return err
			}
			summary, err := app.Engine.Summarize(ctx, asOf)
			if err != nil {
				return err
			}
			app.deliverAlerts(ctx, summary.TriggeredAlerts)

			if output.IsStructured() {
				return output.Structured(summary)
			}
			printSummary(output, summary)
			return nil
		},
	}
}

func printSummary(output *Output, s *models.PortfolioSummary) {
	output.Bold("Portfolio as of %s (%s tax policy)", FormatDate(s.AsOf), s.Policy)
	output.Println()

	if len(s.Assets) == 0 {
		output.Info("No open lots.")
	} else {
		table := NewTable(output, "Lot", "Ticker", "Qty", "Cost", "Price", "Value", "Gain", "Term", "Tax")
		for _, a := range s.Assets {
			table.AddRow(
				fmt.Sprintf("#%d", a.Lot.ID),
				a.Lot.Ticker,
				utils.FormatQuantity(a.Lot.Quantity),
				utils.FormatMoney(a.Cost),
				FormatOptionalPrice(a.LatestPrice),
				utils.FormatMoney(a.MarketValue),
				output.FormatGain(a.UnrealizedGain),
				FormatTerm(a.TaxTerm),
				utils.FormatMoney(a.TaxLiability),
			)
		}
		table.Render()
	}

	output.Println()
	output.Printf("  Total value:   %s\n", utils.FormatMoney(s.TotalValue))
	output.Printf("  Total cost:    %s\n", utils.FormatMoney(s.TotalCost))
	output.Printf("  Profit:        %s\n", output.FormatGain(s.TotalProfit))
	output.Printf("  Tax (short):   %s\n", utils.FormatMoney(s.ShortTermTax))
	output.Printf("  Tax (long):    %s\n", utils.FormatMoney(s.LongTermTax))
	if !s.UnknownTermTax.IsZero() {
		output.Printf("  Tax (undated): %s\n", utils.FormatMoney(s.UnknownTermTax))
	}
	output.Printf("  Tax liability: %s\n", utils.FormatMoney(s.TotalTaxLiability))

	if len(s.Alerts) > 0 {
		output.Println()
		output.Bold("Alerts")
		for _, msg := range s.Alerts {
			output.Warning("  %s", msg)
		}
	}
}

func newPortfolioValueCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "value",
		Short: "Show total market value",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd)
			defer cancel()

			asOf, err := asOfFlag(cmd)
			if err != nil {
				return err
			}
			total, err := app.Engine.TotalValue(ctx, asOf)
			if err != nil {
				return err
			}

			if output.IsStructured() {
				return output.Structured(map[string]decimal.Decimal{"total_value": total})
			}
			output.Println(utils.FormatMoney(total))
			return nil
		},
	}
}

type returnOutput struct {
	Ticker    string   `json:"ticker" yaml:"ticker"`
	Method    string   `json:"method" yaml:"method"`
	Percent   *float64 `json:"percent" yaml:"percent"`
	Available bool     `json:"available" yaml:"available"`
}

func printReturn(output *Output, r returnOutput) error {
	if output.IsStructured() {
		return output.Structured(r)
	}
	if !r.Available {
		output.Warning("%s: not enough data for an annualized return", r.Ticker)
		return nil
	}
	output.Printf("%s  %s  (%s)\n", r.Ticker, output.FormatPercent(*r.Percent), r.Method)
	return nil
}

func newPortfolioReturnCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "return <ticker>",
		Short: "Estimate the annualized return of a holding",
		Long: `Estimate the annualized return of a holding as if the whole position
had been bought on its earliest dated lot. Use 'portfolio xirr' for a
return that accounts for each purchase date.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			asOf, err := asOfFlag(cmd)
			if err != nil {
				return err
			}
			pct, ok, err := app.Estimator.AnnualizedReturnPercent(ctx, args[0], asOf)
			if err != nil {
				return err
			}
			return printReturn(NewOutput(cmd), newReturnOutput(args[0], "proxy", pct, ok))
		},
	}
}

func newPortfolioXIRRCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "xirr <ticker>",
		Short: "Solve the money-weighted annualized return of a holding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			asOf, err := asOfFlag(cmd)
			if err != nil {
				return err
			}
			pct, ok, err := app.Estimator.CashFlowXIRR(ctx, args[0], asOf)
			if err != nil {
				return err
			}
			return printReturn(NewOutput(cmd), newReturnOutput(args[0], "xirr", pct, ok))
		},
	}
}

func newReturnOutput(ticker, method string, pct float64, ok bool) returnOutput {
	r := returnOutput{Ticker: models.NormalizeTicker(ticker), Method: method, Available: ok}
	if ok {
		r.Percent = &pct
	}
	return r
}

func newPortfolioInsightCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "insight",
		Short: "AI commentary on the portfolio",
		Long: `Ask the configured OpenAI model for a short plain-language commentary
on the current summary. Prints "Summary unavailable." when no API key is
configured or the request fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*commandTimeout)
			defer cancel()

			asOf, err := asOfFlag(cmd)
			if err != nil {
				return err
			}
			summary, err := app.Engine.Summarize(ctx, asOf)
			if err != nil {
				return err
			}
			app.deliverAlerts(ctx, summary.TriggeredAlerts)
			xirr := tickerXIRR(ctx, app, summary, asOf)
			text := app.Summarizer.Summarize(ctx, summary, xirr)

			if output.IsStructured() {
				return output.Structured(map[string]interface{}{
					"as_of":   FormatDate(summary.AsOf),
					"xirr":    xirr,
					"insight": text,
					"alerts":  summary.Alerts,
				})
			}
			output.Println(text)
			for _, msg := range summary.Alerts {
				output.Warning("%s", msg)
			}
			return nil
		},
	}
}

// tickerXIRR solves XIRR for each held ticker, leaving out the ones without enough data.
func tickerXIRR(ctx context.Context, app *App, summary *models.PortfolioSummary, asOf time.Time) map[string]float64 {
	out := make(map[string]float64)
	for _, a := range summary.Assets {
		ticker := a.Lot.Ticker
		if _, done := out[ticker]; done {
			continue
		}
		pct, ok, err := app.Estimator.CashFlowXIRR(ctx, ticker, asOf)
		if err != nil {
			app.Logger.Warn().Err(err).Str("ticker", ticker).Msg("XIRR failed")
			continue
		}
		if ok {
			out[ticker] = pct
		}
	}
	return out
}
