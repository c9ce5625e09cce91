// Package valuation values the open lots against the latest prices and
// aggregates cost, gain and tax exposure into a portfolio summary.
package valuation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/store"
	"portfolio-tracker/internal/tax"
)

// LotReader is the read side of the ledger.
type LotReader interface {
	ListAll(ctx context.Context) ([]models.Lot, error)
}

// AlertSource evaluates price targets during a summary.
type AlertSource interface {
	EvaluateAll(ctx context.Context) ([]models.Alert, error)
}

// Engine builds portfolio summaries. It holds no state between calls.
type Engine struct {
	lots       LotReader
	prices     store.PriceStore
	classifier *tax.Classifier
	alerts     AlertSource
	logger     zerolog.Logger
}

// NewEngine creates a valuation engine. alerts may be nil.
func NewEngine(lots LotReader, prices store.PriceStore, classifier *tax.Classifier, alerts AlertSource, logger zerolog.Logger) *Engine {
	return &Engine{
		lots:       lots,
		prices:     prices,
		classifier: classifier,
		alerts:     alerts,
		logger:     logging.WithComponent(logger, "valuation"),
	}
}

// Summarize values every lot as of asOf, then runs an alert evaluation and
// folds the newly triggered messages into the summary. A lot without a price
// is reported with a nil LatestPrice and zero market value.
func (e *Engine) Summarize(ctx context.Context, asOf time.Time) (*models.PortfolioSummary, error) {
	asOf = models.Day(asOf)

	lots, err := e.lots.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}

	quotes := newQuoteCache(e.prices, e.logger)
	summary := &models.PortfolioSummary{
		AsOf:              asOf,
		Policy:            e.classifier.Policy().Name,
		TotalValue:        decimal.Zero,
		TotalCost:         decimal.Zero,
		TotalProfit:       decimal.Zero,
		ShortTermTax:      decimal.Zero,
		LongTermTax:       decimal.Zero,
		UnknownTermTax:    decimal.Zero,
		TotalTaxLiability: decimal.Zero,
		Assets:            make([]models.AssetView, 0, len(lots)),
		Alerts:            []string{},
	}

	for _, lot := range lots {
		view := e.view(lot, quotes.latest(ctx, lot.Ticker), asOf)

		summary.TotalValue = summary.TotalValue.Add(view.MarketValue)
		summary.TotalCost = summary.TotalCost.Add(view.Cost)
		switch view.TaxTerm {
		case models.TermLong:
			summary.LongTermTax = summary.LongTermTax.Add(view.TaxLiability)
		case models.TermShort:
			summary.ShortTermTax = summary.ShortTermTax.Add(view.TaxLiability)
		default:
			summary.UnknownTermTax = summary.UnknownTermTax.Add(view.TaxLiability)
		}
		summary.Assets = append(summary.Assets, view)
	}

	summary.TotalProfit = summary.TotalValue.Sub(summary.TotalCost)
	summary.TotalTaxLiability = summary.ShortTermTax.Add(summary.LongTermTax).Add(summary.UnknownTermTax)

	if e.alerts != nil {
		triggered, err := e.alerts.EvaluateAll(ctx)
		if err != nil {
			e.logger.Warn().Err(err).Msg("Alert evaluation failed during summary")
		}
		for _, a := range triggered {
			summary.Alerts = append(summary.Alerts, a.Message)
		}
		summary.TriggeredAlerts = triggered
	}

	e.logger.Debug().
		Int("lots", len(lots)).
		Int("missing_prices", quotes.missing).
		Str("total_value", summary.TotalValue.StringFixed(2)).
		Msg("Portfolio summarized")
	return summary, nil
}

func (e *Engine) view(lot models.Lot, latest *decimal.Decimal, asOf time.Time) models.AssetView {
	view := models.AssetView{
		Lot:          lot,
		LatestPrice:  latest,
		MarketValue:  decimal.Zero,
		Cost:         lot.Cost(),
		TaxLiability: decimal.Zero,
		TaxTerm:      e.classifier.Classify(lot.AcquiredOn, asOf),
		HoldingDays:  tax.HoldingDays(lot.AcquiredOn, asOf),
	}
	if latest != nil {
		view.MarketValue = latest.Mul(decimal.NewFromInt(lot.Quantity))
	}
	view.UnrealizedGain = view.MarketValue.Sub(view.Cost)
	view.TaxLiability = e.classifier.TaxOn(view.UnrealizedGain, view.TaxTerm)
	return view
}

// TotalValue sums market value over all lots without classifying tax or
// evaluating alerts.
func (e *Engine) TotalValue(ctx context.Context, asOf time.Time) (decimal.Decimal, error) {
	lots, err := e.lots.ListAll(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list lots: %w", err)
	}

	quotes := newQuoteCache(e.prices, e.logger)
	total := decimal.Zero
	for _, lot := range lots {
		if latest := quotes.latest(ctx, lot.Ticker); latest != nil {
			total = total.Add(latest.Mul(decimal.NewFromInt(lot.Quantity)))
		}
	}
	return total, nil
}

// quoteCache memoizes latest-price lookups for the duration of one call.
// A failed lookup is logged and treated like a missing price.
type quoteCache struct {
	prices  store.PriceStore
	logger  zerolog.Logger
	seen    map[string]*decimal.Decimal
	missing int
}

func newQuoteCache(prices store.PriceStore, logger zerolog.Logger) *quoteCache {
	return &quoteCache{prices: prices, logger: logger, seen: make(map[string]*decimal.Decimal)}
}

func (q *quoteCache) latest(ctx context.Context, ticker string) *decimal.Decimal {
	if p, ok := q.seen[ticker]; ok {
		return p
	}
	var p *decimal.Decimal
	point, err := q.prices.Latest(ctx, ticker)
	switch {
	case err != nil:
		log := logging.WithTicker(q.logger, ticker)
		log.Warn().Err(err).Msg("Price lookup failed, valuing at zero")
		q.missing++
	case point == nil:
		q.missing++
	default:
		c := point.Close
		p = &c
	}
	q.seen[ticker] = p
	return p
}
